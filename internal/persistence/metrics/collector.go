package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"voxelsave.ai/internal/persistence/indexdb"
	"voxelsave.ai/internal/persistence/saver"
)

const namespace = "voxelsave"

// StatsSource is implemented by *saver.Pipeline.
type StatsSource interface {
	Stats() saver.Stats
}

// IndexStatsSource is implemented by *indexdb.SQLiteIndex.
type IndexStatsSource interface {
	Stats() indexdb.Stats
}

// Collector reads pipeline counters at scrape time, so nothing has to poll.
type Collector struct {
	src   StatsSource
	index IndexStatsSource

	queueDepth   *prometheus.Desc
	enqueued     *prometheus.Desc
	rejected     *prometheus.Desc
	saved        *prometheus.Desc
	failed       *prometheus.Desc
	bytesWritten *prometheus.Desc
	loads        *prometheus.Desc
	lastSuccess  *prometheus.Desc
	lastError    *prometheus.Desc

	indexDepth   *prometheus.Desc
	indexDropped *prometheus.Desc
	indexErrors  *prometheus.Desc
}

func NewCollector(src StatsSource) *Collector {
	d := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, nil)
	}
	return &Collector{
		src:          src,
		queueDepth:   d("saver", "queue_depth", "Operations waiting for the save worker."),
		enqueued:     d("saver", "enqueued_total", "Operations accepted by the save queue."),
		rejected:     d("saver", "rejected_total", "Operations refused after shutdown."),
		saved:        d("saver", "saved_total", "Operations written successfully.", "kind"),
		failed:       d("saver", "failed_total", "Operations that failed to write.", "kind"),
		bytesWritten: d("saver", "bytes_written_total", "Uncompressed record bytes written."),
		loads:        d("saver", "loads_total", "Synchronous loads by result.", "result"),
		lastSuccess:  d("saver", "last_success_timestamp_seconds", "Unix time of the last successful write."),
		lastError:    d("saver", "last_error_timestamp_seconds", "Unix time of the last failed write."),
		indexDepth:   d("index", "queue_depth", "Events waiting for the save index."),
		indexDropped: d("index", "dropped_total", "Events the save index dropped."),
		indexErrors:  d("index", "write_errors_total", "Save index write failures."),
	}
}

// WithIndex adds the save index queue to the exported metrics.
func (c *Collector) WithIndex(idx IndexStatsSource) *Collector {
	c.index = idx
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.queueDepth, c.enqueued, c.rejected, c.saved, c.failed, c.bytesWritten, c.loads, c.lastSuccess, c.lastError} {
		ch <- d
	}
	if c.index != nil {
		ch <- c.indexDepth
		ch <- c.indexDropped
		ch <- c.indexErrors
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge(c.queueDepth, float64(st.QueueDepth))
	counter(c.enqueued, st.EnqueuedTotal)
	counter(c.rejected, st.RejectedTotal)
	counter(c.saved, st.ChunkSavedTotal, "chunk")
	counter(c.saved, st.EntitySavedTotal, "entity")
	counter(c.saved, st.MetadataSavedTotal, "metadata")
	counter(c.failed, st.ChunkFailedTotal, "chunk")
	counter(c.failed, st.EntityFailedTotal, "entity")
	counter(c.failed, st.MetadataFailedTotal, "metadata")
	counter(c.bytesWritten, st.BytesWrittenTotal)
	hits := st.LoadTotal - st.LoadMissTotal - st.LoadErrorTotal
	counter(c.loads, hits, "hit")
	counter(c.loads, st.LoadMissTotal, "miss")
	counter(c.loads, st.LoadErrorTotal, "error")
	gauge(c.lastSuccess, float64(st.LastSuccessUnix))
	gauge(c.lastError, float64(st.LastErrorUnix))

	if c.index != nil {
		is := c.index.Stats()
		gauge(c.indexDepth, float64(is.QueueDepth))
		counter(c.indexDropped, is.DropTotal)
		counter(c.indexErrors, is.WriteErrorTotal)
	}
}
