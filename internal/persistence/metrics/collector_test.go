package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voxelsave.ai/internal/persistence/indexdb"
	"voxelsave.ai/internal/persistence/saver"
)

type fakeStats saver.Stats

func (f fakeStats) Stats() saver.Stats { return saver.Stats(f) }

type fakeIndex indexdb.Stats

func (f fakeIndex) Stats() indexdb.Stats { return indexdb.Stats(f) }

func TestCollectorExportsPipelineStats(t *testing.T) {
	c := NewCollector(fakeStats{
		QueueDepth:       3,
		ChunkSavedTotal:  10,
		ChunkFailedTotal: 1,
		LoadTotal:        7,
		LoadMissTotal:    2,
		LoadErrorTotal:   1,
	})
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	want := `
# HELP voxelsave_saver_loads_total Synchronous loads by result.
# TYPE voxelsave_saver_loads_total counter
voxelsave_saver_loads_total{result="error"} 1
voxelsave_saver_loads_total{result="hit"} 4
voxelsave_saver_loads_total{result="miss"} 2
# HELP voxelsave_saver_queue_depth Operations waiting for the save worker.
# TYPE voxelsave_saver_queue_depth gauge
voxelsave_saver_queue_depth 3
# HELP voxelsave_saver_saved_total Operations written successfully.
# TYPE voxelsave_saver_saved_total counter
voxelsave_saver_saved_total{kind="chunk"} 10
voxelsave_saver_saved_total{kind="entity"} 0
voxelsave_saver_saved_total{kind="metadata"} 0
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"voxelsave_saver_loads_total", "voxelsave_saver_queue_depth", "voxelsave_saver_saved_total")
	if err != nil {
		t.Fatalf("metrics mismatch: %v", err)
	}
}

func TestCollectorIndexMetricsOptional(t *testing.T) {
	plain := NewCollector(fakeStats{})
	if n := testutil.CollectAndCount(plain); n != 15 {
		t.Fatalf("series without index: got=%d want=15", n)
	}
	withIdx := NewCollector(fakeStats{}).WithIndex(fakeIndex{DropTotal: 4})
	if n := testutil.CollectAndCount(withIdx, "voxelsave_index_dropped_total"); n != 1 {
		t.Fatalf("index series: got=%d want=1", n)
	}
}
