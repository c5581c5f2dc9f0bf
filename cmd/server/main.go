package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	persistlog "voxelsave.ai/internal/persistence/log"
	"voxelsave.ai/internal/persistence/metrics"
	"voxelsave.ai/internal/persistence/saver"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/tuning"
)

func main() {
	var (
		worldID     = flag.String("world", "world_1", "world id")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		configDir   = flag.String("configs", "./configs", "config directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		blocksPath  = flag.String("blocks", "", "path to blocks.json (default: built-in registry)")
		disableDB   = flag.Bool("disable_db", false, "disable the save index")
		spawnRadius = flag.Int("spawn_radius", 2, "chunks around spawn kept resident from startup")
		metricsAddr = flag.String("metrics_addr", "", "http listen address for /metrics (default: tuning metrics_addr)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	reg := catalogs.DefaultBlocks()
	if p := strings.TrimSpace(*blocksPath); p != "" {
		if reg, err = catalogs.LoadBlocks(p); err != nil {
			logger.Fatalf("load blocks: %v", err)
		}
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)

	idx, err := openRuntimeIndex(worldDir, tune, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	var observers []saver.Observer
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(reg, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
		observers = append(observers, idx)
	}
	if tune.SaveLog {
		saveLog := persistlog.NewSaveLogger(worldDir)
		defer saveLog.Close()
		observers = append(observers, saveLog)
	}

	pipe, err := saver.Open(saver.Config{
		WorldDir:  worldDir,
		Logger:    log.New(os.Stdout, "[saver] ", log.LstdFlags|log.Lmicroseconds),
		Observers: observers,
	})
	if err != nil {
		logger.Fatalf("open save pipeline: %v", err)
	}

	h := newHost(tune, pipe, reg, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	h.warmSpawn(*spawnRadius)
	logger.Printf("world=%s level=%q resident=%d registry=%s", *worldID, h.meta.LevelName, len(h.store.Chunks), reg.Digest)

	ctx, cancel := signalContext()
	defer cancel()

	collector := metrics.NewCollector(pipe)
	if idx != nil {
		collector.WithIndex(idx)
	}
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collector, collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string      `json:"world_id"`
			State   hostState   `json:"state"`
			Saver   saver.Stats `json:"saver"`
		}{
			WorldID: *worldID,
			State:   h.state(),
			Saver:   pipe.Stats(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	addr := strings.TrimSpace(*metricsAddr)
	if addr == "" {
		addr = tune.MetricsAddr
	}
	var srv *http.Server
	if addr != "" {
		srv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
			}
		}()
	}

	if err := h.run(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
