package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"hdlc-toolkit/arq"
	"hdlc-toolkit/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type statsSource struct {
	stats     func() arq.Stats
	collector prometheus.Collector
}

// metricsServer tracks the running links, exports them to Prometheus and
// serves their statistics over HTTP.
type metricsServer struct {
	namespace string
	reg       *prometheus.Registry
	srv       *http.Server

	links map[string]statsSource
	mu    sync.Mutex
}

// startMetrics serves the link statistics on addr. An empty addr gives a
// server that only collects.
func startMetrics(addr, namespace string) (*metricsServer, error) {
	ms := &metricsServer{
		namespace: namespace,
		reg:       prometheus.NewRegistry(),
		links:     make(map[string]statsSource),
	}
	if addr == "" {
		return ms, nil
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ms.srv = &http.Server{
		Handler:           ms.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := ms.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server error: %+v", err)
		}
	}()
	log.Infof("Metrics listening at %s", l.Addr())
	return ms, nil
}

func (ms *metricsServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler(ms.reg))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/links", ms.serveLinks)
	r.Get("/links/{name}", ms.serveLink)
	return r
}

// addLink exports src under name, labelled with label=name.
func (ms *metricsServer) addLink(label, name string, src func() arq.Stats) {
	c := metrics.NewCollector(ms.namespace, prometheus.Labels{label: name}, src)
	if err := metrics.Register(ms.reg, c); err != nil {
		log.Warnf("Failed to register collector: %+v", err)
	}
	ms.mu.Lock()
	ms.links[name] = statsSource{stats: src, collector: c}
	ms.mu.Unlock()
}

func (ms *metricsServer) removeLink(name string) {
	ms.mu.Lock()
	src, ok := ms.links[name]
	delete(ms.links, name)
	ms.mu.Unlock()
	if ok {
		ms.reg.Unregister(src.collector)
	}
}

func (ms *metricsServer) serveLinks(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	names := make([]string, 0, len(ms.links))
	for name := range ms.links {
		names = append(names, name)
	}
	ms.mu.Unlock()
	sort.Strings(names)
	writeJSON(w, names)
}

func (ms *metricsServer) serveLink(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ms.mu.Lock()
	src, ok := ms.links[name]
	ms.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, src.stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Failed to encode response: %+v", err)
	}
}

func (ms *metricsServer) Close() error {
	if ms.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return ms.srv.Shutdown(ctx)
}
