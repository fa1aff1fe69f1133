package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hdlc-toolkit/arq"
	"hdlc-toolkit/config"

	"github.com/stretchr/testify/require"
)

func TestLoopback(t *testing.T) {
	require := require.New(t)
	cfg := config.Default()
	cfg.Link.PollInterval = time.Millisecond
	cfg.Link.RetryTimeout = 20 * time.Millisecond
	cfg.Link.Retries = 20
	cfg.Netem.WriteLossNth = 6

	ms, err := startMetrics("", cfg.Metrics.Namespace)
	require.Nil(err)
	defer ms.Close()

	var out bytes.Buffer
	lo := &loopbackOptions{count: 20, size: 32, timeout: 10 * time.Second}
	require.Nil(runLoopback(&out, cfg.Link, cfg.Netem, ms, lo))
	require.Contains(out.String(), "Delivered 20 packets of 32 bytes")
	require.Contains(out.String(), "retransmits")
	require.Empty(ms.links)
}

func TestLoopbackPayload(t *testing.T) {
	require := require.New(t)
	require.Equal([]byte{3, 4, 5}, loopbackPayload(3, 3))
	require.Len(loopbackPayload(0, 64), 64)
}

func TestMetricsRouter(t *testing.T) {
	require := require.New(t)
	ms, err := startMetrics("", "hdlc")
	require.Nil(err)
	ms.addLink("side", "a", func() arq.Stats {
		return arq.Stats{State: arq.Connected, FramesSent: 7}
	})

	h := ms.router()
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("OK", rec.Body.String())

	rec = get("/links")
	require.Equal(http.StatusOK, rec.Code)
	var names []string
	require.Nil(json.Unmarshal(rec.Body.Bytes(), &names))
	require.Equal([]string{"a"}, names)

	rec = get("/links/a")
	require.Equal(http.StatusOK, rec.Code)
	var stats map[string]any
	require.Nil(json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal("connected", stats["State"])
	require.Equal(float64(7), stats["FramesSent"])

	require.Equal(http.StatusNotFound, get("/links/b").Code)

	rec = get("/metrics")
	require.Equal(http.StatusOK, rec.Code)
	require.True(strings.Contains(rec.Body.String(), `hdlc_link_frames_sent_total{side="a"} 7`))

	ms.removeLink("a")
	require.Equal(http.StatusNotFound, get("/links/a").Code)
}
