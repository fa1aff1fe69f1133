package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hdlc-toolkit/arq"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const metricCount = 16 + 4 + 1 + 3

func testStats() arq.Stats {
	return arq.Stats{
		State:       arq.Connected,
		Outstanding: 2,
		FramesSent:  10,
		Retransmits: 3,
		MinRTT:      100 * time.Millisecond,
		SmoothedRTT: 250 * time.Millisecond,
	}
}

func TestCollector(t *testing.T) {
	require := require.New(t)
	c := NewCollector("hdlc", nil, testStats)
	require.Equal(metricCount, testutil.CollectAndCount(c))

	expected := `
# HELP hdlc_link_frames_sent_total Frames handed to the transport.
# TYPE hdlc_link_frames_sent_total counter
hdlc_link_frames_sent_total 10
# HELP hdlc_link_retransmits_total Data frames sent again.
# TYPE hdlc_link_retransmits_total counter
hdlc_link_retransmits_total 3
# HELP hdlc_link_outstanding_frames Data frames waiting for acknowledgment.
# TYPE hdlc_link_outstanding_frames gauge
hdlc_link_outstanding_frames 2
# HELP hdlc_link_state Current link state, 1 for the active state.
# TYPE hdlc_link_state gauge
hdlc_link_state{state="connected"} 1
hdlc_link_state{state="connecting"} 0
hdlc_link_state{state="disconnected"} 0
hdlc_link_state{state="disconnecting"} 0
# HELP hdlc_link_rtt_seconds Round trip time estimates.
# TYPE hdlc_link_rtt_seconds gauge
hdlc_link_rtt_seconds{estimate="min"} 0.1
hdlc_link_rtt_seconds{estimate="smoothed"} 0.25
hdlc_link_rtt_seconds{estimate="variance"} 0
`
	require.Nil(testutil.CollectAndCompare(c, strings.NewReader(expected),
		"hdlc_link_frames_sent_total",
		"hdlc_link_retransmits_total",
		"hdlc_link_outstanding_frames",
		"hdlc_link_state",
		"hdlc_link_rtt_seconds",
	))
}

func TestCollectorConstLabels(t *testing.T) {
	require := require.New(t)
	c := NewCollector("hdlc", prometheus.Labels{"port": "ttyUSB0"}, testStats)
	expected := `
# HELP hdlc_link_frames_sent_total Frames handed to the transport.
# TYPE hdlc_link_frames_sent_total counter
hdlc_link_frames_sent_total{port="ttyUSB0"} 10
`
	require.Nil(testutil.CollectAndCompare(c, strings.NewReader(expected), "hdlc_link_frames_sent_total"))
}

func TestRegister(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()
	require.Nil(Register(reg, NewCollector("hdlc", nil, testStats)))
	require.Nil(Register(reg, NewCollector("hdlc", nil, testStats)))

	count, err := testutil.GatherAndCount(reg)
	require.Nil(err)
	require.Equal(metricCount, count)
}

func TestHandler(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()
	require.Nil(Register(reg, NewCollector("hdlc", nil, testStats)))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	res, err := http.Get(srv.URL)
	require.Nil(err)
	defer res.Body.Close()
	require.Equal(http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.Nil(err)
	require.Contains(string(body), "hdlc_link_frames_sent_total 10")
	require.Contains(string(body), `hdlc_link_state{state="connected"} 1`)
}
