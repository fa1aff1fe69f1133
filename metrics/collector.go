package metrics

import (
	"errors"
	"net/http"

	"hdlc-toolkit/arq"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "link"

var states = []arq.State{arq.Disconnected, arq.Connecting, arq.Connected, arq.Disconnecting}

type counter struct {
	desc  *prometheus.Desc
	value func(st arq.Stats) uint64
}

// Collector exports session statistics. Values are read from src on
// every scrape, so src must be safe to call from the registry's
// goroutine; link.Link.Stats is.
type Collector struct {
	src func() arq.Stats

	counters    []counter
	state       *prometheus.Desc
	outstanding *prometheus.Desc
	rtt         *prometheus.Desc
}

func NewCollector(namespace string, constLabels prometheus.Labels, src func() arq.Stats) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, constLabels)
	}
	c := &Collector{
		src:         src,
		state:       desc("state", "Current link state, 1 for the active state.", "state"),
		outstanding: desc("outstanding_frames", "Data frames waiting for acknowledgment."),
		rtt:         desc("rtt_seconds", "Round trip time estimates.", "estimate"),
	}
	add := func(name, help string, value func(st arq.Stats) uint64) {
		c.counters = append(c.counters, counter{desc: desc(name, help), value: value})
	}
	add("frames_sent_total", "Frames handed to the transport.", func(st arq.Stats) uint64 { return st.FramesSent })
	add("frames_received_total", "Valid frames received.", func(st arq.Stats) uint64 { return st.FramesReceived })
	add("packets_queued_total", "Packets accepted for delivery.", func(st arq.Stats) uint64 { return st.PacketsQueued })
	add("packets_confirmed_total", "Packets acknowledged by the peer.", func(st arq.Stats) uint64 { return st.PacketsConfirmed })
	add("packets_delivered_total", "Packets delivered in order to the receiver.", func(st arq.Stats) uint64 { return st.PacketsDelivered })
	add("packets_abandoned_total", "Packets dropped when the link went down.", func(st arq.Stats) uint64 { return st.PacketsAbandoned })
	add("retransmits_total", "Data frames sent again.", func(st arq.Stats) uint64 { return st.Retransmits })
	add("control_retransmits_total", "Link setup and teardown frames sent again.", func(st arq.Stats) uint64 { return st.ControlRetransmits })
	add("rejects_sent_total", "REJ frames sent.", func(st arq.Stats) uint64 { return st.RejectsSent })
	add("rejects_received_total", "REJ frames received.", func(st arq.Stats) uint64 { return st.RejectsReceived })
	add("out_of_order_total", "Data frames received out of sequence.", func(st arq.Stats) uint64 { return st.OutOfOrder })
	add("stale_frames_total", "Frames acknowledging an already confirmed sequence number.", func(st arq.Stats) uint64 { return st.StaleFrames })
	add("checksum_errors_total", "Frames failing the checksum.", func(st arq.Stats) uint64 { return st.ChecksumErrors })
	add("overflow_errors_total", "Frames larger than the receive buffer.", func(st arq.Stats) uint64 { return st.OverflowErrors })
	add("malformed_frames_total", "Frames with broken escaping.", func(st arq.Stats) uint64 { return st.MalformedFrames })
	add("invalid_frames_total", "Frames with a bad header or address.", func(st arq.Stats) uint64 { return st.InvalidFrames })
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, ctr := range c.counters {
		ch <- ctr.desc
	}
	ch <- c.state
	ch <- c.outstanding
	ch <- c.rtt
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src()
	for _, ctr := range c.counters {
		ch <- prometheus.MustNewConstMetric(ctr.desc, prometheus.CounterValue, float64(ctr.value(st)))
	}
	for _, s := range states {
		v := 0.0
		if s == st.State {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, s.String())
	}
	ch <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, float64(st.Outstanding))
	ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, st.MinRTT.Seconds(), "min")
	ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, st.SmoothedRTT.Seconds(), "smoothed")
	ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, st.RTTVar.Seconds(), "variance")
}

// Register adds c to reg. Registering a collector with the same
// descriptors again is not an error.
func Register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
