package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fleetwatch"

// Collector exposes a Tracker to prometheus. Values are read from the
// tracker snapshot on every scrape.
type Collector struct {
	tracker *Tracker

	frames      *prometheus.Desc
	malformed   *prometheus.Desc
	updates     *prometheus.Desc
	events      *prometheus.Desc
	alerts      *prometheus.Desc
	errors      *prometheus.Desc
	entities    *prometheus.Desc
	connected   *prometheus.Desc
	lastMessage *prometheus.Desc
	feedSize    *prometheus.Desc
}

func NewCollector(tracker *Tracker) *Collector {
	return &Collector{
		tracker:     tracker,
		frames:      prometheus.NewDesc(namespace+"_stream_frames_total", "Frames received from the tracking stream.", nil, nil),
		malformed:   prometheus.NewDesc(namespace+"_stream_malformed_frames_total", "Frames dropped because they could not be decoded.", nil, nil),
		updates:     prometheus.NewDesc(namespace+"_merge_records_total", "Partial records merged into fleet state.", []string{"kind"}, nil),
		events:      prometheus.NewDesc(namespace+"_events_total", "Discrete events received.", nil, nil),
		alerts:      prometheus.NewDesc(namespace+"_alerts_raised_total", "Events that opened an alert.", nil, nil),
		errors:      prometheus.NewDesc(namespace+"_stream_errors_total", "Transport errors reported by the stream.", nil, nil),
		entities:    prometheus.NewDesc(namespace+"_entities", "Entities currently held in fleet state.", []string{"kind"}, nil),
		connected:   prometheus.NewDesc(namespace+"_stream_connected", "Whether the stream connection is open.", nil, nil),
		lastMessage: prometheus.NewDesc(namespace+"_stream_last_message_timestamp_seconds", "Unix time of the last stream message.", nil, nil),
		feedSize:    prometheus.NewDesc(namespace+"_notifications", "Entries in the notification feed.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.frames
	ch <- c.malformed
	ch <- c.updates
	ch <- c.events
	ch <- c.alerts
	ch <- c.errors
	ch <- c.entities
	ch <- c.connected
	ch <- c.lastMessage
	ch <- c.feedSize
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.tracker.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(m.FramesReceived))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(m.MalformedFrames))
	ch <- prometheus.MustNewConstMetric(c.updates, prometheus.CounterValue, float64(m.DeviceUpdates), "device")
	ch <- prometheus.MustNewConstMetric(c.updates, prometheus.CounterValue, float64(m.PositionUpdates), "position")
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(m.EventsReceived))
	ch <- prometheus.MustNewConstMetric(c.alerts, prometheus.CounterValue, float64(m.AlertsRaised))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(m.StreamErrors))
	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(m.Devices), "device")
	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(m.Positions), "position")

	connected := 0.0
	if m.Connected {
		connected = 1
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connected)

	last := 0.0
	if !m.LastMessageAt.IsZero() {
		last = float64(m.LastMessageAt.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(c.lastMessage, prometheus.GaugeValue, last)
	ch <- prometheus.MustNewConstMetric(c.feedSize, prometheus.GaugeValue, float64(m.NotificationSize))
}

// NewRegistry returns a registry holding the collector plus the standard
// Go and process collectors.
func NewRegistry(tracker *Tracker) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(tracker),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}
