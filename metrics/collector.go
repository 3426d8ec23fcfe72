// Package metrics exposes each channel's rolling counters (§7 "live
// status summary") as a Prometheus collector pulled on scrape, the way
// the pack's TCPInfoCollector pulls live connection state rather than
// pushing to pre-registered gauges.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jangala-dev/comsrv/channel"
)

type channelEntry struct {
	name  string
	stats *channel.Stats
	state func() channel.State
}

// ChannelCollector is a prometheus.Collector pulling Stats snapshots
// from every registered channel at scrape time. Registering/
// unregistering channels is safe to do concurrently with a scrape.
type ChannelCollector struct {
	mu       sync.Mutex
	channels map[uint32]channelEntry

	framesSent   *prometheus.Desc
	framesRecv   *prometheus.Desc
	crcFailures  *prometheus.Desc
	timeouts     *prometheus.Desc
	exceptions   *prometheus.Desc
	commandsOK   *prometheus.Desc
	commandsFail *prometheus.Desc
	stateDesc    *prometheus.Desc
}

// NewChannelCollector builds an empty collector. Register it once with
// a prometheus.Registerer and add channels to it as pipelines start.
func NewChannelCollector() *ChannelCollector {
	labels := []string{"channel_id", "channel_name"}
	return &ChannelCollector{
		channels:     make(map[uint32]channelEntry),
		framesSent:   prometheus.NewDesc("comsrv_channel_frames_sent_total", "Frames sent on this channel.", labels, nil),
		framesRecv:   prometheus.NewDesc("comsrv_channel_frames_received_total", "Frames received on this channel.", labels, nil),
		crcFailures:  prometheus.NewDesc("comsrv_channel_crc_failures_total", "CRC/frame-check failures on this channel.", labels, nil),
		timeouts:     prometheus.NewDesc("comsrv_channel_timeouts_total", "Request timeouts on this channel.", labels, nil),
		exceptions:   prometheus.NewDesc("comsrv_channel_modbus_exceptions_total", "Modbus exception responses on this channel.", labels, nil),
		commandsOK:   prometheus.NewDesc("comsrv_channel_commands_succeeded_total", "Commands executed successfully on this channel.", labels, nil),
		commandsFail: prometheus.NewDesc("comsrv_channel_commands_failed_total", "Commands that failed execution on this channel.", labels, nil),
		stateDesc:    prometheus.NewDesc("comsrv_channel_state", "Pipeline lifecycle state (0=stopped,1=starting,2=running,3=recovering).", labels, nil),
	}
}

// Register adds a channel's stats to the collector, keyed by its
// config ID. Re-registering the same ID replaces the entry.
func (c *ChannelCollector) Register(channelID uint32, name string, stats *channel.Stats, state func() channel.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channelID] = channelEntry{name: name, stats: stats, state: state}
}

// Unregister removes a channel from the collector, e.g. when its
// pipeline is torn down.
func (c *ChannelCollector) Unregister(channelID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channelID)
}

func (c *ChannelCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.framesSent
	descs <- c.framesRecv
	descs <- c.crcFailures
	descs <- c.timeouts
	descs <- c.exceptions
	descs <- c.commandsOK
	descs <- c.commandsFail
	descs <- c.stateDesc
}

func (c *ChannelCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	entries := make(map[uint32]channelEntry, len(c.channels))
	for id, e := range c.channels {
		entries[id] = e
	}
	c.mu.Unlock()

	for id, e := range entries {
		idLabel := strconv.FormatUint(uint64(id), 10)
		snap := e.stats.Snapshot()

		metrics <- prometheus.MustNewConstMetric(c.framesSent, prometheus.CounterValue, float64(snap.FramesSent), idLabel, e.name)
		metrics <- prometheus.MustNewConstMetric(c.framesRecv, prometheus.CounterValue, float64(snap.FramesRecv), idLabel, e.name)
		metrics <- prometheus.MustNewConstMetric(c.crcFailures, prometheus.CounterValue, float64(snap.CRCFailures), idLabel, e.name)
		metrics <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(snap.Timeouts), idLabel, e.name)
		metrics <- prometheus.MustNewConstMetric(c.exceptions, prometheus.CounterValue, float64(snap.Exceptions), idLabel, e.name)
		metrics <- prometheus.MustNewConstMetric(c.commandsOK, prometheus.CounterValue, float64(snap.CommandsOK), idLabel, e.name)
		metrics <- prometheus.MustNewConstMetric(c.commandsFail, prometheus.CounterValue, float64(snap.CommandsFail), idLabel, e.name)
		if e.state != nil {
			metrics <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(e.state()), idLabel, e.name)
		}
	}
}
