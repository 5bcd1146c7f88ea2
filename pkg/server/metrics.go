package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/clock"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	clock     clock.Clock
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (TCP and WebSocket)
	ActiveConnections atomic.Int64 // current open connections
	FailedLogins      atomic.Int64 // rejected login attempts
	SuccessfulLogins  atomic.Int64 // accepted login attempts
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Frame counters
	FramesIn      atomic.Int64 // frames read from clients
	FramesOut     atomic.Int64 // frames written to clients
	FramesDropped atomic.Int64 // malformed, unexpected or unroutable frames

	// Relay counters
	ChatMessages   atomic.Int64 // broadcast chat messages relayed
	DirectMessages atomic.Int64 // direct messages relayed
	PingsRelayed   atomic.Int64 // pings forwarded to their target
	PongsRelayed   atomic.Int64 // pongs returned to their origin
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics(clk clock.Clock) *Metrics {
	return &Metrics{
		clock:     clk,
		startTime: clk.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulLogins  int64 `json:"successful_logins"`
	FailedLogins      int64 `json:"failed_logins"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	FramesIn      int64 `json:"frames_in"`
	FramesOut     int64 `json:"frames_out"`
	FramesDropped int64 `json:"frames_dropped"`

	ChatMessages   int64 `json:"chat_messages"`
	DirectMessages int64 `json:"direct_messages"`
	PingsRelayed   int64 `json:"pings_relayed"`
	PongsRelayed   int64 `json:"pongs_relayed"`
}

func (m *Metrics) uptime() time.Duration {
	return m.clock.Now().Sub(m.startTime)
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := m.uptime()
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulLogins:  m.SuccessfulLogins.Load(),
		FailedLogins:      m.FailedLogins.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		FramesIn:          m.FramesIn.Load(),
		FramesOut:         m.FramesOut.Load(),
		FramesDropped:     m.FramesDropped.Load(),
		ChatMessages:      m.ChatMessages.Load(),
		DirectMessages:    m.DirectMessages.Load(),
		PingsRelayed:      m.PingsRelayed.Load(),
		PongsRelayed:      m.PongsRelayed.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a metrics summary to log.
func (m *Metrics) LogSummary(log *slog.Logger) {
	s := m.Snapshot()
	log.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"frames_in", s.FramesIn,
		"frames_out", s.FramesOut,
		"frames_dropped", s.FramesDropped,
		"chat_msgs", s.ChatMessages+s.DirectMessages,
		"pings", s.PingsRelayed,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(log *slog.Logger, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := m.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(log)
			}
		}
	}()
}
