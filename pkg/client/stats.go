package client

import (
	"log/slog"
	"sync/atomic"
)

// Stats tracks per-session counters. All fields are updated atomically.
type Stats struct {
	FramesIn      atomic.Int64 // frames read from the transport
	FramesOut     atomic.Int64 // frames written to the transport
	FramesDropped atomic.Int64 // undecodable or unexpected frames
	ChatReceived  atomic.Int64 // chat events delivered to OnMessage
	PingsAnswered atomic.Int64 // inbound pings answered with a pong
	PingsComplete atomic.Int64 // own pings completed with a latency
	OpsCancelled  atomic.Int64 // handles fired with a cancellation
	HandlerPanics atomic.Int64 // completion handles that panicked
}

// StatsSnapshot is a point-in-time copy of Stats plus live gauges.
type StatsSnapshot struct {
	FramesIn      int64 `json:"frames_in"`
	FramesOut     int64 `json:"frames_out"`
	FramesDropped int64 `json:"frames_dropped"`
	ChatReceived  int64 `json:"chat_received"`
	PingsAnswered int64 `json:"pings_answered"`
	PingsComplete int64 `json:"pings_complete"`
	OpsCancelled  int64 `json:"ops_cancelled"`
	HandlerPanics int64 `json:"handler_panics"`

	Pending int `json:"pending"`
	Users   int `json:"users"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesIn:      s.FramesIn.Load(),
		FramesOut:     s.FramesOut.Load(),
		FramesDropped: s.FramesDropped.Load(),
		ChatReceived:  s.ChatReceived.Load(),
		PingsAnswered: s.PingsAnswered.Load(),
		PingsComplete: s.PingsComplete.Load(),
		OpsCancelled:  s.OpsCancelled.Load(),
		HandlerPanics: s.HandlerPanics.Load(),
	}
}

// LogSummary writes the snapshot to logger.
func (s StatsSnapshot) LogSummary(logger *slog.Logger) {
	logger.Info("session stats",
		"frames_in", s.FramesIn,
		"frames_out", s.FramesOut,
		"frames_dropped", s.FramesDropped,
		"pings_complete", s.PingsComplete,
		"ops_cancelled", s.OpsCancelled,
		"pending", s.Pending,
		"users", s.Users,
	)
}
