package core

import "sync/atomic"

// Stats holds process-wide counters shown in the status line and the HTTP API.
type Stats struct {
	MessagesReceived atomic.Int64
	ChatsDelivered   atomic.Int64
	Admitted         atomic.Int64
	Rejected         atomic.Int64
	CommandsRun      atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	MessagesReceived int64 `json:"messages_received"`
	ChatsDelivered   int64 `json:"chats_delivered"`
	Admitted         int64 `json:"admitted"`
	Rejected         int64 `json:"rejected"`
	CommandsRun      int64 `json:"commands_run"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesReceived: s.MessagesReceived.Load(),
		ChatsDelivered:   s.ChatsDelivered.Load(),
		Admitted:         s.Admitted.Load(),
		Rejected:         s.Rejected.Load(),
		CommandsRun:      s.CommandsRun.Load(),
	}
}
