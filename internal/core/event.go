package core

import "time"

// EventKind classifies notifications emitted for external observers.
type EventKind int

const (
	// EventConnected fires after a session is admitted.
	EventConnected EventKind = iota
	// EventDisconnected fires after a session is cleaned up.
	EventDisconnected
	// EventRejected fires when a handshake is refused.
	EventRejected
	// EventMuted fires on Clear -> Muted.
	EventMuted
	// EventUnmuted fires on Muted -> Clear, by command or expiry.
	EventUnmuted
	// EventBanned fires on any -> Banned.
	EventBanned
	// EventUnbanned fires on Banned -> Clear.
	EventUnbanned
	// EventKicked fires for every session closed by kick-all.
	EventKicked
	// EventPermissionChanged fires on grant or revoke.
	EventPermissionChanged
)

var eventKindNames = map[EventKind]string{
	EventConnected:         "connected",
	EventDisconnected:      "disconnected",
	EventRejected:          "rejected",
	EventMuted:             "muted",
	EventUnmuted:           "unmuted",
	EventBanned:            "banned",
	EventUnbanned:          "unbanned",
	EventKicked:            "kicked",
	EventPermissionChanged: "permission_changed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event describes something that happened to an identity.
type Event struct {
	Kind     EventKind
	Identity Identity
	Name     string
	Reason   string
	At       time.Time
}
