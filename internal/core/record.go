package core

import (
	"time"
)

// ModerationState is the derived moderation status of a record.
type ModerationState int

const (
	// StateClear means the identity may chat and connect.
	StateClear ModerationState = iota
	// StateMuted means chat output is suppressed until MutedUntil.
	StateMuted
	// StateBanned means admission is denied until an explicit unban.
	StateBanned
)

func (s ModerationState) String() string {
	switch s {
	case StateMuted:
		return "muted"
	case StateBanned:
		return "banned"
	default:
		return "clear"
	}
}

// ClientRecord is the server-held moderation and permission state for an identity.
type ClientRecord struct {
	ID          Identity    `json:"user-id"`
	Name        string      `json:"user-name"`
	MutedUntil  time.Time   `json:"datetime-unmuted"`
	MuteReason  string      `json:"mute-reason"`
	Banned      bool        `json:"is-banned"`
	BanReason   string      `json:"ban-reason"`
	Permissions Permissions `json:"permissions"`

	// ConnectedAt is session-only and never persisted.
	ConnectedAt time.Time `json:"-"`
}

// NewClientRecord returns a defaulted record for a first-seen identity.
func NewClientRecord(id Identity, name string) *ClientRecord {
	return &ClientRecord{
		ID:          id,
		Name:        name,
		Permissions: DefaultPermissions(),
	}
}

// IsMuted reports whether now is before the stored mute expiry.
func (r *ClientRecord) IsMuted(now time.Time) bool {
	return now.Before(r.MutedUntil)
}

// MuteRemaining returns how long the mute still lasts, or zero.
func (r *ClientRecord) MuteRemaining(now time.Time) time.Duration {
	if !r.IsMuted(now) {
		return 0
	}
	return r.MutedUntil.Sub(now)
}

// State returns the moderation state. Banned dominates Muted.
func (r *ClientRecord) State(now time.Time) ModerationState {
	switch {
	case r.Banned:
		return StateBanned
	case r.IsMuted(now):
		return StateMuted
	default:
		return StateClear
	}
}

// Mute moves the record into the muted state for d starting at now.
func (r *ClientRecord) Mute(now time.Time, d time.Duration, reason string) {
	r.MutedUntil = now.Add(d)
	r.MuteReason = reason
}

// ClearMute resets the mute fields.
func (r *ClientRecord) ClearMute() {
	r.MutedUntil = time.Time{}
	r.MuteReason = ""
}

// Ban marks the record banned with a reason.
func (r *ClientRecord) Ban(reason string) {
	r.Banned = true
	r.BanReason = reason
}

// Unban clears the ban fields only; mute state is independent.
func (r *ClientRecord) Unban() {
	r.Banned = false
	r.BanReason = ""
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *ClientRecord) Clone() *ClientRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Permissions = r.Permissions.Clone()
	return &cp
}
