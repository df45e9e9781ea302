package models

import (
	"time"
)

// ConnectionState is the lifecycle state of a user's link to the external
// mail connector.
type ConnectionState string

const (
	StateNotConnected         ConnectionState = "not_connected"
	StatePendingAuthorization ConnectionState = "pending_authorization"
	StateActive               ConnectionState = "active"
)

// transitions lists the allowed moves of the connection state machine.
// Re-entering the current state is always allowed; nothing moves back
// from active.
var transitions = map[ConnectionState][]ConnectionState{
	StateNotConnected:         {StatePendingAuthorization},
	StatePendingAuthorization: {StateActive},
	StateActive:               {},
}

// Valid reports whether s is a known state.
func (s ConnectionState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a connection in state s may move to next.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Connection is the per-user record of the external account link.
type Connection struct {
	UserID            string          `db:"user_id" json:"user_id"`
	State             ConnectionState `db:"state" json:"state"`
	ExternalAccountID string          `db:"external_account_id" json:"external_account_id"`
	TriggerID         string          `db:"trigger_id" json:"trigger_id"`
	TriggerEnabled    bool            `db:"trigger_enabled" json:"trigger_enabled"`
	ConnectedAt       *time.Time      `db:"connected_at" json:"connected_at"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the connection can be used for sync and webhooks.
func (c Connection) IsActive() bool {
	return c.State == StateActive
}
