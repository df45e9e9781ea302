package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionStateTransitions(t *testing.T) {
	tests := []struct {
		from, to ConnectionState
		want     bool
	}{
		{StateNotConnected, StatePendingAuthorization, true},
		{StateNotConnected, StateActive, false},
		{StatePendingAuthorization, StateActive, true},
		{StatePendingAuthorization, StatePendingAuthorization, true},
		{StateActive, StateActive, true},
		{StateActive, StatePendingAuthorization, false},
		{StateActive, StateNotConnected, false},
		{ConnectionState("revoked"), StateActive, false},
		{ConnectionState("revoked"), ConnectionState("revoked"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestConnectionIsActive(t *testing.T) {
	assert.False(t, Connection{State: StatePendingAuthorization}.IsActive())
	assert.True(t, Connection{State: StateActive}.IsActive())
}

func TestLabelsRoundTripThroughColumn(t *testing.T) {
	v, err := Labels{"INBOX", "UNREAD"}.Value()
	assert.NoError(t, err)
	assert.Equal(t, `["INBOX","UNREAD"]`, v)

	var got Labels
	assert.NoError(t, got.Scan([]byte(`["INBOX"]`)))
	assert.Equal(t, Labels{"INBOX"}, got)

	assert.NoError(t, got.Scan(nil))
	assert.Equal(t, Labels{}, got)
}
