package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailureReasonString(t *testing.T) {
	cases := map[FailureReason]string{
		FailureNone:              "none",
		FailureNetwork:           "network",
		FailureInconsistentData:  "inconsistent_data",
		FailureDatabase:          "database",
		FailureEntityGone:        "entity_gone",
		FailureAuthUnrecoverable: "auth_unrecoverable",
		FailureReason(99):        "unknown",
	}

	for reason, want := range cases {
		assert.Equal(t, want, reason.String())
	}
}

func TestFailureReasonOK(t *testing.T) {
	assert.True(t, FailureNone.OK())
	assert.True(t, FailureEntityGone.OK())
	assert.False(t, FailureNetwork.OK())
	assert.False(t, FailureInconsistentData.OK())
	assert.False(t, FailureDatabase.OK())
	assert.False(t, FailureAuthUnrecoverable.OK())
}

func TestFailureReasonTransient(t *testing.T) {
	assert.True(t, FailureNetwork.Transient())
	assert.True(t, FailureDatabase.Transient())
	assert.False(t, FailureNone.Transient())
	assert.False(t, FailureInconsistentData.Transient())
	assert.False(t, FailureEntityGone.Transient())
}

func TestTokenExpiresWithin(t *testing.T) {
	state := TokenState{ExpiresAt: time.Now().Add(10 * time.Minute)}

	assert.False(t, state.ExpiresWithin(5*time.Minute))
	assert.True(t, state.ExpiresWithin(15*time.Minute))

	expired := TokenState{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, expired.ExpiresWithin(0))
}
