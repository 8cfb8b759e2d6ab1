package models

import "time"

const (
	KindInboundChange      = "inbound_change"
	KindOutboundSubmission = "outbound_submission"
)

const (
	ItemStatusPending   = "pending"
	ItemStatusRetry     = "retry"
	ItemStatusDone      = "done"
	ItemStatusAbandoned = "abandoned"
)

// QueuedItem is one durable unit of sync work: either an inbound change
// notification to apply locally or an outbound submission (e.g. a
// transaction that could not be posted) to retry against the backend.
type QueuedItem struct {
	ID            string     `json:"id"`
	Seq           int64      `json:"seq"`
	Kind          string     `json:"kind"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	LastError     *string    `json:"last_error"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
}

// AbandonedItem is a QueuedItem that exceeded the retry ceiling. It is
// surfaced for operator visibility, never silently dropped.
type AbandonedItem struct {
	QueuedItem
	AbandonedAt time.Time `json:"abandoned_at"`
}
