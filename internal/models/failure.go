package models

// FailureReason classifies the outcome of processing one sync item.
// Network failures are transient and retried through the queue;
// InconsistentData and Database failures are retried a bounded number of
// times and then abandoned; EntityGone is a terminal success (the entity
// was deleted locally).
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureNetwork
	FailureInconsistentData
	FailureDatabase
	FailureEntityGone
	FailureAuthUnrecoverable
)

func (r FailureReason) String() string {
	switch r {
	case FailureNone:
		return "none"
	case FailureNetwork:
		return "network"
	case FailureInconsistentData:
		return "inconsistent_data"
	case FailureDatabase:
		return "database"
	case FailureEntityGone:
		return "entity_gone"
	case FailureAuthUnrecoverable:
		return "auth_unrecoverable"
	default:
		return "unknown"
	}
}

// OK reports whether the outcome counts as success for queue accounting.
func (r FailureReason) OK() bool {
	return r == FailureNone || r == FailureEntityGone
}

// Transient reports whether the item should be re-enqueued for retry.
func (r FailureReason) Transient() bool {
	return r == FailureNetwork || r == FailureDatabase
}
