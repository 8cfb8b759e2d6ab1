package session

import "sync/atomic"

// Activity is the process-wide transaction activity flag. The checkout
// subsystem sets it while a sale is open; the sync engine only reads it.
type Activity struct {
	active atomic.Bool
}

func NewActivity() *Activity {
	return &Activity{}
}

// SetActive is called by the checkout subsystem when a sale opens or
// closes.
func (a *Activity) SetActive(v bool) {
	a.active.Store(v)
}

func (a *Activity) Active() bool {
	return a.active.Load()
}
