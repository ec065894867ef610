package pipeline

import (
	"sync"
	"time"
)

// Health is a point-in-time view of a step's error state.
type Health struct {
	Healthy    bool      `json:"healthy"`
	LastCheck  time.Time `json:"last_check"`
	ErrorCount int       `json:"error_count"`
	LastError  string    `json:"last_error,omitempty"`
}

// Witness records the errors reported by one step. The error stays flagged until
// the step next performs successfully.
type Witness struct {
	mu         sync.Mutex
	err        error
	errorCount int
	lastCheck  time.Time
}

// Flag records err. A nil err is the same as Clear.
func (w *Witness) Flag(err error) {
	if err == nil {
		w.Clear()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
	w.errorCount++
	w.lastCheck = time.Now()
}

// Clear marks the step healthy. The cumulative error count is kept.
func (w *Witness) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = nil
	w.lastCheck = time.Now()
}

// Err returns the currently flagged error, if any.
func (w *Witness) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Health returns a snapshot of the witness state.
func (w *Witness) Health() Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := Health{
		Healthy:    w.err == nil,
		LastCheck:  w.lastCheck,
		ErrorCount: w.errorCount,
	}
	if w.err != nil {
		h.LastError = w.err.Error()
	}
	return h
}
