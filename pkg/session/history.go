package session

import (
	"sync"
	"time"
)

const DefaultHistoryLimit = 20

const (
	OutcomeActed   = "acted"
	OutcomeEmpty   = "empty"
	OutcomeSkipped = "skipped"
)

// DecisionRecord is one tick's decision outcome.
type DecisionRecord struct {
	At      time.Time `json:"at"`
	TickID  string    `json:"tick_id"`
	Policy  string    `json:"policy"`
	Outcome string    `json:"outcome"`
	Summary string    `json:"summary,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// History keeps the most recent decisions, oldest first.
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []DecisionRecord
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

func (h *History) Append(record DecisionRecord) {
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, record)
	if overflow := len(h.entries) - h.limit; overflow > 0 {
		h.entries = append(h.entries[:0:0], h.entries[overflow:]...)
	}
}

func (h *History) List() []DecisionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return nil
	}

	out := make([]DecisionRecord, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns the newest record.
func (h *History) Last() (DecisionRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return DecisionRecord{}, false
	}
	return h.entries[len(h.entries)-1], true
}
