package session

import (
	"strconv"
	"time"

	"corridorbots/pkg/corridor"
	providertypes "corridorbots/pkg/provider/types"
)

// SnapshotSummary is the part of the latest snapshot worth showing operators.
type SnapshotSummary struct {
	ReceivedAt       time.Time `json:"received_at"`
	Index            *int      `json:"index,omitempty"`
	CorridorSize     *int      `json:"corridor_size,omitempty"`
	Locked           bool      `json:"locked"`
	Text             string    `json:"text,omitempty"`
	HasLeft          bool      `json:"has_left"`
	HasRight         bool      `json:"has_right"`
	IncomingRequests int       `json:"incoming_requests"`
}

// Status is a point-in-time view of one session.
type Status struct {
	Bot          string                   `json:"bot"`
	State        State                    `json:"state"`
	Policy       string                   `json:"policy"`
	Typing       bool                     `json:"typing"`
	LastText     string                   `json:"last_text,omitempty"`
	Ticks        uint64                   `json:"ticks"`
	Snapshot     *SnapshotSummary         `json:"snapshot,omitempty"`
	LastDecision *DecisionRecord          `json:"last_decision,omitempty"`
	Usage        providertypes.TokenUsage `json:"usage"`
	LastError    string                   `json:"last_error,omitempty"`
}

func (s *Session) Status() Status {
	s.mu.RLock()
	status := Status{
		Bot:       s.Name(),
		State:     s.state,
		Policy:    s.policy.Name(),
		Ticks:     s.ticks,
		Usage:     s.usage,
		LastError: s.lastErr,
	}
	animator := s.animator
	receivedAt := s.lastSnapshotAt
	s.mu.RUnlock()

	if animator != nil {
		status.Typing = animator.Busy()
		status.LastText = animator.LastText()
	}
	if snap, ok := s.store.Latest(); ok {
		summary := summarize(snap)
		summary.ReceivedAt = receivedAt
		status.Snapshot = &summary
	}
	if last, ok := s.history.Last(); ok {
		status.LastDecision = &last
	}

	return status
}

func summarize(snap corridor.Snapshot) SnapshotSummary {
	return SnapshotSummary{
		Index:            snap.Self.CorridorIndex,
		CorridorSize:     snap.CorridorSize,
		Locked:           snap.Self.Locked,
		Text:             snap.Self.Text,
		HasLeft:          snap.Left != nil,
		HasRight:         snap.Right != nil,
		IncomingRequests: len(snap.IncomingRequests()),
	}
}

func snapshotPayload(snap corridor.Snapshot) map[string]string {
	summary := summarize(snap)
	payload := map[string]string{
		"locked":   strconv.FormatBool(summary.Locked),
		"left":     strconv.FormatBool(summary.HasLeft),
		"right":    strconv.FormatBool(summary.HasRight),
		"incoming": strconv.Itoa(summary.IncomingRequests),
	}
	if summary.Index != nil {
		payload["index"] = strconv.Itoa(*summary.Index)
	}
	if summary.CorridorSize != nil {
		payload["size"] = strconv.Itoa(*summary.CorridorSize)
	}
	return payload
}
