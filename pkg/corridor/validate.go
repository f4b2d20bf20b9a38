package corridor

import (
	"fmt"
	"strings"
)

// DefaultMaxTextLength is the text cap applied when none is configured.
const DefaultMaxTextLength = 1000

// ValidatedAction is an action whose every field is legal for the snapshot it was checked against.
//
// Accept and Reject hold the sides whose incoming requests are resolved; a
// single accept/reject decision may cover both sides.
type ValidatedAction struct {
	Move        Direction
	Lock        LockChange
	SendRequest Direction
	Accept      []Direction
	Reject      []Direction
	Text        string
}

// IsEmpty reports whether nothing survived validation.
func (v ValidatedAction) IsEmpty() bool {
	return v.Move == DirectionNone &&
		(v.Lock == LockNone || v.Lock == "") &&
		v.SendRequest == DirectionNone &&
		len(v.Accept) == 0 &&
		len(v.Reject) == 0 &&
		v.Text == ""
}

// String renders a compact summary for logs and status output.
func (v ValidatedAction) String() string {
	if v.IsEmpty() {
		return "none"
	}

	parts := make([]string, 0, 6)
	if v.Move != DirectionNone {
		parts = append(parts, "move="+string(v.Move))
	}
	if v.Lock != LockNone && v.Lock != "" {
		parts = append(parts, "lock="+string(v.Lock))
	}
	if v.SendRequest != DirectionNone {
		parts = append(parts, "request="+string(v.SendRequest))
	}
	for _, d := range v.Accept {
		parts = append(parts, "accept="+string(d))
	}
	for _, d := range v.Reject {
		parts = append(parts, "reject="+string(d))
	}
	if v.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%d chars", len([]rune(v.Text))))
	}

	return strings.Join(parts, " ")
}

// Validate checks each field of action against snap independently.
//
// Moves and directional requests toward an absent neighbor are dropped,
// accept/reject expand to every side with an incoming request, and text is
// trimmed, dropped when blank and clipped to maxText runes. A non-positive
// maxText falls back to DefaultMaxTextLength.
func Validate(snap Snapshot, action Action, maxText int) ValidatedAction {
	action = action.Normalize()

	out := ValidatedAction{Lock: action.Lock}

	if d := action.Move.Direction(); d != DirectionNone && snap.HasNeighbor(d) {
		out.Move = d
	}

	switch action.Request {
	case RequestLeft, RequestRight:
		if d := action.Request.Direction(); snap.HasNeighbor(d) {
			out.SendRequest = d
		}
	case RequestAccept:
		out.Accept = snap.IncomingRequests()
	case RequestReject:
		out.Reject = snap.IncomingRequests()
	}

	out.Text = ClipText(action.Text, maxText)

	return out
}

// ClipText trims text and truncates it to at most max runes. Blank input yields "".
func ClipText(text string, max int) string {
	if max <= 0 {
		max = DefaultMaxTextLength
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	return string(runes[:max])
}
