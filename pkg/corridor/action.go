package corridor

import "strings"

// Direction names one side of the bot in the corridor.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Sides lists both corridor sides in a stable order.
var Sides = []Direction{DirectionLeft, DirectionRight}

// Move is the movement intent of an action.
type Move string

const (
	MoveNone  Move = "none"
	MoveLeft  Move = "left"
	MoveRight Move = "right"
)

// LockChange is the lock intent of an action.
type LockChange string

const (
	LockNone   LockChange = "none"
	LockLock   LockChange = "lock"
	LockUnlock LockChange = "unlock"
)

// Request is the friend-request intent of an action.
type Request string

const (
	RequestNone   Request = "none"
	RequestLeft   Request = "left"
	RequestRight  Request = "right"
	RequestAccept Request = "accept"
	RequestReject Request = "reject"
)

// Action is one decision produced by a policy.
type Action struct {
	Move    Move
	Lock    LockChange
	Text    string
	Request Request
}

// NoAction returns an action with every field set to its none variant.
func NoAction() Action {
	return Action{Move: MoveNone, Lock: LockNone, Request: RequestNone}
}

// Normalize collapses every unrecognized enumeration value to its none variant.
func (a Action) Normalize() Action {
	return Action{
		Move:    ParseMove(string(a.Move)),
		Lock:    ParseLock(string(a.Lock)),
		Text:    a.Text,
		Request: ParseRequest(string(a.Request)),
	}
}

// IsEmpty reports whether the action carries no effect at all.
func (a Action) IsEmpty() bool {
	n := a.Normalize()
	return n.Move == MoveNone && n.Lock == LockNone && n.Request == RequestNone && strings.TrimSpace(n.Text) == ""
}

// ParseMove maps a raw value to a Move. Matching is exact; anything else is MoveNone.
func ParseMove(value string) Move {
	switch Move(value) {
	case MoveLeft, MoveRight:
		return Move(value)
	default:
		return MoveNone
	}
}

// ParseLock maps a raw value to a LockChange. Matching is exact; anything else is LockNone.
func ParseLock(value string) LockChange {
	switch LockChange(value) {
	case LockLock, LockUnlock:
		return LockChange(value)
	default:
		return LockNone
	}
}

// ParseRequest maps a raw value to a Request. Matching is exact; anything else is RequestNone.
func ParseRequest(value string) Request {
	switch Request(value) {
	case RequestLeft, RequestRight, RequestAccept, RequestReject:
		return Request(value)
	default:
		return RequestNone
	}
}

// Direction returns the corridor side a move points at.
func (m Move) Direction() Direction {
	switch m {
	case MoveLeft:
		return DirectionLeft
	case MoveRight:
		return DirectionRight
	default:
		return DirectionNone
	}
}

// Direction returns the corridor side a directional request points at.
func (r Request) Direction() Direction {
	switch r {
	case RequestLeft:
		return DirectionLeft
	case RequestRight:
		return DirectionRight
	default:
		return DirectionNone
	}
}
