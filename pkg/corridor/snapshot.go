package corridor

import (
	"encoding/json"
	"fmt"
)

// Self is the bot's own view of itself inside the corridor.
type Self struct {
	ID            int64
	Text          string
	Locked        bool
	CorridorIndex *int
}

// Neighbor is the adjacent participant on one side of the bot.
type Neighbor struct {
	ID                 int64
	Text               string
	Locked             bool
	IsFriend           bool
	HasIncomingRequest bool
	HasOutgoingRequest bool
}

// Snapshot is a point-in-time view pushed by the corridor backend.
//
// Values are treated as immutable once received; a nil Left or Right means
// there is no neighbor on that side. HasSelf is false when the push carried
// no "me" object, in which case Self is zero.
type Snapshot struct {
	Self         Self
	HasSelf      bool
	Left         *Neighbor
	Right        *Neighbor
	CorridorSize *int
}

// Neighbor returns the neighbor on side d, or nil when absent.
func (s Snapshot) Neighbor(d Direction) *Neighbor {
	switch d {
	case DirectionLeft:
		return s.Left
	case DirectionRight:
		return s.Right
	default:
		return nil
	}
}

// HasNeighbor reports whether a neighbor exists on side d.
func (s Snapshot) HasNeighbor(d Direction) bool {
	return s.Neighbor(d) != nil
}

// IncomingRequests lists the sides that currently carry a friend request addressed to the bot.
func (s Snapshot) IncomingRequests() []Direction {
	sides := make([]Direction, 0, 2)
	for _, d := range Sides {
		if n := s.Neighbor(d); n != nil && n.HasIncomingRequest {
			sides = append(sides, d)
		}
	}

	return sides
}

type wireSnapshot struct {
	Me       *wireSelf     `json:"me"`
	Left     *wireNeighbor `json:"left"`
	Right    *wireNeighbor `json:"right"`
	Corridor *struct {
		Size *int `json:"size"`
	} `json:"corridor"`
}

type wireSelf struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Locked  bool   `json:"locked"`
	MyIndex *int   `json:"myIndex"`
}

type wireNeighbor struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	Locked        bool   `json:"locked"`
	Friend        bool   `json:"friend"`
	RequestToMe   bool   `json:"requestToMe"`
	RequestFromMe bool   `json:"requestFromMe"`
}

// DecodeSnapshot parses one snapshot message body as delivered on the push channel.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var wire wireSnapshot
	if err := json.Unmarshal(data, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	var snap Snapshot
	if wire.Me != nil {
		snap.HasSelf = true
		snap.Self = Self{
			ID:            wire.Me.ID,
			Text:          wire.Me.Text,
			Locked:        wire.Me.Locked,
			CorridorIndex: wire.Me.MyIndex,
		}
	}
	snap.Left = wire.Left.neighbor()
	snap.Right = wire.Right.neighbor()
	if wire.Corridor != nil {
		snap.CorridorSize = wire.Corridor.Size
	}

	return snap, nil
}

func (w *wireNeighbor) neighbor() *Neighbor {
	if w == nil {
		return nil
	}

	return &Neighbor{
		ID:                 w.ID,
		Text:               w.Text,
		Locked:             w.Locked,
		IsFriend:           w.Friend,
		HasIncomingRequest: w.RequestToMe,
		HasOutgoingRequest: w.RequestFromMe,
	}
}
