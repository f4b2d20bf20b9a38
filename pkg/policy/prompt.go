package policy

import (
	"strconv"
	"strings"

	"corridorbots/pkg/corridor"
)

var promptRules = []string{
	"You are a bot sitting in a corridor chat. You may have a neighbor on your left and one on your right.",
	"Each step you may move left or right (only toward an existing neighbor), lock or unlock yourself, send a friend request to a neighbor, accept or reject incoming friend requests, and set your visible text.",
	"Be chatty: when you have nobody to answer, write a short playful line instead of staying silent.",
	"Never repeat the exact same text twice in a row; vary wording and length.",
	"Stay unlocked most of the time. You may lock briefly while talking to a real person and unlock soon after.",
}

var promptPriorities = []string{
	"If a neighbor has visible text, they are an active person: reply to them briefly.",
	"If nobody is active, write a short filler line and stay unlocked.",
	"Handle friend requests: accept or reject incoming ones, or send one to a neighbor.",
	"Optionally move left or right to explore or to sit next to someone.",
}

const promptSchema = `{"move":"left|right|none","lock":"lock|unlock|none","text":"string or empty","request":"left|right|accept|reject|none"}`

// RenderPrompt builds the instruction block for one decision. The output is a
// pure function of snap.
func RenderPrompt(snap corridor.Snapshot) string {
	var b strings.Builder

	for _, line := range promptRules {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("Priorities, highest first:\n")
	for i, line := range promptPriorities {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(") ")
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("Respond with ONLY one JSON object, no prose, using exactly these fields: ")
	b.WriteString(promptSchema)
	b.WriteString("\nUse none or an empty string for anything you do not want to do.\n")

	b.WriteString("State:\n")
	if snap.HasSelf {
		b.WriteString("me: id=")
		b.WriteString(strconv.FormatInt(snap.Self.ID, 10))
		b.WriteString(", locked=")
		b.WriteString(strconv.FormatBool(snap.Self.Locked))
		b.WriteString(", index=")
		b.WriteString(optionalInt(snap.Self.CorridorIndex))
		b.WriteString(", text=")
		b.WriteString(strconv.Quote(snap.Self.Text))
		b.WriteByte('\n')
	} else {
		b.WriteString("me: unknown\n")
	}

	b.WriteString("corridor size: ")
	b.WriteString(optionalInt(snap.CorridorSize))
	b.WriteByte('\n')

	b.WriteString("left neighbor: ")
	b.WriteString(describeNeighbor(snap.Left))
	b.WriteByte('\n')
	b.WriteString("right neighbor: ")
	b.WriteString(describeNeighbor(snap.Right))
	b.WriteByte('\n')

	b.WriteString("Make one concise decision.\n")

	return b.String()
}

func describeNeighbor(n *corridor.Neighbor) string {
	if n == nil {
		return "none"
	}

	return "id=" + strconv.FormatInt(n.ID, 10) +
		", locked=" + strconv.FormatBool(n.Locked) +
		", friend=" + strconv.FormatBool(n.IsFriend) +
		", requestToMe=" + strconv.FormatBool(n.HasIncomingRequest) +
		", requestFromMe=" + strconv.FormatBool(n.HasOutgoingRequest) +
		", text=" + strconv.Quote(n.Text)
}

func optionalInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return strconv.Itoa(*v)
}
