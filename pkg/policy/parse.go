package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"corridorbots/pkg/corridor"
)

var actionFields = []string{"move", "lock", "text", "request"}

// ParseAction reads a model response into an action.
//
// The response must be a single JSON object carrying at least one of the
// action fields. Field values that are not exact enumeration members become
// none; non-string values are treated as empty.
func ParseAction(response string) (corridor.Action, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &fields); err != nil {
		return corridor.Action{}, fmt.Errorf("decode action: %w", err)
	}
	if fields == nil {
		return corridor.Action{}, errors.New("decode action: response is not an object")
	}

	known := 0
	for _, name := range actionFields {
		if _, ok := fields[name]; ok {
			known++
		}
	}
	if known == 0 {
		return corridor.Action{}, errors.New("decode action: no action fields present")
	}

	return corridor.Action{
		Move:    corridor.ParseMove(stringField(fields, "move")),
		Lock:    corridor.ParseLock(stringField(fields, "lock")),
		Text:    stringField(fields, "text"),
		Request: corridor.ParseRequest(stringField(fields, "request")),
	}, nil
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}

	return value
}
