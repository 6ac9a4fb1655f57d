package sensor

import (
	"slices"

	"github.com/dotcommander/asanasense/internal/rules"
)

// PlaceholderState is reported when no monitored variable parsed.
const PlaceholderState = "OK"

// Value is one attribute: a count for counter rules or the task list for list rules.
type Value struct {
	Kind  rules.Kind
	Count int
	Items []string
}

func project(kind rules.Kind, items []string) Value {
	if kind == rules.KindList {
		return Value{Kind: kind, Count: len(items), Items: items}
	}
	return Value{Kind: kind, Count: len(items)}
}

// Any returns the value as an int or a []string. Lists are copied.
func (v Value) Any() any {
	if v.Kind == rules.KindList {
		return slices.Clone(v.Items)
	}
	return v.Count
}

// Snapshot is what the host reads after each update cycle.
type Snapshot struct {
	Name       string         `json:"name"`
	State      any            `json:"state"`
	Attributes map[string]any `json:"attributes"`
}
