package types

import (
	"sort"
	"strings"
)

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// String renders the event as "type k=v ..." with sorted keys, which keeps
// log lines stable.
func (e *Event) String() string {
	if e == nil {
		return ""
	}
	keys := make([]string, 0, len(e.Attributes))
	for key := range e.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(e.Type)
	for _, key := range keys {
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(e.Attributes[key])
	}
	return b.String()
}
