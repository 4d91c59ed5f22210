package types

import "sort"

// Event represents a typed event emitted when jar state changes. Attributes
// are flat strings so sinks can index them without knowing the event shape.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Keys returns the attribute keys in sorted order.
func (e *Event) Keys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.Attributes))
	for key := range e.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
