package schema

import (
	"encoding/json"
	"sort"
)

// SignalDefinition describes one named bit field within a message payload.
// Instances are immutable once the registry is built.
type SignalDefinition struct {
	Name              string
	Start             *int
	Length            int
	IsBigEndian       bool
	Default           string
	Minimum           *float64
	Maximum           *float64
	Offset            *float64
	Scale             *float64
	MultiplexerSignal string
	SPN               string
	Choices           map[string]int64
	Unit              string
	Comment           string
	IsSigned          bool
	IsMultiplexer     bool
	IsFloat           bool
	MultiplexerIDs    MultiplexerIDs
}

// StartBit resolves the effective start bit: bit 7 for Motorola signals and
// bit 0 for Intel signals when the schema leaves it unset. Each value is the
// start of the first byte in that convention's own numbering.
func (s *SignalDefinition) StartBit() int {
	if s.Start != nil {
		return *s.Start
	}
	if s.IsBigEndian {
		return 7
	}
	return 0
}

// ChoiceLabel returns the enumerated label declared for the given raw value.
func (s *SignalDefinition) ChoiceLabel(raw int64) (string, bool) {
	for label, value := range s.Choices {
		if value == raw {
			return label, true
		}
	}
	return "", false
}

// MessageDefinition is one schema entry, keyed by its numeric identifier.
type MessageDefinition struct {
	Name    string
	ID      int32
	Length  int
	Comment string
	Signals []SignalDefinition
}

// MultiplexerIDs preserves the schema producer's multiplexer id value, whose
// shape is producer-defined. The raw document bytes are kept verbatim; when
// the value parses as a single integer or a set of integers a typed view is
// available. Multiplex-aware signal suppression is the caller's job.
type MultiplexerIDs struct {
	Raw    json.RawMessage
	Single *int64
	Set    []int64
}

func (m *MultiplexerIDs) UnmarshalJSON(data []byte) error {
	m.Raw = append(json.RawMessage(nil), data...)
	m.Single = nil
	m.Set = nil
	var single int64
	if err := json.Unmarshal(data, &single); err == nil {
		m.Single = &single
		return nil
	}
	var set []int64
	if err := json.Unmarshal(data, &set); err == nil {
		m.Set = set
	}
	return nil
}

func (m MultiplexerIDs) MarshalJSON() ([]byte, error) {
	if len(m.Raw) == 0 {
		return []byte("null"), nil
	}
	return m.Raw, nil
}

// Present reports whether the schema carried any multiplexer id value.
func (m MultiplexerIDs) Present() bool {
	return len(m.Raw) > 0
}

// Contains reports whether the given multiplexer value selects this signal.
// Opaque shapes match nothing.
func (m MultiplexerIDs) Contains(id int64) bool {
	if m.Single != nil {
		return *m.Single == id
	}
	for _, v := range m.Set {
		if v == id {
			return true
		}
	}
	return false
}

// Registry maps message identifiers to their definitions. It is built once
// and never mutated afterward, so concurrent lookups need no locking.
type Registry struct {
	messages map[int32]*MessageDefinition
}

// NewRegistry builds a registry from the given definitions. When the source
// declares duplicate ids the later definition silently wins.
func NewRegistry(defs []MessageDefinition) *Registry {
	messages := make(map[int32]*MessageDefinition, len(defs))
	for i := range defs {
		def := defs[i]
		messages[def.ID] = &def
	}
	return &Registry{messages: messages}
}

// Lookup finds the definition for an identifier. Absence is a normal outcome,
// not an error: unknown identifiers degrade gracefully at decode time.
func (r *Registry) Lookup(id int32) (*MessageDefinition, bool) {
	if r == nil {
		return nil, false
	}
	def, ok := r.messages[id]
	return def, ok
}

// Count returns the number of message definitions held.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	return len(r.messages)
}

// IDs returns all registered identifiers in ascending order.
func (r *Registry) IDs() []int32 {
	if r == nil {
		return nil
	}
	ids := make([]int32, 0, len(r.messages))
	for id := range r.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
