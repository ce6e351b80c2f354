package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnreadable indicates the schema source could not be accessed.
	ErrUnreadable = errors.New("schema source unreadable")
	// ErrMalformed indicates the schema source does not parse into the
	// expected shape.
	ErrMalformed = errors.New("schema source malformed")
)

// JSONSignal mirrors one signal object in a messages.json document. Optional
// fields are pointers so that absent and zero values stay distinguishable.
type JSONSignal struct {
	Name              string           `json:"name"`
	Start             *int             `json:"start"`
	Length            int              `json:"length"`
	IsBigEndian       *bool            `json:"is_big_endian"`
	Default           *string          `json:"default"`
	Minimum           *float64         `json:"minimum"`
	Maximum           *float64         `json:"maximum"`
	Offset            *float64         `json:"offset"`
	MultiplexerSignal *string          `json:"multiplexer_signal"`
	SPN               *string          `json:"spn"`
	Choices           map[string]int64 `json:"choices"`
	Scale             *float64         `json:"scale"`
	Unit              *string          `json:"unit"`
	Comment           *string          `json:"comment"`
	IsSigned          *bool            `json:"is_signed"`
	IsMultiplexer     *bool            `json:"is_multiplexer"`
	IsFloat           *bool            `json:"is_float"`
	MultiplexerIDs    MultiplexerIDs   `json:"multiplexer_ids"`
}

// JSONMessage mirrors one message object in a messages.json document.
type JSONMessage struct {
	Name    string       `json:"name"`
	Length  int          `json:"length"`
	ID      int32        `json:"id"`
	Comment *string      `json:"comment"`
	Signals []JSONSignal `json:"signals"`
}

// Load reads a messages.json schema document from disk and builds the
// registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	reg, err := FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// FromBytes parses a JSON array of message definitions.
func FromBytes(data []byte) (*Registry, error) {
	var msgs []JSONMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromJSON(msgs)
}

// FromJSON converts decoded message objects into a registry, applying the
// schema defaults: Motorola bit order and an unset clamp range.
func FromJSON(msgs []JSONMessage) (*Registry, error) {
	defs := make([]MessageDefinition, 0, len(msgs))
	for i, m := range msgs {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("%w: message[%d] missing name", ErrMalformed, i)
		}
		def := MessageDefinition{
			Name:    m.Name,
			ID:      m.ID,
			Length:  m.Length,
			Comment: stringValue(m.Comment),
		}
		def.Signals = make([]SignalDefinition, 0, len(m.Signals))
		for j, s := range m.Signals {
			if strings.TrimSpace(s.Name) == "" {
				return nil, fmt.Errorf("%w: message %s signal[%d] missing name", ErrMalformed, m.Name, j)
			}
			def.Signals = append(def.Signals, SignalDefinition{
				Name:              s.Name,
				Start:             s.Start,
				Length:            s.Length,
				IsBigEndian:       boolValue(s.IsBigEndian, true),
				Default:           stringValue(s.Default),
				Minimum:           s.Minimum,
				Maximum:           s.Maximum,
				Offset:            s.Offset,
				Scale:             s.Scale,
				MultiplexerSignal: stringValue(s.MultiplexerSignal),
				SPN:               stringValue(s.SPN),
				Choices:           s.Choices,
				Unit:              stringValue(s.Unit),
				Comment:           stringValue(s.Comment),
				IsSigned:          boolValue(s.IsSigned, false),
				IsMultiplexer:     boolValue(s.IsMultiplexer, false),
				IsFloat:           boolValue(s.IsFloat, false),
				MultiplexerIDs:    s.MultiplexerIDs,
			})
		}
		defs = append(defs, def)
	}
	return NewRegistry(defs), nil
}

// EnsureLoaded validates the path before loading, so misconfiguration is
// reported against the path rather than the parse.
func EnsureLoaded(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty schema path", ErrUnreadable)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	if strings.EqualFold(filepath.Ext(path), ".dbc") {
		return LoadDBC(path)
	}
	return Load(path)
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func boolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
