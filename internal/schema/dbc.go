package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"go.einride.tech/can/pkg/dbc"
)

// extendedIDMask strips the extended-frame flag bit that DBC files keep in
// the most significant bit of the message id.
const extendedIDMask = 0x1FFFFFFF

// LoadDBC reads a CAN DBC file and converts its message definitions into a
// registry. The ELPIS schema shape is DBC-derived, so everything a decode
// needs (bit order, start, width, factor/offset, value tables) maps directly.
func LoadDBC(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	reg, err := FromDBC(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// FromDBC parses DBC source text into a registry.
func FromDBC(name string, data []byte) (*Registry, error) {
	parser := dbc.NewParser(name, data)
	if err := parser.Parse(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	file := parser.File()

	defs := make([]MessageDefinition, 0)
	index := make(map[int32]int)
	for _, def := range file.Defs {
		m, ok := def.(*dbc.MessageDef)
		if !ok {
			continue
		}
		msgID := uint32(m.MessageID)
		if uint64(m.MessageID)&0x80000000 != 0 {
			msgID = uint32(uint64(m.MessageID) & extendedIDMask)
		}
		md := MessageDefinition{
			Name:   string(m.Name),
			ID:     int32(msgID),
			Length: int(m.Size),
		}
		md.Signals = make([]SignalDefinition, 0, len(m.Signals))
		for _, s := range m.Signals {
			md.Signals = append(md.Signals, convertDBCSignal(s))
		}
		index[md.ID] = len(defs)
		defs = append(defs, md)
	}

	// Second pass over value tables and comments, which DBC keeps as
	// separate definitions referencing message and signal by name.
	for _, def := range file.Defs {
		switch d := def.(type) {
		case *dbc.ValueDescriptionsDef:
			if d.ObjectType != dbc.ObjectTypeSignal {
				continue
			}
			sig := findDBCSignal(defs, index, uint32(d.MessageID), string(d.SignalName))
			if sig == nil {
				continue
			}
			choices := make(map[string]int64, len(d.ValueDescriptions))
			for _, vd := range d.ValueDescriptions {
				choices[vd.Description] = int64(vd.Value)
			}
			sig.Choices = choices
		case *dbc.CommentDef:
			switch d.ObjectType {
			case dbc.ObjectTypeMessage:
				if i, ok := index[maskDBCID(uint32(d.MessageID))]; ok {
					defs[i].Comment = d.Comment
				}
			case dbc.ObjectTypeSignal:
				if sig := findDBCSignal(defs, index, uint32(d.MessageID), string(d.SignalName)); sig != nil {
					sig.Comment = d.Comment
				}
			}
		}
	}

	return NewRegistry(defs), nil
}

func convertDBCSignal(s dbc.SignalDef) SignalDefinition {
	start := int(s.StartBit)
	out := SignalDefinition{
		Name:        string(s.Name),
		Start:       &start,
		Length:      int(s.Size),
		IsBigEndian: s.IsBigEndian,
		IsSigned:    s.IsSigned,
		Unit:        s.Unit,
	}
	factor := s.Factor
	offset := s.Offset
	out.Scale = &factor
	out.Offset = &offset
	// A [0|0] range in DBC means "no range declared".
	if s.Minimum != 0 || s.Maximum != 0 {
		minimum := s.Minimum
		maximum := s.Maximum
		out.Minimum = &minimum
		out.Maximum = &maximum
	}
	if s.IsMultiplexerSwitch {
		out.IsMultiplexer = true
	}
	if s.IsMultiplexed {
		switchValue := int64(s.MultiplexerSwitch)
		out.MultiplexerIDs = MultiplexerIDs{
			Raw:    []byte(fmt.Sprintf("%d", switchValue)),
			Single: &switchValue,
		}
	}
	return out
}

func findDBCSignal(defs []MessageDefinition, index map[int32]int, msgID uint32, name string) *SignalDefinition {
	i, ok := index[maskDBCID(msgID)]
	if !ok {
		return nil
	}
	for j := range defs[i].Signals {
		if defs[i].Signals[j].Name == name {
			return &defs[i].Signals[j]
		}
	}
	return nil
}

func maskDBCID(id uint32) int32 {
	if id&0x80000000 != 0 {
		id &= extendedIDMask
	}
	return int32(id)
}
