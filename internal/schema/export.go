package schema

import (
	"encoding/json"
	"os"
)

// ToJSON converts a registry back into the messages.json document shape, in
// ascending id order. Round-tripping through FromJSON yields an equivalent
// registry.
func ToJSON(r *Registry) []JSONMessage {
	ids := r.IDs()
	out := make([]JSONMessage, 0, len(ids))
	for _, id := range ids {
		def, _ := r.Lookup(id)
		msg := JSONMessage{
			Name:    def.Name,
			Length:  def.Length,
			ID:      def.ID,
			Comment: optString(def.Comment),
		}
		msg.Signals = make([]JSONSignal, 0, len(def.Signals))
		for _, s := range def.Signals {
			endian := s.IsBigEndian
			sig := JSONSignal{
				Name:              s.Name,
				Start:             s.Start,
				Length:            s.Length,
				IsBigEndian:       &endian,
				Default:           optString(s.Default),
				Minimum:           s.Minimum,
				Maximum:           s.Maximum,
				Offset:            s.Offset,
				Scale:             s.Scale,
				MultiplexerSignal: optString(s.MultiplexerSignal),
				SPN:               optString(s.SPN),
				Choices:           s.Choices,
				Unit:              optString(s.Unit),
				Comment:           optString(s.Comment),
				MultiplexerIDs:    s.MultiplexerIDs,
			}
			if s.IsSigned {
				v := true
				sig.IsSigned = &v
			}
			if s.IsMultiplexer {
				v := true
				sig.IsMultiplexer = &v
			}
			if s.IsFloat {
				v := true
				sig.IsFloat = &v
			}
			msg.Signals = append(msg.Signals, sig)
		}
		out = append(out, msg)
	}
	return out
}

// SaveJSON writes the registry as a messages.json document.
func SaveJSON(r *Registry, path string) error {
	b, err := json.MarshalIndent(ToJSON(r), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
