package elpis

import (
	"errors"
	"fmt"

	"example.com/elpisgate/internal/schema"
)

// ErrSignalTooWide marks signals whose declared width cannot fit the working
// integer. They are skipped with a warning, never a hard failure.
var ErrSignalTooWide = errors.New("signal wider than 128 bits")

// maxSignalBits is the widest field the raw value can carry.
const maxSignalBits = 128

// DecodeSignal extracts one signal from a payload slice. ok is false when the
// signal is declared but carries no data (zero width). A non-nil error means
// the signal could not be read; the caller is expected to record it and move
// on to the next signal.
func DecodeSignal(def schema.SignalDefinition, payload []byte) (SignalValue, bool, error) {
	if def.Length == 0 {
		return SignalValue{}, false, nil
	}
	if def.Length >= maxSignalBits {
		return SignalValue{}, false, fmt.Errorf("signal %s: %w (%d bits)", def.Name, ErrSignalTooWide, def.Length)
	}

	start := def.StartBit()
	var (
		raw Uint128
		err error
	)
	if def.IsBigEndian {
		raw, err = ReadBitsMotorola(payload, start, def.Length)
	} else {
		raw, err = ReadBitsIntel(payload, start, def.Length)
	}
	if err != nil {
		return SignalValue{}, false, fmt.Errorf("signal %s: %w", def.Name, err)
	}

	sv := SignalValue{
		Name:       def.Name,
		Raw:        raw,
		ByteOffset: start / 8,
		ByteLength: (def.Length + 7) / 8,
		Unit:       def.Unit,
	}
	if def.IsSigned {
		if signed, ok := SignedValue(raw, def.Length); ok {
			sv.Signed = &signed
		}
	}
	if phys, ok := physicalValue(def, sv); ok {
		sv.Physical = &phys
	}
	if v, ok := raw.Uint64(); ok && v <= 1<<62 {
		if label, ok := def.ChoiceLabel(int64(v)); ok {
			sv.Label = label
		}
	}
	return sv, true, nil
}

// physicalValue applies the schema's unit conversion: raw*scale + offset,
// clamped to the declared range when one is declared.
func physicalValue(def schema.SignalDefinition, sv SignalValue) (float64, bool) {
	if def.Scale == nil && def.Offset == nil {
		return 0, false
	}
	var base float64
	switch {
	case def.IsFloat:
		f, ok := FloatValue(sv.Raw, def.Length)
		if !ok {
			return 0, false
		}
		base = f
	case sv.Signed != nil:
		base = float64(*sv.Signed)
	default:
		base = sv.Raw.Float64()
	}
	scale := 1.0
	if def.Scale != nil {
		scale = *def.Scale
	}
	offset := 0.0
	if def.Offset != nil {
		offset = *def.Offset
	}
	phys := base*scale + offset
	if def.Minimum != nil && phys < *def.Minimum {
		phys = *def.Minimum
	}
	if def.Maximum != nil && phys > *def.Maximum {
		phys = *def.Maximum
	}
	return phys, true
}
