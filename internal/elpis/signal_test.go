package elpis

import (
	"errors"
	"testing"

	"example.com/elpisgate/internal/schema"
)

func intPtr(v int) *int { return &v }
func f64Ptr(v float64) *float64 { return &v }

func TestDecodeSignalZeroLength(t *testing.T) {
	def := schema.SignalDefinition{Name: "reserved", Length: 0, IsBigEndian: true}
	_, ok, err := DecodeSignal(def, []byte{0x12, 0x34})
	if err != nil {
		t.Fatalf("DecodeSignal returned error: %v", err)
	}
	if ok {
		t.Fatal("zero-length signal produced a value")
	}
}

func TestDecodeSignalTooWide(t *testing.T) {
	def := schema.SignalDefinition{Name: "huge", Start: intPtr(7), Length: 128, IsBigEndian: true}
	_, _, err := DecodeSignal(def, make([]byte, 32))
	if !errors.Is(err, ErrSignalTooWide) {
		t.Fatalf("error = %v, want %v", err, ErrSignalTooWide)
	}
}

func TestDecodeSignalDefaultStart(t *testing.T) {
	payload := []byte{0xAB, 0xCD}

	motorola := schema.SignalDefinition{Name: "m", Length: 8, IsBigEndian: true}
	sv, ok, err := DecodeSignal(motorola, payload)
	if err != nil || !ok {
		t.Fatalf("motorola decode = %v/%v", ok, err)
	}
	if sv.Raw.Lo != 0xAB {
		t.Fatalf("motorola default start raw = %#x, want 0xab", sv.Raw.Lo)
	}

	intel := schema.SignalDefinition{Name: "i", Length: 8, IsBigEndian: false}
	sv, ok, err = DecodeSignal(intel, payload)
	if err != nil || !ok {
		t.Fatalf("intel decode = %v/%v", ok, err)
	}
	if sv.Raw.Lo != 0xAB {
		t.Fatalf("intel default start raw = %#x, want 0xab", sv.Raw.Lo)
	}
}

func TestDecodeSignalByteSpan(t *testing.T) {
	payload := []byte{0x12, 0x34, 0x56, 0x78}
	def := schema.SignalDefinition{Name: "mid", Start: intPtr(11), Length: 4, IsBigEndian: true}
	sv, ok, err := DecodeSignal(def, payload)
	if err != nil || !ok {
		t.Fatalf("decode = %v/%v", ok, err)
	}
	if sv.ByteOffset != 1 || sv.ByteLength != 1 {
		t.Fatalf("span = (%d, %d), want (1, 1)", sv.ByteOffset, sv.ByteLength)
	}

	wide := schema.SignalDefinition{Name: "wide", Start: intPtr(7), Length: 21, IsBigEndian: true}
	sv, ok, err = DecodeSignal(wide, payload)
	if err != nil || !ok {
		t.Fatalf("decode = %v/%v", ok, err)
	}
	if sv.ByteOffset != 0 || sv.ByteLength != 3 {
		t.Fatalf("span = (%d, %d), want (0, 3)", sv.ByteOffset, sv.ByteLength)
	}
}

func TestDecodeSignalPhysical(t *testing.T) {
	payload := []byte{0x64} // raw 100

	scaled := schema.SignalDefinition{
		Name:        "temp",
		Length:      8,
		IsBigEndian: true,
		Scale:       f64Ptr(0.5),
		Offset:      f64Ptr(-10),
		Unit:        "degC",
	}
	sv, ok, err := DecodeSignal(scaled, payload)
	if err != nil || !ok {
		t.Fatalf("decode = %v/%v", ok, err)
	}
	if sv.Physical == nil || *sv.Physical != 40 {
		t.Fatalf("physical = %v, want 40", sv.Physical)
	}
	if sv.Unit != "degC" {
		t.Fatalf("unit = %q, want %q", sv.Unit, "degC")
	}

	clamped := scaled
	clamped.Maximum = f64Ptr(30)
	sv, _, err = DecodeSignal(clamped, payload)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if sv.Physical == nil || *sv.Physical != 30 {
		t.Fatalf("clamped physical = %v, want 30", sv.Physical)
	}

	// Without scale or offset the raw value stands alone.
	plain := schema.SignalDefinition{Name: "counter", Length: 8, IsBigEndian: true}
	sv, _, err = DecodeSignal(plain, payload)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if sv.Physical != nil {
		t.Fatalf("physical = %v, want nil", *sv.Physical)
	}
}

func TestDecodeSignalSigned(t *testing.T) {
	def := schema.SignalDefinition{
		Name:        "delta",
		Length:      8,
		IsBigEndian: true,
		IsSigned:    true,
		Scale:       f64Ptr(1),
	}
	sv, ok, err := DecodeSignal(def, []byte{0xFF})
	if err != nil || !ok {
		t.Fatalf("decode = %v/%v", ok, err)
	}
	if sv.Signed == nil || *sv.Signed != -1 {
		t.Fatalf("signed = %v, want -1", sv.Signed)
	}
	if sv.Physical == nil || *sv.Physical != -1 {
		t.Fatalf("physical = %v, want -1", sv.Physical)
	}
}

func TestDecodeSignalFloat(t *testing.T) {
	def := schema.SignalDefinition{
		Name:        "ratio",
		Length:      32,
		IsBigEndian: true,
		IsFloat:     true,
		Scale:       f64Ptr(2),
	}
	// Big-endian IEEE 754 bit pattern for 1.5.
	sv, ok, err := DecodeSignal(def, []byte{0x3F, 0xC0, 0x00, 0x00})
	if err != nil || !ok {
		t.Fatalf("decode = %v/%v", ok, err)
	}
	if sv.Physical == nil || *sv.Physical != 3 {
		t.Fatalf("physical = %v, want 3", sv.Physical)
	}
}

func TestDecodeSignalChoices(t *testing.T) {
	def := schema.SignalDefinition{
		Name:        "mode",
		Length:      2,
		IsBigEndian: true,
		Choices:     map[string]int64{"OFF": 0, "ON": 1, "AUTO": 2},
	}
	sv, ok, err := DecodeSignal(def, []byte{0x40}) // top two bits 01
	if err != nil || !ok {
		t.Fatalf("decode = %v/%v", ok, err)
	}
	if sv.Label != "ON" {
		t.Fatalf("label = %q, want %q", sv.Label, "ON")
	}
}

func TestDecodeSignalReadFailure(t *testing.T) {
	payload := []byte{0x12}

	past := schema.SignalDefinition{Name: "past", Start: intPtr(7), Length: 16, IsBigEndian: true}
	if _, _, err := DecodeSignal(past, payload); !errors.Is(err, ErrBitRange) {
		t.Fatalf("error = %v, want %v", err, ErrBitRange)
	}

	beyond := schema.SignalDefinition{Name: "beyond", Start: intPtr(15), Length: 4, IsBigEndian: true}
	if _, _, err := DecodeSignal(beyond, payload); !errors.Is(err, ErrBitSeek) {
		t.Fatalf("error = %v, want %v", err, ErrBitSeek)
	}
}
