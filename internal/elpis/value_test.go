package elpis

import (
	"encoding/json"
	"testing"
)

func TestSignedValue(t *testing.T) {
	tests := []struct {
		name   string
		raw    uint64
		bitLen int
		want   int64
		ok     bool
	}{
		{name: "positive byte", raw: 0x7F, bitLen: 8, want: 127, ok: true},
		{name: "negative one byte", raw: 0xFF, bitLen: 8, want: -1, ok: true},
		{name: "most negative byte", raw: 0x80, bitLen: 8, want: -128, ok: true},
		{name: "negative 12 bits", raw: 0x800, bitLen: 12, want: -2048, ok: true},
		{name: "full word negative", raw: 0xFFFFFFFFFFFFFFFF, bitLen: 64, want: -1, ok: true},
		{name: "zero width", raw: 0, bitLen: 0, ok: false},
		{name: "too wide", raw: 1, bitLen: 65, ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := SignedValue(Uint128{Lo: tc.raw}, tc.bitLen)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("SignedValue = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSignedValueAbove64Bits(t *testing.T) {
	if _, ok := SignedValue(Uint128{Hi: 1}, 64); ok {
		t.Fatal("SignedValue accepted a value above 64 bits")
	}
}

func TestFloatValue(t *testing.T) {
	if f, ok := FloatValue(Uint128{Lo: 0x3FC00000}, 32); !ok || f != 1.5 {
		t.Fatalf("32-bit float = %v/%v, want 1.5/true", f, ok)
	}
	if f, ok := FloatValue(Uint128{Lo: 0x3FF8000000000000}, 64); !ok || f != 1.5 {
		t.Fatalf("64-bit float = %v/%v, want 1.5/true", f, ok)
	}
	if _, ok := FloatValue(Uint128{Lo: 1}, 16); ok {
		t.Fatal("FloatValue accepted a 16-bit width")
	}
}

func TestUint128Formatting(t *testing.T) {
	small := Uint128{Lo: 4660}
	if got := small.String(); got != "4660" {
		t.Fatalf("String = %q, want %q", got, "4660")
	}
	if got := small.HexString(); got != "0x1234" {
		t.Fatalf("HexString = %q, want %q", got, "0x1234")
	}

	wide := Uint128{Hi: 1, Lo: 0}
	if got := wide.String(); got != "18446744073709551616" {
		t.Fatalf("wide String = %q, want %q", got, "18446744073709551616")
	}
	if got := wide.HexString(); got != "0x10000000000000000" {
		t.Fatalf("wide HexString = %q, want %q", got, "0x10000000000000000")
	}
}

func TestUint128JSONRoundTrip(t *testing.T) {
	in := Uint128{Hi: 0x12, Lo: 0x3456789ABCDEF011}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out Uint128
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %v, want %v", out, in)
	}
}

func TestUint64Overflow(t *testing.T) {
	if _, ok := (Uint128{Hi: 1}).Uint64(); ok {
		t.Fatal("Uint64 accepted a value above 64 bits")
	}
	if v, ok := (Uint128{Lo: 42}).Uint64(); !ok || v != 42 {
		t.Fatalf("Uint64 = %v/%v, want 42/true", v, ok)
	}
}
