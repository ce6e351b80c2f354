package elpis

import (
	"fmt"
	"math"
	"math/big"
)

// Uint128 carries a raw signal value of up to 128 bits. Signals wider than 64
// bits are rare but legal in the schema, so the working width matches the
// widest representable field rather than a machine word.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

func (u Uint128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

// Uint64 returns the value as a uint64 when it fits.
func (u Uint128) Uint64() (uint64, bool) {
	if u.Hi != 0 {
		return 0, false
	}
	return u.Lo, true
}

// Float64 converts the full magnitude to a float64, losing precision above 53
// bits.
func (u Uint128) Float64() float64 {
	return float64(u.Hi)*0x1p64 + float64(u.Lo)
}

// Big returns the value as a big integer, for decimal formatting.
func (u Uint128) Big() *big.Int {
	b := new(big.Int).SetUint64(u.Hi)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(u.Lo))
}

// String formats the value in decimal.
func (u Uint128) String() string {
	if u.Hi == 0 {
		return fmt.Sprintf("%d", u.Lo)
	}
	return u.Big().String()
}

// HexString formats the value as 0x-prefixed hex.
func (u Uint128) HexString() string {
	if u.Hi == 0 {
		return fmt.Sprintf("%#x", u.Lo)
	}
	return fmt.Sprintf("%#x%016x", u.Hi, u.Lo)
}

// MarshalJSON emits the value as a decimal string, since JSON numbers cannot
// hold 128 bits.
func (u Uint128) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

func (u *Uint128) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 || b.BitLen() > 128 {
		return fmt.Errorf("invalid 128-bit value %q", s)
	}
	u.Lo = b.Uint64()
	u.Hi = new(big.Int).Rsh(b, 64).Uint64()
	return nil
}

// shiftLeftOr shifts the value left one bit and ors in the next stream bit,
// assembling most significant bits first.
func (u Uint128) shiftLeftOr(bit uint64) Uint128 {
	return Uint128{
		Hi: u.Hi<<1 | u.Lo>>63,
		Lo: u.Lo<<1 | bit,
	}
}

// withBit sets bit i (0 = least significant).
func (u Uint128) withBit(i int) Uint128 {
	if i < 64 {
		u.Lo |= uint64(1) << i
	} else {
		u.Hi |= uint64(1) << (i - 64)
	}
	return u
}

// SignedValue reinterprets the low bitLen bits as a two's-complement signed
// integer. Only widths up to 64 bits are representable.
func SignedValue(u Uint128, bitLen int) (int64, bool) {
	if bitLen <= 0 || bitLen > 64 {
		return 0, false
	}
	v, ok := u.Uint64()
	if !ok {
		return 0, false
	}
	if bitLen == 64 {
		return int64(v), true
	}
	signBit := uint64(1) << (bitLen - 1)
	if v&signBit == 0 {
		return int64(v), true
	}
	mask := uint64(1)<<bitLen - 1
	return -int64((^v + 1) & mask), true
}

// FloatValue reinterprets the raw bits as an IEEE float. Only 32- and 64-bit
// patterns are meaningful.
func FloatValue(u Uint128, bitLen int) (float64, bool) {
	v, ok := u.Uint64()
	if !ok {
		return 0, false
	}
	switch bitLen {
	case 32:
		return float64(math.Float32frombits(uint32(v))), true
	case 64:
		return math.Float64frombits(v), true
	default:
		return 0, false
	}
}
