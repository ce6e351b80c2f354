package elpis

import (
	"errors"
	"fmt"
)

var (
	ErrBitSeek  = errors.New("bit read start position beyond buffer")
	ErrBitRange = errors.New("bit read exceeds buffer bounds")
)

// ReadBitsMotorola extracts length bits starting at the Motorola-numbered bit
// position start. Motorola numbering treats byte b's bits as indices 8b+7
// down to 8b: bit 7 of byte 0 is the first bit in stream order. The start is
// converted to a physical MSB-first stream position and the bits are
// assembled most significant first.
func ReadBitsMotorola(buf []byte, start, length int) (Uint128, error) {
	if length == 0 {
		return Uint128{}, nil
	}
	if start < 0 {
		return Uint128{}, fmt.Errorf("%w: start %d", ErrBitSeek, start)
	}
	if length < 0 || length > 128 {
		return Uint128{}, fmt.Errorf("%w: length %d", ErrBitRange, length)
	}
	total := len(buf) * 8
	stream := (start/8)*8 + 7 - start%8
	if stream >= total {
		return Uint128{}, fmt.Errorf("%w: start %d of %d bits", ErrBitSeek, start, total)
	}
	if stream+length > total {
		return Uint128{}, fmt.Errorf("%w: %d bits at position %d of %d", ErrBitRange, length, start, total)
	}
	var v Uint128
	pos := stream
	// Whole bytes while aligned, single bits otherwise.
	for length >= 8 && pos%8 == 0 {
		v = Uint128{
			Hi: v.Hi<<8 | v.Lo>>56,
			Lo: v.Lo<<8 | uint64(buf[pos/8]),
		}
		pos += 8
		length -= 8
	}
	for i := 0; i < length; i++ {
		bit := buf[pos/8] >> (7 - pos%8) & 1
		v = v.shiftLeftOr(uint64(bit))
		pos++
	}
	return v, nil
}

// ReadBitsIntel extracts length bits starting at the Intel-numbered bit
// position start. Intel numbering is a flat LSB-first stream across the whole
// buffer: bit i of the result is stream bit start+i.
func ReadBitsIntel(buf []byte, start, length int) (Uint128, error) {
	if length == 0 {
		return Uint128{}, nil
	}
	if start < 0 {
		return Uint128{}, fmt.Errorf("%w: start %d", ErrBitSeek, start)
	}
	if length < 0 || length > 128 {
		return Uint128{}, fmt.Errorf("%w: length %d", ErrBitRange, length)
	}
	total := len(buf) * 8
	if start >= total {
		return Uint128{}, fmt.Errorf("%w: start %d of %d bits", ErrBitSeek, start, total)
	}
	if start+length > total {
		return Uint128{}, fmt.Errorf("%w: %d bits at position %d of %d", ErrBitRange, length, start, total)
	}
	var v Uint128
	for i := 0; i < length; i++ {
		pos := start + i
		if buf[pos/8]>>(pos%8)&1 != 0 {
			v = v.withBit(i)
		}
	}
	return v, nil
}
