package elpis

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"example.com/elpisgate/internal/common"
	"example.com/elpisgate/internal/schema"
)

// headerSize is the fixed sub-message header: int32 id + int32 payload
// length, both big-endian.
const headerSize = 8

var (
	ErrInvalidID       = errors.New("invalid sub-message id")
	ErrInvalidLength   = errors.New("invalid payload length")
	ErrTruncatedHeader = errors.New("truncated sub-message header")
)

// Parser steps through the length-framed sub-messages of one buffer. A
// structural violation stops the whole buffer: sub-message boundaries cannot
// be located without trustworthy headers, so no resynchronization is
// attempted. Per-signal problems are collected as diagnostics instead.
type Parser struct {
	buf     []byte
	reg     *schema.Registry
	offset  int
	failed  bool
	metrics *common.Metrics
	diags   []Diagnostic
}

// NewParser prepares an iterator over buf. The registry is read-only shared
// state; passing the same registry to concurrent parsers is safe.
func NewParser(buf []byte, reg *schema.Registry) *Parser {
	return &Parser{buf: buf, reg: reg}
}

// SetMetrics attaches a metrics recorder to the parser.
func (p *Parser) SetMetrics(m *common.Metrics) {
	p.metrics = m
}

// Offset returns the current cursor position in bytes.
func (p *Parser) Offset() int {
	return p.offset
}

// Diagnostics returns the recoverable problems recorded so far.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diags
}

// Next decodes the next sub-message. It returns io.EOF when the buffer is
// cleanly exhausted. Any other error is structural and terminal for this
// buffer; previously returned sub-messages remain valid.
func (p *Parser) Next() (SubMessage, error) {
	if p.failed {
		return SubMessage{}, fmt.Errorf("%w: parser already failed", ErrInvalidLength)
	}
	remaining := len(p.buf) - p.offset
	if remaining == 0 {
		return SubMessage{}, io.EOF
	}
	if remaining < headerSize {
		p.failed = true
		return SubMessage{}, fmt.Errorf("%w: %d bytes at offset %d", ErrTruncatedHeader, remaining, p.offset)
	}

	id := int32(binary.BigEndian.Uint32(p.buf[p.offset : p.offset+4]))
	payloadLen := int32(binary.BigEndian.Uint32(p.buf[p.offset+4 : p.offset+8]))
	if id < 0 {
		p.failed = true
		return SubMessage{}, fmt.Errorf("%w: %d at offset %d", ErrInvalidID, id, p.offset)
	}
	// Validate before slicing: this is the defense against a crafted or
	// truncated buffer walking past the end.
	if payloadLen < 0 || int(payloadLen) > remaining-headerSize {
		p.failed = true
		return SubMessage{}, fmt.Errorf("%w: %d declared, %d available at offset %d",
			ErrInvalidLength, payloadLen, remaining-headerSize, p.offset)
	}

	msg := SubMessage{
		ID:            id,
		Name:          UnknownName,
		Offset:        p.offset,
		PayloadOffset: p.offset + headerSize,
		PayloadLength: int(payloadLen),
	}
	payload := p.buf[msg.PayloadOffset : msg.PayloadOffset+msg.PayloadLength]

	def, found := p.reg.Lookup(id)
	if found {
		msg.Name = def.Name
		msg.Known = true
		if def.Length != msg.PayloadLength {
			p.diags = append(p.diags, Diagnostic{
				Severity:  SeverityWarning,
				MessageID: id,
				Offset:    msg.Offset,
				Message: fmt.Sprintf("message %s declares %d payload bytes, wire header carries %d",
					def.Name, def.Length, msg.PayloadLength),
			})
		}
		for _, sig := range def.Signals {
			value, ok, err := DecodeSignal(sig, payload)
			if err != nil {
				severity := SeverityError
				if errors.Is(err, ErrSignalTooWide) {
					severity = SeverityWarning
				}
				p.diags = append(p.diags, Diagnostic{
					Severity:  severity,
					MessageID: id,
					Signal:    sig.Name,
					Offset:    msg.Offset,
					Message:   err.Error(),
				})
				if p.metrics != nil && severity == SeverityError {
					p.metrics.IncSignalError()
				}
				continue
			}
			if !ok {
				continue
			}
			msg.Signals = append(msg.Signals, value)
		}
	} else if p.metrics != nil {
		p.metrics.IncUnknown()
	}

	if p.metrics != nil {
		p.metrics.AddMessage(int64(headerSize + msg.PayloadLength))
	}
	p.offset += headerSize + msg.PayloadLength
	return msg, nil
}

// DecodeBuffer runs the parser over the whole buffer. On a structural fault
// the error is returned together with everything decoded before it; decoding
// the same buffer twice yields identical results.
func DecodeBuffer(buf []byte, reg *schema.Registry) (DecodeResult, error) {
	p := NewParser(buf, reg)
	var res DecodeResult
	for {
		msg, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Diagnostics = p.Diagnostics()
			return res, err
		}
		res.Messages = append(res.Messages, msg)
	}
	res.Diagnostics = p.Diagnostics()
	return res, nil
}
