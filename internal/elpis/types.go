package elpis

import (
	"sort"
	"strings"
)

// UnknownName labels sub-messages whose identifier has no schema entry.
const UnknownName = "unknown"

// Diagnostic severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// SignalValue is one decoded signal inside a sub-message. ByteOffset and
// ByteLength are the reporting span containing the field; they are not
// necessarily the exact bytes touched when the field is not byte-aligned.
type SignalValue struct {
	Name       string   `json:"name"`
	Raw        Uint128  `json:"raw"`
	ByteOffset int      `json:"byteOffset"`
	ByteLength int      `json:"byteLength"`
	Signed     *int64   `json:"signed,omitempty"`
	Physical   *float64 `json:"physical,omitempty"`
	Label      string   `json:"label,omitempty"`
	Unit       string   `json:"unit,omitempty"`
}

// SubMessage is one length-framed unit decoded from a buffer. Offsets are
// byte positions within the decoded buffer.
type SubMessage struct {
	ID            int32         `json:"id"`
	Name          string        `json:"name"`
	Known         bool          `json:"known"`
	Offset        int           `json:"offset"`
	PayloadOffset int           `json:"payloadOffset"`
	PayloadLength int           `json:"payloadLength"`
	Signals       []SignalValue `json:"signals,omitempty"`
}

// Diagnostic records a recoverable per-signal or per-message problem. It
// never aborts decoding of sibling signals or sub-messages.
type Diagnostic struct {
	Severity  string `json:"severity"`
	MessageID int32  `json:"messageId"`
	Signal    string `json:"signal,omitempty"`
	Offset    int    `json:"offset"`
	Message   string `json:"message"`
}

// DecodeResult is the full outcome for one buffer.
type DecodeResult struct {
	Messages    []SubMessage `json:"messages"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Summary joins the distinct known message names seen in the buffer, in
// descending order, as a one-line label for the whole buffer.
func (r DecodeResult) Summary() string {
	seen := make(map[string]struct{})
	for _, m := range r.Messages {
		if m.Known {
			seen[m.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return strings.Join(names, " / ")
}
