package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"example.com/elpisgate/internal/elpis"
	"example.com/elpisgate/internal/schema"
)

// Summary aggregates one decode run.
type Summary struct {
	Messages int  `json:"messages"`
	Known    int  `json:"known"`
	Unknown  int  `json:"unknown"`
	Warnings int  `json:"warnings"`
	Errors   int  `json:"errors"`
	Pass     bool `json:"pass"`
}

// MessageTally counts the occurrences of one message id in a decode run.
type MessageTally struct {
	ID           int32  `json:"id"`
	Name         string `json:"name"`
	Count        int    `json:"count"`
	PayloadBytes int    `json:"payloadBytes"`
	Signals      int    `json:"signals"`
}

// DecodeReport is the persisted outcome of decoding one buffer or capture.
type DecodeReport struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Source      string             `json:"source"`
	SchemaCount int                `json:"schemaCount"`
	InfoLine    string             `json:"infoLine"`
	Summary     Summary            `json:"summary"`
	Tallies     []MessageTally     `json:"tallies"`
	Diagnostics []elpis.Diagnostic `json:"diagnostics,omitempty"`
}

// Build assembles a report from a decode result. A report passes when no
// error-severity diagnostics were recorded.
func Build(source string, reg *schema.Registry, res elpis.DecodeResult) DecodeReport {
	rep := DecodeReport{
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		SchemaCount: reg.Count(),
		InfoLine:    res.Summary(),
		Diagnostics: res.Diagnostics,
	}

	byID := make(map[int32]*MessageTally)
	for _, m := range res.Messages {
		rep.Summary.Messages++
		if m.Known {
			rep.Summary.Known++
		} else {
			rep.Summary.Unknown++
		}
		t, ok := byID[m.ID]
		if !ok {
			t = &MessageTally{ID: m.ID, Name: m.Name}
			byID[m.ID] = t
		}
		t.Count++
		t.PayloadBytes += m.PayloadLength
		t.Signals += len(m.Signals)
	}
	for _, d := range res.Diagnostics {
		switch d.Severity {
		case elpis.SeverityError:
			rep.Summary.Errors++
		default:
			rep.Summary.Warnings++
		}
	}
	rep.Summary.Pass = rep.Summary.Errors == 0

	rep.Tallies = make([]MessageTally, 0, len(byID))
	for _, t := range byID {
		rep.Tallies = append(rep.Tallies, *t)
	}
	sort.Slice(rep.Tallies, func(i, j int) bool {
		if rep.Tallies[i].Count != rep.Tallies[j].Count {
			return rep.Tallies[i].Count > rep.Tallies[j].Count
		}
		return rep.Tallies[i].ID < rep.Tallies[j].ID
	})
	return rep
}

// Digest returns the hex SHA-256 of the report's JSON form, used to pin a
// rendered report to its content.
func (r DecodeReport) Digest() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func SaveJSON(rep DecodeReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (DecodeReport, error) {
	var rep DecodeReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, fmt.Errorf("parse report %s: %w", path, err)
	}
	return rep, nil
}
