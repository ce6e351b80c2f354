package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleSchema = `[
  {
    "name": "engine_status",
    "id": 10,
    "length": 8,
    "comment": "primary engine frame",
    "signals": [
      {"name": "rpm", "start": 7, "length": 16, "scale": 0.25, "unit": "rpm"},
      {"name": "throttle", "start": 23, "length": 8, "is_big_endian": false, "minimum": 0, "maximum": 100},
      {"name": "mode", "length": 2, "choices": {"OFF": 0, "RUN": 1}}
    ]
  },
  {
    "name": "gps_position",
    "id": 20,
    "length": 16,
    "signals": [
      {"name": "lat", "start": 7, "length": 64, "is_float": true, "is_signed": false, "scale": 1.0}
    ]
  }
]`

func TestFromBytes(t *testing.T) {
	reg, err := FromBytes([]byte(sampleSchema))
	if err != nil {
		t.Fatalf("FromBytes returned error: %v", err)
	}
	if reg.Count() != 2 {
		t.Fatalf("Count = %d, want 2", reg.Count())
	}

	def, ok := reg.Lookup(10)
	if !ok {
		t.Fatal("Lookup(10) missed")
	}
	if def.Name != "engine_status" || def.Length != 8 || def.Comment != "primary engine frame" {
		t.Fatalf("definition = %+v", def)
	}
	if len(def.Signals) != 3 {
		t.Fatalf("signals = %d, want 3", len(def.Signals))
	}

	rpm := def.Signals[0]
	if !rpm.IsBigEndian {
		t.Fatal("rpm should default to Motorola bit order")
	}
	if rpm.Scale == nil || *rpm.Scale != 0.25 {
		t.Fatalf("rpm scale = %v, want 0.25", rpm.Scale)
	}
	if rpm.Minimum != nil || rpm.Maximum != nil {
		t.Fatal("rpm declared no range, clamps must stay unset")
	}

	throttle := def.Signals[1]
	if throttle.IsBigEndian {
		t.Fatal("throttle declared Intel bit order")
	}
	if throttle.Minimum == nil || *throttle.Minimum != 0 || throttle.Maximum == nil || *throttle.Maximum != 100 {
		t.Fatalf("throttle range = %v..%v, want 0..100", throttle.Minimum, throttle.Maximum)
	}

	mode := def.Signals[2]
	if mode.Start != nil {
		t.Fatal("mode has no explicit start")
	}
	if mode.StartBit() != 7 {
		t.Fatalf("mode StartBit = %d, want 7", mode.StartBit())
	}
	if label, ok := mode.ChoiceLabel(1); !ok || label != "RUN" {
		t.Fatalf("mode ChoiceLabel(1) = %q/%v, want RUN", label, ok)
	}

	gps, ok := reg.Lookup(20)
	if !ok || !gps.Signals[0].IsFloat {
		t.Fatalf("gps definition = %+v, want float signal", gps)
	}
}

func TestFromBytesDuplicateID(t *testing.T) {
	doc := `[
	  {"name": "old", "id": 5, "signals": []},
	  {"name": "new", "id": 5, "signals": []}
	]`
	reg, err := FromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("FromBytes returned error: %v", err)
	}
	def, ok := reg.Lookup(5)
	if !ok || def.Name != "new" {
		t.Fatalf("Lookup(5) = %v, want the later definition", def)
	}
}

func TestFromBytesMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{{{`},
		{name: "wrong shape", doc: `{"name": "x"}`},
		{name: "missing message name", doc: `[{"id": 1}]`},
		{name: "missing signal name", doc: `[{"name": "m", "id": 1, "signals": [{"length": 8}]}]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromBytes([]byte(tc.doc)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("error = %v, want %v", err, ErrMalformed)
			}
		})
	}
}

func TestLoadUnreadable(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("error = %v, want %v", err, ErrUnreadable)
	}
}

func TestEnsureLoaded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages.json")
	if err := os.WriteFile(path, []byte(sampleSchema), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	reg, err := EnsureLoaded(path)
	if err != nil {
		t.Fatalf("EnsureLoaded returned error: %v", err)
	}
	if reg.Count() != 2 {
		t.Fatalf("Count = %d, want 2", reg.Count())
	}

	if _, err := EnsureLoaded(""); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("empty path error = %v, want %v", err, ErrUnreadable)
	}
	if _, err := EnsureLoaded(dir); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("directory error = %v, want %v", err, ErrUnreadable)
	}
}
