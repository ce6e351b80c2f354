package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleDBC = `VERSION ""

NS_ :

BS_:

BU_: ECU1 GW

BO_ 2364540158 EEC1: 8 ECU1
 SG_ EngineSpeed : 24|16@1+ (0.125,0) [0|8031.875] "rpm" GW

BO_ 256 DriverPanel: 2 ECU1
 SG_ WiperMode : 7|2@0+ (1,0) [0|0] "" GW

CM_ SG_ 2364540158 EngineSpeed "Actual engine speed";
VAL_ 2364540158 EngineSpeed 65535 "NotAvailable" ;
`

// 0x8CF00400 with the extended-frame flag stripped.
const eec1ID = 0x0CF00400

func TestFromDBC(t *testing.T) {
	reg, err := FromDBC("sample.dbc", []byte(sampleDBC))
	if err != nil {
		t.Fatalf("FromDBC returned error: %v", err)
	}
	if reg.Count() != 2 {
		t.Fatalf("Count = %d, want 2", reg.Count())
	}

	eec1, ok := reg.Lookup(eec1ID)
	if !ok {
		t.Fatalf("Lookup(%#x) missed, ids = %v", int32(eec1ID), reg.IDs())
	}
	if eec1.Name != "EEC1" || eec1.Length != 8 {
		t.Fatalf("EEC1 = %+v", eec1)
	}
	if len(eec1.Signals) != 1 {
		t.Fatalf("EEC1 signals = %d, want 1", len(eec1.Signals))
	}
	speed := eec1.Signals[0]
	if speed.Name != "EngineSpeed" || speed.StartBit() != 24 || speed.Length != 16 {
		t.Fatalf("EngineSpeed = %+v", speed)
	}
	if speed.IsBigEndian {
		t.Fatal("EngineSpeed declared Intel byte order")
	}
	if speed.Scale == nil || *speed.Scale != 0.125 {
		t.Fatalf("EngineSpeed scale = %v, want 0.125", speed.Scale)
	}
	if speed.Maximum == nil || *speed.Maximum != 8031.875 {
		t.Fatalf("EngineSpeed maximum = %v, want 8031.875", speed.Maximum)
	}
	if speed.Unit != "rpm" {
		t.Fatalf("EngineSpeed unit = %q, want rpm", speed.Unit)
	}
	if speed.Comment != "Actual engine speed" {
		t.Fatalf("EngineSpeed comment = %q", speed.Comment)
	}
	if label, ok := speed.ChoiceLabel(65535); !ok || label != "NotAvailable" {
		t.Fatalf("EngineSpeed ChoiceLabel(65535) = %q/%v, want NotAvailable", label, ok)
	}

	panel, ok := reg.Lookup(256)
	if !ok {
		t.Fatal("Lookup(256) missed")
	}
	wiper := panel.Signals[0]
	if !wiper.IsBigEndian || wiper.StartBit() != 7 || wiper.Length != 2 {
		t.Fatalf("WiperMode = %+v", wiper)
	}
	// A [0|0] range in DBC means no range was declared.
	if wiper.Minimum != nil || wiper.Maximum != nil {
		t.Fatalf("WiperMode range = %v..%v, want unset", wiper.Minimum, wiper.Maximum)
	}
}

func TestFromDBCMalformed(t *testing.T) {
	if _, err := FromDBC("bad.dbc", []byte("BO_ not a dbc file")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want %v", err, ErrMalformed)
	}
}

func TestEnsureLoadedDBC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.dbc")
	if err := os.WriteFile(path, []byte(sampleDBC), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	reg, err := EnsureLoaded(path)
	if err != nil {
		t.Fatalf("EnsureLoaded returned error: %v", err)
	}
	if _, ok := reg.Lookup(eec1ID); !ok {
		t.Fatal("DBC-loaded registry misses EEC1")
	}
}
