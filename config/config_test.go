package config

import (
	"os"
	"path/filepath"
	"testing"

	"ashhost/link"
	"ashhost/serial"
)

func TestBuiltinProfiles(t *testing.T) {
	p, err := Builtin(EM2xxRTSCTS115200)
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if p.Serial.Baud != 115200 || p.Serial.Flow != serial.FlowControlRTSCTS {
		t.Errorf("unexpected serial config: %+v", p.Serial)
	}

	p, err = Builtin(AVRXonXoff38400)
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if p.Link.ResetMethod != link.ResetMethodDTR {
		t.Errorf("AVR profile reset method = %v, want DTR", p.Link.ResetMethod)
	}
}

func TestBuiltinUnknown(t *testing.T) {
	if _, err := Builtin("bogus"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestLoadOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	yaml := "profile: em2xx-115200-rtscts\ndevice: /dev/ttyUSB3\nbaud: 230400\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Serial.Device != "/dev/ttyUSB3" {
		t.Errorf("Device = %q, want /dev/ttyUSB3", p.Serial.Device)
	}
	if p.Serial.Baud != 230400 {
		t.Errorf("Baud = %d, want 230400 (override should win over builtin's 115200)", p.Serial.Baud)
	}
	if p.Serial.Flow != serial.FlowControlRTSCTS {
		t.Errorf("Flow = %v, want rtscts (inherited from builtin)", p.Serial.Flow)
	}
}

func TestLoadCustomProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	yaml := "device: /dev/ttyS0\nbaud: 9600\nflow: xonxoff\nreset_method: none\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != Custom {
		t.Errorf("Name = %v, want Custom", p.Name)
	}
	if p.Serial.Baud != 9600 || p.Serial.Flow != serial.FlowControlXonXoff {
		t.Errorf("unexpected serial config: %+v", p.Serial)
	}
	if p.Link.ResetMethod != link.ResetMethodNone {
		t.Errorf("ResetMethod = %v, want none", p.Link.ResetMethod)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
