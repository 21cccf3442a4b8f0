// Package config selects a named host/link profile and resolves
// overrides from YAML and command-line flags, mirroring
// ashSelectHostConfig() and the three ASH_HOST_CONFIG_* presets in
// ash-host.h. Profile selection must happen before serial.Open or
// link.New are called (SPEC_FULL.md §6).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ashhost/link"
	"ashhost/serial"
	"ashhost/trace"
)

// ProfileName identifies one of the built-in presets, or Custom for a
// profile built entirely from overrides.
type ProfileName string

const (
	EM2xxRTSCTS115200  ProfileName = "em2xx-115200-rtscts"
	EM2xxXonXoff57600  ProfileName = "em2xx-57600-xonxoff"
	AVRXonXoff38400    ProfileName = "avr-38400-xonxoff"
	Custom             ProfileName = "custom"
)

// Profile is the fully resolved configuration for one run: the
// serial-port parameters, the link-engine parameters, and the trace
// bitmask, split across the packages that own each concern.
type Profile struct {
	Name   ProfileName `yaml:"profile"`
	Serial serial.Config `yaml:"-"`
	Link   link.Config   `yaml:"-"`
	Trace  trace.Flags   `yaml:"-"`
}

// file is the YAML-serializable shape; Profile keeps serial.Config and
// link.Config as first-class Go structs (so code elsewhere can use
// them directly) while the YAML document stays flat and readable.
type file struct {
	Profile     string `yaml:"profile"`
	Device      string `yaml:"device"`
	Baud        int    `yaml:"baud"`
	StopBits    int    `yaml:"stop_bits"`
	Flow        string `yaml:"flow"`
	ResetMethod string `yaml:"reset_method"`
	InBlockLen  int    `yaml:"in_block_len"`
	OutBlockLen int    `yaml:"out_block_len"`
	Randomize   *bool  `yaml:"randomize"`
	WindowSize  int    `yaml:"window_size"`
	Trace       uint8  `yaml:"trace"`
}

// builtins mirrors the three ASH_HOST_CONFIG_* presets: baud rate and
// flow-control discipline differ; link timing defaults are left at
// link.Config's own zero-value normalization (ash-host.h specifies the
// same adaptive-timer defaults across all three presets).
var builtins = map[ProfileName]func() Profile{
	EM2xxRTSCTS115200: func() Profile {
		return Profile{
			Name:   EM2xxRTSCTS115200,
			Serial: serial.Config{Baud: 115200, StopBits: 1, Flow: serial.FlowControlRTSCTS, Randomize: true},
			Link:   link.Config{Randomize: true, ResetMethod: link.ResetMethodRST},
		}
	},
	EM2xxXonXoff57600: func() Profile {
		return Profile{
			Name:   EM2xxXonXoff57600,
			Serial: serial.Config{Baud: 57600, StopBits: 1, Flow: serial.FlowControlXonXoff, Randomize: true},
			Link:   link.Config{Randomize: true, ResetMethod: link.ResetMethodRST},
		}
	},
	AVRXonXoff38400: func() Profile {
		return Profile{
			Name:   AVRXonXoff38400,
			Serial: serial.Config{Baud: 38400, StopBits: 1, Flow: serial.FlowControlXonXoff},
			Link:   link.Config{Randomize: false, ResetMethod: link.ResetMethodDTR, DTRPulseWidth: 50 * time.Millisecond},
		}
	},
}

// Builtin constructs one of the three named presets.
func Builtin(name ProfileName) (Profile, error) {
	ctor, ok := builtins[name]
	if !ok {
		return Profile{}, fmt.Errorf("config: unknown profile %q", name)
	}
	return ctor(), nil
}

// Load reads a YAML profile file from path and resolves it into a
// Profile, starting from the named builtin (or Custom's zero-value
// defaults) and layering the file's overrides on top.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Profile{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	base := Custom
	if f.Profile != "" {
		base = ProfileName(f.Profile)
	}

	var prof Profile
	if base == Custom {
		prof = Profile{Name: Custom}
	} else {
		prof, err = Builtin(base)
		if err != nil {
			return Profile{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	prof.applyFileOverrides(f)
	return prof, nil
}

func (p *Profile) applyFileOverrides(f file) {
	if f.Device != "" {
		p.Serial.Device = f.Device
	}
	if f.Baud != 0 {
		p.Serial.Baud = f.Baud
	}
	if f.StopBits != 0 {
		p.Serial.StopBits = f.StopBits
	}
	if f.Flow != "" {
		p.Serial.Flow = parseFlow(f.Flow)
	}
	if f.ResetMethod != "" {
		p.Link.ResetMethod = parseResetMethod(f.ResetMethod)
	}
	if f.InBlockLen != 0 {
		p.Serial.InputBlockSize = f.InBlockLen
	}
	if f.OutBlockLen != 0 {
		p.Serial.OutputBlockSize = f.OutBlockLen
	}
	if f.Randomize != nil {
		p.Serial.Randomize = *f.Randomize
		p.Link.Randomize = *f.Randomize
	}
	if f.WindowSize != 0 {
		p.Link.WindowSize = uint8(f.WindowSize)
	}
	if f.Trace != 0 {
		p.Trace = trace.Flags(f.Trace)
	}
}

func parseFlow(s string) serial.FlowControl {
	switch s {
	case "rtscts":
		return serial.FlowControlRTSCTS
	case "xonxoff":
		return serial.FlowControlXonXoff
	default:
		return serial.FlowControlNone
	}
}

func parseResetMethod(s string) link.ResetMethod {
	switch s {
	case "dtr":
		return link.ResetMethodDTR
	case "custom":
		return link.ResetMethodCustom
	case "none":
		return link.ResetMethodNone
	default:
		return link.ResetMethodRST
	}
}
