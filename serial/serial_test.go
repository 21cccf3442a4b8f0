package serial

import "testing"

func TestConfigNormalize(t *testing.T) {
	cfg := Config{Device: "/dev/ttyUSB0", Baud: 115200}
	cfg.normalize()

	if cfg.StopBits != 1 {
		t.Errorf("StopBits = %d, want 1", cfg.StopBits)
	}
	if cfg.InputBlockSize != 256 || cfg.OutputBlockSize != 256 {
		t.Errorf("block sizes = %d/%d, want 256/256", cfg.InputBlockSize, cfg.OutputBlockSize)
	}
}

func TestConfigNormalizePreservesExplicitValues(t *testing.T) {
	cfg := Config{Device: "/dev/ttyUSB0", StopBits: 2, InputBlockSize: 64, OutputBlockSize: 128}
	cfg.normalize()

	if cfg.StopBits != 2 {
		t.Errorf("StopBits = %d, want 2", cfg.StopBits)
	}
	if cfg.InputBlockSize != 64 || cfg.OutputBlockSize != 128 {
		t.Errorf("block sizes = %d/%d, want 64/128", cfg.InputBlockSize, cfg.OutputBlockSize)
	}
}

func TestFlowControlString(t *testing.T) {
	cases := map[FlowControl]string{
		FlowControlNone:    "none",
		FlowControlRTSCTS:  "rtscts",
		FlowControlXonXoff: "xonxoff",
	}
	for fc, want := range cases {
		if got := fc.String(); got != want {
			t.Errorf("FlowControl(%d).String() = %q, want %q", fc, got, want)
		}
	}
}
