package link

import "time"

// ResetMethod selects how reset_peer() signals the NCP to restart,
// mirroring ASH_RESET_METHOD_* in ash-host.h.
type ResetMethod int

const (
	ResetMethodRST ResetMethod = iota
	ResetMethodDTR
	ResetMethodCustom
	ResetMethodNone
)

func (m ResetMethod) String() string {
	switch m {
	case ResetMethodRST:
		return "rst"
	case ResetMethodDTR:
		return "dtr"
	case ResetMethodCustom:
		return "custom"
	case ResetMethodNone:
		return "none"
	default:
		return "unknown"
	}
}

// Config holds every link-layer parameter named in ash-host.h's
// AshHostConfig, minus the serial-port fields (those live in package
// serial) and trace flags (package trace).
type Config struct {
	// WindowSize is the maximum number of unacknowledged DATA frames
	// allowed outstanding (1-7).
	WindowSize uint8

	// Randomize enables XOR-masking of DATA payloads (AshHostConfig.randomize).
	Randomize bool

	// AckTimeInit, AckTimeMin, AckTimeMax bound the adaptive retransmit
	// timer (AshHostConfig.ackTimeInit/Min/Max).
	AckTimeInit time.Duration
	AckTimeMin  time.Duration
	AckTimeMax  time.Duration

	// TimeRst is how long reset_peer() waits for RSTACK after
	// requesting a reset (AshHostConfig.timeRst).
	TimeRst time.Duration

	// MaxTimeouts is the number of consecutive retransmit timeouts
	// before the link declares itself Failed (ASH_MAX_TIMEOUTS).
	MaxTimeouts int

	// TxPoolSize and RxPoolSize size the transmit and receive buffer
	// pools. Per spec.md §3, a natural tx pool size is RxPoolSize + 5.
	TxPoolSize int
	RxPoolSize int

	// NrLowWaterMark / NrHighWaterMark are free-rx-buffer thresholds
	// that set/clear the local Not-Ready flag (AshHostConfig.nrLowLimit/
	// nrHighLimit). Computed via DefaultWaterMarks if left zero.
	NrLowWaterMark  int
	NrHighWaterMark int

	// NrTime is how often a standing Not-Ready advertisement must be
	// refreshed (AshHostConfig.nrTime).
	NrTime time.Duration

	// ResetMethod selects how ResetPeer signals the NCP.
	ResetMethod ResetMethod

	// CustomReset is invoked when ResetMethod is ResetMethodCustom.
	CustomReset func() error

	// DTRPulseWidth is how long the DTR line is held low for
	// ResetMethodDTR (spec.md §9 "Reset-line pulsing").
	DTRPulseWidth time.Duration
}

// DefaultWaterMarks scales the original's RX_FREE_LWM=8/RX_FREE_HWM=12
// constants (tuned for a 12-buffer rx pool) proportionally to an
// arbitrary pool size, per DESIGN.md's resolution of spec.md's Open
// Question about the Not-Ready thresholds.
func DefaultWaterMarks(rxPoolSize int) (lwm, hwm int) {
	if rxPoolSize >= 12 {
		return 8, 12
	}
	lwm = rxPoolSize * 8 / 12
	if lwm < 1 {
		lwm = 1
	}
	hwm = rxPoolSize - 1
	if hwm <= lwm {
		hwm = lwm + 1
	}
	return lwm, hwm
}

// normalize fills in zero-valued fields with their defaults, mirroring
// ashSelectHostConfig's role of applying a named profile before start().
func (c *Config) normalize() {
	if c.WindowSize == 0 {
		c.WindowSize = 3
	}
	if c.AckTimeInit == 0 {
		c.AckTimeInit = 1600 * time.Millisecond / 4 // 400ms, ASH default
	}
	if c.AckTimeMin == 0 {
		c.AckTimeMin = 400 * time.Millisecond / 10 // 40ms, ASH default
	}
	if c.AckTimeMax == 0 {
		c.AckTimeMax = 2400 * time.Millisecond
	}
	if c.TimeRst == 0 {
		c.TimeRst = 2500 * time.Millisecond
	}
	if c.MaxTimeouts == 0 {
		c.MaxTimeouts = 6 // ASH_MAX_TIMEOUTS
	}
	if c.RxPoolSize == 0 {
		c.RxPoolSize = 12
	}
	if c.TxPoolSize == 0 {
		c.TxPoolSize = c.RxPoolSize + 5
	}
	if c.NrLowWaterMark == 0 && c.NrHighWaterMark == 0 {
		c.NrLowWaterMark, c.NrHighWaterMark = DefaultWaterMarks(c.RxPoolSize)
	}
	if c.NrTime == 0 {
		c.NrTime = 1000 * time.Millisecond
	}
	if c.DTRPulseWidth == 0 {
		c.DTRPulseWidth = 50 * time.Millisecond
	}
}
