package link

// ResetReason is the abstract reset-reason code carried in an RSTACK or
// ERROR frame's fixed payload byte (spec.md §6). The link reports it
// verbatim to the upper layer without interpreting it.
type ResetReason uint8

const (
	ResetUnknown ResetReason = iota
	ResetExternal
	ResetPowerOn
	ResetWatchdog
	ResetBrownout
	ResetDebug
	ResetAssertion
	ResetStackOverflow
	ResetBootloader
	ResetPCRollover
	ResetSoftware
)

func (r ResetReason) String() string {
	switch r {
	case ResetUnknown:
		return "unknown"
	case ResetExternal:
		return "external"
	case ResetPowerOn:
		return "power-on"
	case ResetWatchdog:
		return "watchdog"
	case ResetBrownout:
		return "brownout"
	case ResetDebug:
		return "debug"
	case ResetAssertion:
		return "assertion"
	case ResetStackOverflow:
		return "stack overflow"
	case ResetBootloader:
		return "bootloader"
	case ResetPCRollover:
		return "pc rollover"
	case ResetSoftware:
		return "software"
	default:
		return "unknown"
	}
}
