// Command ash-host is an interactive command-line client for the ASH
// link, in the spirit of gopper-host's connect/dictionary/command-loop
// shape but built on config.Profile + ashhost.Host instead of a
// hardcoded Klipper MCU connection.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"ashhost"
	"ashhost/config"
	"ashhost/errs"
	"ashhost/link"
	"ashhost/serial"
	"ashhost/trace"
)

var (
	profileFlag     = pflag.String("profile", "", "named profile (em2xx-115200-rtscts, em2xx-57600-xonxoff, avr-38400-xonxoff)")
	configFlag      = pflag.String("config", "", "path to a YAML profile file, takes precedence over --profile")
	deviceFlag      = pflag.String("device", "/dev/ttyUSB0", "serial device path")
	baudFlag        = pflag.Int("baud", 0, "baud rate override")
	flowFlag        = pflag.String("flow", "", "flow control override: none, rtscts, xonxoff")
	resetMethodFlag = pflag.String("reset-method", "", "reset method override: rst, dtr, custom, none")
	stopBitsFlag    = pflag.Int("stop-bits", 0, "stop bits override: 1 or 2")
	inBlockFlag     = pflag.Int("in-block", 0, "input block size override")
	outBlockFlag    = pflag.Int("out-block", 0, "output block size override")
	randomizeFlag   = pflag.Bool("randomize", false, "enable ASH payload randomization")
	traceFlag       = pflag.Uint8("trace", 0, "trace bitmask (see package trace)")
)

func main() {
	pflag.Parse()
	os.Exit(run())
}

func run() int {
	logger := log.Default()

	profile, err := resolveProfile()
	if err != nil {
		logger.Error("failed to resolve profile", "err", err)
		return 1
	}
	profile.Serial.Device = *deviceFlag
	applyOverrides(&profile)

	host, err := ashhost.Init(profile, ashhost.Options{
		IsCallback: func(payload []byte) bool { return len(payload) > 0 && payload[0]&0x80 != 0 },
		OnCallback: func(payload []byte) {
			fmt.Printf("callback: % x\n", payload)
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("init failed", "err", errs.Describe(err))
		return 1
	}
	defer host.Close()

	fmt.Println("ash-host connected; type 'help' for commands, 'quit' to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if code, exit := dispatch(host, line); exit {
			return code
		}
		if err := host.Tick(); err != nil {
			logger.Error("link failed", "err", errs.Describe(err))
			return 1
		}
	}
	return 0
}

func dispatch(host *ashhost.Host, line string) (code int, exit bool) {
	parts := strings.Fields(line)
	switch parts[0] {
	case "quit", "exit", "q":
		fmt.Println("goodbye")
		return 0, true
	case "help", "?":
		printHelp()
	case "state":
		fmt.Println(host.State())
	case "pending":
		fmt.Println(host.IsCallbackPending())
	case "send":
		if len(parts) < 2 {
			fmt.Println("usage: send <hex bytes>")
			return 0, false
		}
		payload, err := parseHex(parts[1])
		if err != nil {
			fmt.Printf("bad hex: %v\n", err)
			return 0, false
		}
		resp, err := host.SendCommand(payload)
		if err != nil {
			fmt.Printf("command failed: %v\n", err)
			return 0, false
		}
		fmt.Printf("response: % x\n", resp)
	default:
		fmt.Printf("unknown command: %s\n", parts[0])
	}
	return 0, false
}

func printHelp() {
	fmt.Println("\navailable commands:")
	fmt.Println("  help              - show this help message")
	fmt.Println("  state             - print link state")
	fmt.Println("  pending           - print whether a callback is pending")
	fmt.Println("  send <hex bytes>  - send a command, e.g. send 0102ab")
	fmt.Println("  quit/exit/q       - exit the program")
	fmt.Println()
}

func parseHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

func resolveProfile() (config.Profile, error) {
	if *configFlag != "" {
		return config.Load(*configFlag)
	}
	if *profileFlag != "" {
		return config.Builtin(config.ProfileName(*profileFlag))
	}
	return config.Builtin(config.EM2xxRTSCTS115200)
}

func applyOverrides(p *config.Profile) {
	if *baudFlag != 0 {
		p.Serial.Baud = *baudFlag
	}
	if *flowFlag != "" {
		switch *flowFlag {
		case "rtscts":
			p.Serial.Flow = serial.FlowControlRTSCTS
		case "xonxoff":
			p.Serial.Flow = serial.FlowControlXonXoff
		default:
			p.Serial.Flow = serial.FlowControlNone
		}
	}
	if *resetMethodFlag != "" {
		switch *resetMethodFlag {
		case "dtr":
			p.Link.ResetMethod = link.ResetMethodDTR
		case "custom":
			p.Link.ResetMethod = link.ResetMethodCustom
		case "none":
			p.Link.ResetMethod = link.ResetMethodNone
		default:
			p.Link.ResetMethod = link.ResetMethodRST
		}
	}
	if *stopBitsFlag != 0 {
		p.Serial.StopBits = *stopBitsFlag
	}
	if *inBlockFlag != 0 {
		p.Serial.InputBlockSize = *inBlockFlag
	}
	if *outBlockFlag != 0 {
		p.Serial.OutputBlockSize = *outBlockFlag
	}
	if *randomizeFlag {
		p.Serial.Randomize = true
		p.Link.Randomize = true
	}
	if *traceFlag != 0 {
		p.Trace = trace.Flags(*traceFlag)
	}
}
