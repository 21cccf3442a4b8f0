//go:build linux

package serial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetDTR raises or lowers the DTR modem control line. tarm/serial's
// Config has no DTR option and doesn't expose the underlying file
// descriptor, so this reopens the device path directly (the port
// itself stays open throughout) just long enough to issue the
// TIOCMBIS/TIOCMBIC ioctl, mirroring the TIOCM_DTR pattern used across
// the retrieval pack's termios-level serial code.
func (p *NativePort) SetDTR(raise bool) error {
	fd, err := unix.Open(p.cfg.Device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("serial: reopen %s for DTR control: %w", p.cfg.Device, err)
	}
	defer unix.Close(fd)

	bits := unix.TIOCM_DTR
	ioctlNum := uintptr(unix.TIOCMBIC)
	if raise {
		ioctlNum = uintptr(unix.TIOCMBIS)
	}
	if err := unix.IoctlSetPointerInt(fd, uint(ioctlNum), bits); err != nil {
		return fmt.Errorf("serial: set DTR on %s: %w", p.cfg.Device, err)
	}
	return nil
}
