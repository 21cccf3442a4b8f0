//go:build !linux

package serial

import "fmt"

// SetDTR is unsupported outside Linux in this build and always returns
// an error; a DTR reset (link.ResetMethodDTR) on such a platform fails
// with a HostFatalError that wraps this error.
func (p *NativePort) SetDTR(bool) error {
	return fmt.Errorf("serial: DTR control not implemented on this platform")
}
