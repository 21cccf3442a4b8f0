package link

import "io"

// Port is the minimal serial-port contract the link engine needs: a
// non-blocking-ish Reader (Read should return promptly with whatever
// is available, per spec.md §5's "suspension points"), a Writer, and
// an explicit output flush. package serial's Port satisfies this
// structurally, so link never imports serial and stays testable
// against an in-memory loopback.
type Port interface {
	io.Reader
	io.Writer
	Flush() error
}

// dtrPort is implemented by ports that can pulse the DTR line for the
// ASH_RESET_METHOD_DTR reset method.
type dtrPort interface {
	SetDTR(bool) error
}
