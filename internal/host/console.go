// Package host owns the terminal the guest UART talks to: raw mode on a
// real tty, nonblocking input reads, and restoration on shutdown.
package host

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console exchanges bytes between the UART and the host terminal. Reads
// never block: with no input pending they return 0.
type Console struct {
	in  *os.File
	out *os.File

	oldState *term.State
}

// NewConsole sets up stdin/stdout. On a tty, stdin switches to raw mode and
// nonblocking reads; Restore undoes both.
func NewConsole() (*Console, error) {
	c := &Console{in: os.Stdin, out: os.Stdout}

	fd := int(c.in.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, err
		}
		c.oldState = state
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		c.restoreState()
		return nil, err
	}

	return c, nil
}

// NullConsole returns a console that discards output and never produces
// input, for headless runs.
func NullConsole() *Console {
	return &Console{}
}

// Read implements io.Reader without blocking.
func (c *Console) Read(p []byte) (int, error) {
	if c.in == nil {
		return 0, nil
	}
	n, err := unix.Read(int(c.in.Fd()), p)
	if err == unix.EAGAIN || n < 0 {
		return 0, nil
	}
	return n, err
}

// Write implements io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	if c.out == nil {
		return len(p), nil
	}
	return c.out.Write(p)
}

// Restore returns the terminal to its original state.
func (c *Console) Restore() {
	if c.in != nil {
		unix.SetNonblock(int(c.in.Fd()), false)
	}
	c.restoreState()
}

func (c *Console) restoreState() {
	if c.oldState != nil {
		term.Restore(int(c.in.Fd()), c.oldState)
		c.oldState = nil
	}
}

var (
	_ io.Reader = (*Console)(nil)
	_ io.Writer = (*Console)(nil)
)
