// Package ptydevice owns the master side of a PTY: raw-mode setup on
// the controlling terminal, fork/exec of the child under a PTY slave,
// resize notification, and flow control.
//
// Grounded on tff/tff.py's DefaultPTY: the exact termios bit list
// __setupterm clears/sets, the VINTR/VQUIT/... disable-sentinel loop,
// and the xon/xoff/resize/fitsize operations are ported from there.
// PTY construction itself follows the teacher's main.go, which opens
// the PTY with github.com/creack/pty and resizes it with pty.Setsize.
package ptydevice

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Winsize mirrors the four fields the TIOCSWINSZ/TIOCGWINSZ ioctls
// carry, matching pty.Winsize's layout (spec.md §4.6).
type Winsize = pty.Winsize

// PTY owns a master file descriptor bound to a child process running
// on the slave side, plus the backed-up termios state of the
// controlling terminal this filter is interposed on.
type PTY struct {
	master *os.File
	cmd    *exec.Cmd

	controlFd int
	backup    *unix.Termios // nil if SetupTerm was never called
}

// Open forks command under a new PTY, wiring term/lang into its
// environment. controlFd is the file descriptor of the real
// controlling terminal (normally os.Stdin.Fd()) whose size seeds the
// child's initial window size; it is not itself put in raw mode here
// — call SetupTerm separately, mirroring DefaultPTY's
// tcgetattr(stdin)-before-fork / tcsetattr-in-child split.
func Open(controlFd int, term, lang string, command []string) (*PTY, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("ptydevice: empty command")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), "TERM="+term, "LANG="+lang)

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("ptydevice: start: %w", err)
	}

	p := &PTY{master: master, cmd: cmd, controlFd: controlFd}
	if ws, err := unix.IoctlGetWinsize(controlFd, unix.TIOCGWINSZ); err == nil {
		_ = pty.Setsize(master, &pty.Winsize{Rows: ws.Row, Cols: ws.Col, X: ws.Xpixel, Y: ws.Ypixel})
	}
	return p, nil
}

// Fd returns the master file descriptor, for use in a select(2) set.
func (p *PTY) Fd() uintptr { return p.master.Fd() }

// Pid returns the child's process ID.
func (p *PTY) Pid() int { return p.cmd.Process.Pid }

// Read reads raw bytes produced by the child.
func (p *PTY) Read(b []byte) (int, error) { return p.master.Read(b) }

// Write sends raw bytes to the child's stdin.
func (p *PTY) Write(b []byte) (int, error) { return p.master.Write(b) }

// Close releases the master file descriptor.
func (p *PTY) Close() error { return p.master.Close() }

// Wait blocks until the child exits, returning its exit error (nil on
// a clean zero-status exit).
func (p *PTY) Wait() error { return p.cmd.Wait() }

// Resize applies a new window size to the PTY and signals SIGWINCH to
// the child, matching DefaultPTY.__resize_impl.
func (p *PTY) Resize(rows, cols int) error {
	if err := pty.Setsize(p.master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return err
	}
	return p.cmd.Process.Signal(unix.SIGWINCH)
}

// Fitsize reads the controlling terminal's current size and applies
// it to the PTY, returning the size it read (spec.md §4.6 "fitsize").
func (p *PTY) Fitsize() (rows, cols int, err error) {
	ws, err := unix.IoctlGetWinsize(p.controlFd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}
	if err := p.Resize(int(ws.Row), int(ws.Col)); err != nil {
		return 0, 0, err
	}
	return int(ws.Row), int(ws.Col), nil
}

// Xoff suspends output flow from the child, the Go equivalent of
// termios.tcflow(master, TCOOFF) in DefaultPTY.xoff.
func (p *PTY) Xoff() error { return unix.IoctlSetInt(int(p.master.Fd()), unix.TCXONC, unix.TCOOFF) }

// Xon resumes output flow from the child (DefaultPTY.xon).
func (p *PTY) Xon() error { return unix.IoctlSetInt(int(p.master.Fd()), unix.TCXONC, unix.TCOON) }

// vdisable is Linux's POSIX _POSIX_VDISABLE value (the fpathconf
// PC_VDISABLE result DefaultPTY reads at runtime); Linux hard-codes it
// to 0 rather than exposing it per-filesystem.
const vdisable = 0

// vdsusp is the c_cc index (11) of VDSUSP in the BSD termios layout;
// golang.org/x/sys/unix has no VDSUSP constant on Linux, where index 11
// is VEOL, which has no effect once ICANON is cleared.
// DefaultPTY.__setupterm hard-codes the same index.
const vdsusp = 11

// SetupTerm backs up the controlling terminal's current termios state
// and applies the raw-mode bit changes DefaultPTY.__setupterm makes:
// input processing that would mangle control bytes is disabled,
// output processing is disabled, the character size is forced to 8
// bits with parity off, local echo/canonical-mode/signal-generation/
// extended-input-processing are disabled, and the control characters
// that would otherwise let the user send signals or editing
// keystrokes straight to this process are set to the disabled
// sentinel so they pass through to the child instead.
func (p *PTY) SetupTerm() error {
	backup, err := unix.IoctlGetTermios(p.controlFd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("ptydevice: tcgetattr: %w", err)
	}
	p.backup = backup

	term := *backup
	term.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	term.Oflag &^= unix.OPOST | unix.ONLCR
	term.Cflag &^= unix.CSIZE | unix.PARENB
	term.Cflag |= unix.CS8
	term.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	term.Cc[unix.VEOF] = vdisable
	term.Cc[unix.VINTR] = vdisable
	term.Cc[unix.VREPRINT] = vdisable
	term.Cc[unix.VSTART] = vdisable
	term.Cc[unix.VSTOP] = vdisable
	term.Cc[unix.VLNEXT] = vdisable
	term.Cc[unix.VWERASE] = vdisable
	term.Cc[unix.VKILL] = vdisable
	term.Cc[unix.VSUSP] = vdisable
	term.Cc[unix.VQUIT] = vdisable
	term.Cc[vdsusp] = vdisable

	return unix.IoctlSetTermios(p.controlFd, unix.TCSETS, &term)
}

// RestoreTerm reverts the controlling terminal to the state SetupTerm
// backed up, a no-op if SetupTerm was never called.
func (p *PTY) RestoreTerm() error {
	if p.backup == nil {
		return nil
	}
	return unix.IoctlSetTermios(p.controlFd, unix.TCSETS, p.backup)
}
