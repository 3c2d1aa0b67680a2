// Package session drives the select(2) loop that multiplexes one
// controlling terminal against a main child process and any number of
// subordinate child processes, routing input to whichever one has
// focus and output from every one of them back to the controlling
// terminal.
//
// Grounded on tff/tff.py's Session: drive/add_subtty/focus_subprocess/
// destruct_subprocess and the SIGWINCH/SIGCHLD-driven resize/reap
// handling are translated from there, select.select becoming
// golang.org/x/sys/unix.Select.
package session

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/tff-go/tffilter/internal/process"
	"github.com/tff-go/tffilter/internal/telemetry"
)

// selectTimeout bounds how long Drive blocks between polling for a
// resize or child-exit signal, mirroring spec.md §4.7's 0.6s poll
// period for portability with select implementations that don't wake
// on every signal.
const selectTimeout = 600 * unixMillisecond

const unixMillisecond = 1_000_000 // nanoseconds, kept local to avoid importing time just for this

// subordinate is one additional child process beyond the session's
// main process, keyed by its PTY's master file descriptor.
type subordinate struct {
	name string
	proc *process.Process
}

// Session owns the main process, zero or more subordinates, and the
// focus state deciding which one receives bytes typed at the real
// controlling terminal.
type Session struct {
	stdinFd int
	main    *process.Process

	mu           sync.Mutex
	subordinates map[int]*subordinate // keyed by PTY master fd
	focusFd      int                  // 0 means "focus is the main process"

	sigchld  chan os.Signal
	done     chan struct{}
	doneOnce sync.Once

	log *telemetry.Logger
	met *telemetry.Metrics
}

// New constructs a Session around the main process, reading input
// from stdinFd (normally int(os.Stdin.Fd())).
func New(stdinFd int, main *process.Process, log *telemetry.Logger, met *telemetry.Metrics) *Session {
	return &Session{
		stdinFd:      stdinFd,
		main:         main,
		subordinates: make(map[int]*subordinate),
		sigchld:      make(chan os.Signal, 1),
		done:         make(chan struct{}),
		log:          log,
		met:          met,
	}
}

// AddSubordinate registers an additional child process, giving it
// input focus — mirroring Session.add_subtty's "last added tty
// becomes the input target" behavior in the reference implementation.
// The process losing focus is drained first, per spec.md §4.7.
func (s *Session) AddSubordinate(name string, proc *process.Process) {
	s.mu.Lock()
	losing := s.focusedProcessLocked()
	fd := int(proc.PTY().Fd())
	s.subordinates[fd] = &subordinate{name: name, proc: proc}
	s.focusFd = fd
	s.mu.Unlock()

	losing.Drain()
	proc.Start()
}

// FocusSubordinate switches the input target to a previously
// registered subordinate; focusing an unregistered fd is a no-op, and
// fd 0 refocuses the main process (Session.blur_subprocess). The
// process losing focus is drained first — spec.md §4.7 requires a
// focus switch to flush any partial sequence held by the outgoing
// focus's input parser as an Invalid event before reassigning.
func (s *Session) FocusSubordinate(fd int) {
	s.mu.Lock()
	var next *process.Process
	switch {
	case fd == 0:
		next = s.main
	default:
		if sub, ok := s.subordinates[fd]; ok {
			next = sub.proc
		}
	}
	if next == nil {
		s.mu.Unlock()
		return
	}
	losing := s.focusedProcessLocked()
	s.focusFd = fd
	s.mu.Unlock()

	if losing != next {
		losing.Drain()
	}
}

// DestructSubordinate ends and closes a subordinate, returning focus
// to the main process, mirroring Session.destruct_subprocess.
func (s *Session) DestructSubordinate(fd int) {
	s.mu.Lock()
	sub, ok := s.subordinates[fd]
	if ok {
		delete(s.subordinates, fd)
		if s.focusFd == fd {
			s.focusFd = 0
		}
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	sub.proc.End()
	sub.proc.PTY().Close()
	s.main.ProcessOutput(nil)
}

func (s *Session) focusedProcessLocked() *process.Process {
	if s.focusFd == 0 {
		return s.main
	}
	if sub, ok := s.subordinates[s.focusFd]; ok {
		return sub.proc
	}
	return s.main
}

func (s *Session) focusedProcess() (fd int, proc *process.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focusFd, s.focusedProcessLocked()
}

func (s *Session) subordinateFds() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fds := make([]int, 0, len(s.subordinates))
	for fd := range s.subordinates {
		fds = append(fds, fd)
	}
	return fds
}

// Stop requests the driver loop to exit after its current iteration.
func (s *Session) Stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Drive runs the select-based event loop until a read of the main PTY
// returns EOF or EIO, a read of the controlling terminal's stdin fails
// with an error other than EAGAIN (a zero-length stdin read does not
// end the loop), a fatal select error occurs, or Stop is called. It installs SIGWINCH and SIGCHLD
// handlers for the duration of the call and restores defaults on
// return, mirroring Session.drive's signal.signal(SIGWINCH, onresize)
// plus this expansion's addition of SIGCHLD-driven subordinate reap
// (spec.md's original didn't name SIGCHLD explicitly, but
// tff/tff.py's parent relies on OSError/EIO from a dead child's fd
// instead — select already surfaces that as an exceptional/zero-read
// condition here, so SIGCHLD is used only to proactively reap a
// subordinate rather than to detect the main child's exit).
func (s *Session) Drive() error {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	signal.Notify(s.sigchld, syscall.SIGCHLD)
	defer signal.Stop(winch)
	defer signal.Stop(s.sigchld)

	s.main.Start()
	defer s.main.End()

	mainFd := int(s.main.PTY().Fd())
	buf := make([]byte, 65536)

	for {
		select {
		case <-s.done:
			return nil
		case <-winch:
			s.handleResize()
			continue
		case <-s.sigchld:
			s.reapExitedSubordinates()
			continue
		default:
		}

		var rfds unix.FdSet
		rfds.Set(s.stdinFd)
		rfds.Set(mainFd)
		nfd := max(s.stdinFd, mainFd)
		subFds := s.subordinateFds()
		for _, fd := range subFds {
			rfds.Set(fd)
			if fd > nfd {
				nfd = fd
			}
		}

		tv := unix.NsecToTimeval(selectTimeout)
		n, err := unix.Select(nfd+1, &rfds, nil, nil, &tv)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EBADF) {
				s.reapExitedSubordinates()
				continue
			}
			return err
		}
		if n == 0 {
			continue // timeout: loop back to re-check signals
		}

		if rfds.IsSet(mainFd) {
			nread, rerr := s.main.PTY().Read(buf)
			if nread > 0 {
				s.main.ProcessOutput(buf[:nread])
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) || errors.Is(rerr, syscall.EIO) {
					return nil
				}
			}
		}

		if rfds.IsSet(s.stdinFd) {
			nread, rerr := unix.Read(s.stdinFd, buf)
			if nread > 0 {
				_, target := s.focusedProcess()
				target.ProcessInput(buf[:nread])
			}
			if rerr != nil && rerr != unix.EAGAIN {
				return nil
			}
		}

		for _, fd := range subFds {
			if !rfds.IsSet(fd) {
				continue
			}
			s.mu.Lock()
			sub := s.subordinates[fd]
			s.mu.Unlock()
			if sub == nil {
				continue
			}
			nread, rerr := sub.proc.PTY().Read(buf)
			if nread > 0 {
				sub.proc.ProcessOutput(buf[:nread])
			}
			if rerr != nil {
				s.DestructSubordinate(fd)
			}
		}
	}
}

func (s *Session) handleResize() {
	rows, cols, err := s.main.PTY().Fitsize()
	if err != nil {
		if s.log != nil {
			s.log.Warn("fitsize failed: %v", err)
		}
		return
	}
	s.main.ProcessResize(rows, cols)
}

func (s *Session) reapExitedSubordinates() {
	for _, fd := range s.subordinateFds() {
		s.mu.Lock()
		sub := s.subordinates[fd]
		s.mu.Unlock()
		if sub == nil {
			continue
		}
		var ws unix.WaitStatus
		pid, err := unix.Wait4(sub.proc.PTY().Pid(), &ws, unix.WNOHANG, nil)
		if err == nil && pid == sub.proc.PTY().Pid() {
			s.DestructSubordinate(fd)
		}
	}
}
