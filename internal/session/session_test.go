package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tff-go/tffilter/internal/process"
	"github.com/tff-go/tffilter/internal/ptydevice"
)

// newTestProcess spawns a real, short-lived PTY-backed process (cat,
// which just echoes stdin back) so AddSubordinate/DestructSubordinate
// have a genuine file descriptor and PID to key off, without needing
// a controlling terminal of our own.
func newTestProcess(t *testing.T) *process.Process {
	t.Helper()
	pty, err := ptydevice.Open(0, "xterm-256color", "C", []string{"cat"})
	require.NoError(t, err)
	t.Cleanup(func() {
		pty.Close()
	})
	var toChild, toTerminal bytes.Buffer
	return process.New(pty, &toChild, &toTerminal, process.Config{Name: "sub"})
}

func TestAddSubordinateFocusesIt(t *testing.T) {
	main := newTestProcess(t)
	sess := New(0, main, nil, nil)

	sub := newTestProcess(t)
	fd := int(sub.PTY().Fd())
	sess.AddSubordinate("editor", sub)

	gotFd, gotProc := sess.focusedProcess()
	assert.Equal(t, fd, gotFd)
	assert.Same(t, sub, gotProc)
}

func TestFocusSubordinateZeroReturnsFocusToMain(t *testing.T) {
	main := newTestProcess(t)
	sess := New(0, main, nil, nil)

	sub := newTestProcess(t)
	sess.AddSubordinate("editor", sub)

	sess.FocusSubordinate(0)

	gotFd, gotProc := sess.focusedProcess()
	assert.Equal(t, 0, gotFd)
	assert.Same(t, main, gotProc)
}

func TestFocusSubordinateIgnoresUnknownFd(t *testing.T) {
	main := newTestProcess(t)
	sess := New(0, main, nil, nil)

	sub := newTestProcess(t)
	fd := int(sub.PTY().Fd())
	sess.AddSubordinate("editor", sub)

	sess.FocusSubordinate(99999)

	gotFd, _ := sess.focusedProcess()
	assert.Equal(t, fd, gotFd, "an unregistered fd must not change focus")
}

func TestDestructSubordinateReturnsFocusToMainAndForgetsIt(t *testing.T) {
	main := newTestProcess(t)
	sess := New(0, main, nil, nil)

	sub := newTestProcess(t)
	fd := int(sub.PTY().Fd())
	sess.AddSubordinate("editor", sub)

	sess.DestructSubordinate(fd)

	gotFd, gotProc := sess.focusedProcess()
	assert.Equal(t, 0, gotFd)
	assert.Same(t, main, gotProc)
	assert.Empty(t, sess.subordinateFds())
}

func TestDestructSubordinateOfUnknownFdIsNoOp(t *testing.T) {
	main := newTestProcess(t)
	sess := New(0, main, nil, nil)

	sub := newTestProcess(t)
	fd := int(sub.PTY().Fd())
	sess.AddSubordinate("editor", sub)

	sess.DestructSubordinate(99999)

	gotFd, _ := sess.focusedProcess()
	assert.Equal(t, fd, gotFd, "destructing an unrelated fd must not disturb current focus")
	assert.Len(t, sess.subordinateFds(), 1)
}

func TestAddingASecondSubordinateMovesFocusToIt(t *testing.T) {
	main := newTestProcess(t)
	sess := New(0, main, nil, nil)

	first := newTestProcess(t)
	sess.AddSubordinate("first", first)

	second := newTestProcess(t)
	secondFd := int(second.PTY().Fd())
	sess.AddSubordinate("second", second)

	gotFd, gotProc := sess.focusedProcess()
	assert.Equal(t, secondFd, gotFd)
	assert.Same(t, second, gotProc)
	assert.Len(t, sess.subordinateFds(), 2)
}

func TestStopIsIdempotentAndClosesDone(t *testing.T) {
	main := newTestProcess(t)
	sess := New(0, main, nil, nil)

	assert.NotPanics(t, func() {
		sess.Stop()
		sess.Stop()
	})

	select {
	case <-sess.done:
	default:
		t.Fatal("done channel should be closed after Stop")
	}
}
