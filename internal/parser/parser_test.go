package parser_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tff-go/tffilter/internal/dispatch"
	"github.com/tff-go/tffilter/internal/event"
	"github.com/tff-go/tffilter/internal/observer"
	"github.com/tff-go/tffilter/internal/parser"
	"github.com/tff-go/tffilter/internal/scanner"
)

// recordingObserver captures every event offered to it without
// consuming any of them, so the dispatcher always falls through to
// verbatim re-emission (used for the round-trip law in spec.md §8).
type recordingObserver struct {
	observer.Default
	events []event.Event
}

func (r *recordingObserver) HandleChar(_ observer.Context, c rune) bool {
	r.events = append(r.events, event.NewChar(c))
	return false
}
func (r *recordingObserver) HandleEsc(_ observer.Context, i []byte, f byte) bool {
	r.events = append(r.events, event.NewEsc(i, f))
	return false
}
func (r *recordingObserver) HandleCsi(_ observer.Context, p, i []byte, f byte) bool {
	r.events = append(r.events, event.NewCsi(p, i, f))
	return false
}
func (r *recordingObserver) HandleSs2(_ observer.Context, f byte) bool {
	r.events = append(r.events, event.NewSs2(f))
	return false
}
func (r *recordingObserver) HandleSs3(_ observer.Context, f byte) bool {
	r.events = append(r.events, event.NewSs3(f))
	return false
}
func (r *recordingObserver) HandleControlString(_ observer.Context, prefix byte, payload []byte) bool {
	r.events = append(r.events, event.NewControlString(prefix, payload))
	return false
}
func (r *recordingObserver) HandleInvalid(_ observer.Context, seq []byte) bool {
	r.events = append(r.events, event.NewInvalid(seq))
	return false
}

func newHarness() (*parser.Parser, *recordingObserver, *bytes.Buffer) {
	var out bytes.Buffer
	obs := &recordingObserver{}
	ctx := dispatch.New(&out, scanner.New(), obs, false)
	return parser.New(ctx), obs, &out
}

func TestCSISequence(t *testing.T) {
	p, obs, out := newHarness()
	p.Parse([]byte("\x1b[31;1m"))

	require.Len(t, obs.events, 1)
	ev := obs.events[0]
	assert.Equal(t, event.KindCsi, ev.Kind)
	assert.Equal(t, []byte{'3', '1', ';', '1'}, ev.Parameters)
	assert.Empty(t, ev.Intermediates)
	assert.Equal(t, byte('m'), ev.Final)
	assert.Equal(t, "\x1b[31;1m", out.String())
}

func TestMalformedCSIRecovery(t *testing.T) {
	p, obs, out := newHarness()
	p.Parse([]byte("\x1b[?25"))
	p.Parse([]byte("\x1b[H"))

	require.Len(t, obs.events, 2)
	assert.Equal(t, event.KindInvalid, obs.events[0].Kind)
	assert.Equal(t, []byte{0x1B, 0x5B, 0x3F, '2', '5'}, obs.events[0].Bytes)
	assert.Equal(t, event.KindCsi, obs.events[1].Kind)
	assert.Equal(t, byte('H'), obs.events[1].Final)
	assert.Equal(t, "\x1b[?25\x1b[H", out.String())
}

func TestOSCWithBELTerminator(t *testing.T) {
	p, obs, out := newHarness()
	p.Parse([]byte("\x1b]0;hello\x07"))

	require.Len(t, obs.events, 1)
	ev := obs.events[0]
	assert.Equal(t, event.KindControlString, ev.Kind)
	assert.Equal(t, byte(0x5D), ev.Prefix)
	assert.Equal(t, []byte("0;hello"), ev.Payload)
	assert.Equal(t, "\x1b]0;hello\x1b\\", out.String())
}

func TestLoneEscFlushedToChar(t *testing.T) {
	p, _, out := newHarness()
	p.Parse([]byte{0x1B})
	assert.True(t, p.StateIsEsc())

	p.Flush()
	assert.False(t, p.StateIsEsc())
	assert.Equal(t, event.Ground, p.State())
	assert.Equal(t, "\x1b", out.String())
}

func TestGroundPlainASCII(t *testing.T) {
	p, obs, out := newHarness()
	p.Parse([]byte("01234"))
	require.Len(t, obs.events, 5)
	for i, want := range []rune{'0', '1', '2', '3', '4'} {
		assert.Equal(t, event.KindChar, obs.events[i].Kind)
		assert.Equal(t, want, obs.events[i].CodePoint)
	}
	assert.Equal(t, "01234", out.String())
}

func TestSS2SS3(t *testing.T) {
	p, obs, out := newHarness()
	p.Parse([]byte("\x1bNa\x1bOb"))
	require.Len(t, obs.events, 2)
	assert.Equal(t, event.KindSs2, obs.events[0].Kind)
	assert.Equal(t, byte('a'), obs.events[0].Final)
	assert.Equal(t, event.KindSs3, obs.events[1].Kind)
	assert.Equal(t, byte('b'), obs.events[1].Final)
	assert.Equal(t, "\x1bNa\x1bOb", out.String())
}

func TestDCSRoundTrips(t *testing.T) {
	p, obs, out := newHarness()
	p.Parse([]byte("\x1bPsome data\x1b\\"))
	require.Len(t, obs.events, 1)
	ev := obs.events[0]
	assert.Equal(t, event.KindControlString, ev.Kind)
	assert.Equal(t, byte('P'), ev.Prefix)
	assert.Equal(t, []byte("some data"), ev.Payload)
	assert.Equal(t, "\x1bPsome data\x1b\\", out.String())
}

func TestInvalidEscByteAboveRange(t *testing.T) {
	p, obs, out := newHarness()
	// ESC followed by U+00A0 (encoded as 0xC2 0xA0), a valid code point
	// outside the 0x30-0x7E escape-final range.
	p.Parse([]byte{0x1B, 0xC2, 0xA0})
	require.Len(t, obs.events, 1)
	assert.Equal(t, event.KindInvalid, obs.events[0].Kind)
	assert.Equal(t, []byte{0x1B, 0xA0}, obs.events[0].Bytes)
	assert.Equal(t, []byte{0x1B, 0xC2, 0xA0}, out.Bytes())
}

func TestSupplementaryPlaneCodePointDuringEscIntermediateIsNotMisclassified(t *testing.T) {
	p, obs, _ := newHarness()
	p.Parse([]byte{0x1B, ' '}) // ESC SP: enters EscIntermediate with one buffered byte
	require.Equal(t, event.EscIntermediate, p.State())

	// U+10020, whose low byte (0x20) would alias to the 0x20-0x2F
	// intermediate range if the classification truncated the code
	// point to a byte before range-checking it.
	p.Parse([]byte(string(rune(0x10020))))

	require.Len(t, obs.events, 1)
	assert.Equal(t, event.KindInvalid, obs.events[0].Kind)
	assert.Equal(t, event.Ground, p.State())
}

func TestCANAbortsEscape(t *testing.T) {
	p, obs, out := newHarness()
	p.Parse([]byte{0x1B, 0x18})
	require.Len(t, obs.events, 2)
	assert.Equal(t, event.KindInvalid, obs.events[0].Kind)
	assert.Equal(t, []byte{0x1B}, obs.events[0].Bytes)
	assert.Equal(t, event.KindChar, obs.events[1].Kind)
	assert.Equal(t, rune(0x18), obs.events[1].CodePoint)
	assert.Equal(t, event.Ground, p.State())
	assert.Equal(t, []byte{0x1B, 0x18}, out.Bytes())
}

func TestRoundTripIdentityOnDefaultObserver(t *testing.T) {
	inputs := [][]byte{
		[]byte("plain text"),
		[]byte("\x1b[31;1mred\x1b[0m"),
		[]byte("\x1b]0;title\x07"),
		[]byte("\x1bPdcs payload\x1b\\"),
		[]byte("\x1bNx\x1bOy"),
		{0x1B, 0x5B, 0x3F, '2', '5'}, // unterminated CSI, flushed below
	}
	for _, in := range inputs {
		var out bytes.Buffer
		ctx := dispatch.New(&out, scanner.New(), observer.Default{}, false)
		p := parser.New(ctx)
		p.Parse(in)
		p.Flush()
		assert.Equal(t, in, out.Bytes())
	}
}
