package dispatch_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tff-go/tffilter/internal/dispatch"
	"github.com/tff-go/tffilter/internal/event"
	"github.com/tff-go/tffilter/internal/observer"
	"github.com/tff-go/tffilter/internal/scanner"
)

func TestDispatchCharVerbatimWithDefaultObserver(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, false)

	ctx.Dispatch(event.NewChar('A'))
	assert.Equal(t, "A", out.String())
}

func TestDispatchCsiVerbatim(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, false)

	ctx.Dispatch(event.NewCsi([]byte("31;1"), nil, 'm'))
	assert.Equal(t, "\x1b[31;1m", out.String())
}

func TestDispatchControlStringVerbatimReterminatesWithEscBackslash(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, false)

	ctx.Dispatch(event.NewControlString(0x5D, []byte("0;title")))
	assert.Equal(t, "\x1b]0;title\x1b\\", out.String())
}

func TestDispatchInvalidReemitsRawBytes(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, false)

	ctx.Dispatch(event.NewInvalid([]byte{0x1B, 0x5B, 0x3F}))
	assert.Equal(t, "\x1b[?", out.String())
}

// consumingObserver swallows every event it is offered, letting a
// test confirm the dispatcher's verbatim fallback is properly
// suppressed when an observer handles something itself.
type consumingObserver struct {
	observer.Default
	sawChar bool
}

func (c *consumingObserver) HandleChar(ctx observer.Context, r rune) bool {
	c.sawChar = true
	ctx.Putu("<" + string(r) + ">")
	return true
}

func TestDispatchSuppressedWhenObserverConsumes(t *testing.T) {
	var out bytes.Buffer
	obs := &consumingObserver{}
	ctx := dispatch.New(&out, scanner.New(), obs, false)

	ctx.Dispatch(event.NewChar('x'))
	assert.True(t, obs.sawChar)
	assert.Equal(t, "<x>", out.String())
}

func TestBufferingWithholdsUntilFlush(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, true)

	ctx.Dispatch(event.NewChar('y'))
	assert.Empty(t, out.String(), "buffered output withheld before Flush")

	ctx.Flush()
	assert.Equal(t, "y", out.String())
}

func TestAssignResetsBufferingLayer(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, true)

	ctx.Dispatch(event.NewChar('z'))
	ctx.Assign([]byte("ignored")) // a fresh Assign truncates anything unflushed
	ctx.Flush()

	assert.Empty(t, out.String(), "Assign should discard the unflushed 'z'")
}

func TestPutEncodesSurrogatePairIntoSupplementaryPlaneUTF8(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, false)

	// U+1F600 GRINNING FACE as a UTF-16 surrogate pair: D83D DE00.
	ctx.Put(0xD83D)
	ctx.Put(0xDE00)

	r := []rune(out.String())
	require.Len(t, r, 1)
	assert.Equal(t, rune(0x1F600), r[0])
}

func TestNewWithEncodingDefaultsEmptyStringToUTF8(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.NewWithEncoding(&out, scanner.New(), observer.Default{}, false, "")

	ctx.Dispatch(event.NewChar('q'))
	assert.Equal(t, "q", out.String())
}

type fakeRecorder struct {
	kinds   []string
	invalid int
}

func (f *fakeRecorder) IncEvent(kind string) { f.kinds = append(f.kinds, kind) }
func (f *fakeRecorder) IncInvalid()          { f.invalid++ }

func TestDispatchTalliesEventsAgainstAttachedRecorder(t *testing.T) {
	var out bytes.Buffer
	rec := &fakeRecorder{}
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, false)
	ctx.SetRecorder(rec)

	ctx.Dispatch(event.NewChar('a'))
	ctx.Dispatch(event.NewInvalid([]byte{0x1B}))

	assert.Equal(t, []string{"Char", "Invalid"}, rec.kinds)
	assert.Equal(t, 1, rec.invalid)
}

func TestPutsBypassesBufferingLayer(t *testing.T) {
	var out bytes.Buffer
	ctx := dispatch.New(&out, scanner.New(), observer.Default{}, true)

	ctx.Puts([]byte("raw"))
	assert.Equal(t, "raw", out.String(), "Puts must reach the sink even while buffering is enabled")
}
