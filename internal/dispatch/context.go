// Package dispatch binds a scanner, an observer, and an output sink
// into the ParseContext the parser drives one event at a time.
//
// Grounded on tff/tff.py's ParseContext: put/puts/putu/flush and the
// dispatch_* verbatim-reemission recipes are ported directly from
// there. The optional buffering sink borrows the teacher's
// io.TeeReader trick (terminal/terminal.go) in spirit: a coalescing
// intermediate writer that is drained on flush instead of written to
// on every call.
package dispatch

import (
	"bufio"
	"io"

	"github.com/tff-go/tffilter/internal/event"
	"github.com/tff-go/tffilter/internal/observer"
	"github.com/tff-go/tffilter/internal/scanner"
)

// Sink is the byte-oriented output stream a ParseContext writes to.
type Sink interface {
	io.Writer
}

// Recorder is the narrow slice of internal/telemetry.Metrics that
// Dispatch needs, kept as a local interface so this package doesn't
// import telemetry just to count events by kind.
type Recorder interface {
	IncEvent(kind string)
	IncInvalid()
}

// ParseContext binds a scanner, an observer, and a sink. Assign hands
// bytes to the scanner; Dispatch offers one event at a time to the
// observer, falling back to verbatim serialization when the observer
// does not consume it.
type ParseContext struct {
	scanner  *scanner.Scanner
	observer observer.Observer
	encoding string
	rec      Recorder // nil if no metrics collaborator is attached

	target  Sink
	buf     *bufio.Writer // nil when buffering is disabled
	buffering bool

	highSurrogate uint32 // carries a pending high half across Put calls
}

// SetRecorder attaches a metrics collaborator that Dispatch tallies
// tff_events_total{kind}/tff_invalid_sequences_total against. A nil
// Recorder (the default) makes Dispatch's bookkeeping a no-op.
func (c *ParseContext) SetRecorder(rec Recorder) { c.rec = rec }

// New constructs a ParseContext using UTF-8 as the assigned encoding
// (spec.md §4.8's termenc default). When buffering is true, Put/Putu
// write through an intermediate *bufio.Writer that Flush drains to
// target; when false, every Put/Putu writes straight through.
func New(target Sink, sc *scanner.Scanner, obs observer.Observer, buffering bool) *ParseContext {
	return NewWithEncoding(target, sc, obs, buffering, "UTF-8")
}

// NewWithEncoding is New but with an explicit encoding tag passed to
// the scanner on every Assign, honoring a configured --termenc other
// than the default.
func NewWithEncoding(target Sink, sc *scanner.Scanner, obs observer.Observer, buffering bool, encoding string) *ParseContext {
	if encoding == "" {
		encoding = "UTF-8"
	}
	c := &ParseContext{
		scanner:   sc,
		observer:  obs,
		encoding:  encoding,
		target:    target,
		buffering: buffering,
	}
	if buffering {
		c.buf = bufio.NewWriter(target)
	}
	return c
}

// SetObserver replaces the bound observer.
func (c *ParseContext) SetObserver(obs observer.Observer) { c.observer = obs }

// Observer returns the bound observer, used by Process for lifecycle
// dispatch (Start/End/Draw/Resize aren't routed through Dispatch*
// since they have no verbatim-reemission fallback).
func (c *ParseContext) Observer() observer.Observer { return c.observer }

// Assign hands bytes to the scanner for decoding, and truncates the
// buffering sink if one is in use (spec.md §4.3).
func (c *ParseContext) Assign(data []byte) {
	c.scanner.Assign(data, c.encoding)
	if c.buffering {
		c.buf.Reset(c.target)
	}
}

// Next pulls the next decoded code point from the scanner.
func (c *ParseContext) Next() (rune, bool) { return c.scanner.Next() }

func (c *ParseContext) writer() io.Writer {
	if c.buffering {
		return c.buf
	}
	return c.target
}

// Put encodes and writes one code point to the buffering layer (or
// straight to the target sink when buffering is disabled) as UTF-8,
// handling four ranges: ASCII, BMP non-surrogate, surrogate-pair
// assembly (a high half is held until its low half arrives), and
// supplementary-plane code points, written as one 4-byte sequence.
func (c *ParseContext) Put(ch rune) {
	v := uint32(ch)
	w := c.writer()
	switch {
	case v < 0x80:
		w.Write([]byte{byte(v)})
	case v < 0xD800:
		writeRune(w, rune(v))
	case v < 0xDC00:
		c.highSurrogate = v
	case v < 0xE000:
		if c.highSurrogate != 0 {
			writeRune(w, rune(0x10000+((c.highSurrogate-0xD800)<<10)+(v-0xDC00)))
			c.highSurrogate = 0
		}
	case v < 0x10000:
		writeRune(w, rune(v))
	default:
		writeRune(w, rune(v))
	}
}

func writeRune(w io.Writer, r rune) {
	var buf [4]byte
	n := encodeRune(buf[:], r)
	w.Write(buf[:n])
}

// encodeRune writes r as UTF-8, tolerating lone surrogates (which
// utf8.EncodeRune refuses to encode) by writing them as WTF-8 so a
// pass-through round trip never silently drops bytes.
func encodeRune(buf []byte, r rune) int {
	v := uint32(r)
	switch {
	case v < 0x80:
		buf[0] = byte(v)
		return 1
	case v < 0x800:
		buf[0] = byte(0xC0 | v>>6)
		buf[1] = byte(0x80 | v&0x3F)
		return 2
	case v < 0x10000:
		buf[0] = byte(0xE0 | v>>12)
		buf[1] = byte(0x80 | (v>>6)&0x3F)
		buf[2] = byte(0x80 | v&0x3F)
		return 3
	default:
		buf[0] = byte(0xF0 | v>>18)
		buf[1] = byte(0x80 | (v>>12)&0x3F)
		buf[2] = byte(0x80 | (v>>6)&0x3F)
		buf[3] = byte(0x80 | v&0x3F)
		return 4
	}
}

// Puts writes raw bytes directly to the target sink, bypassing the
// buffering layer entirely.
func (c *ParseContext) Puts(b []byte) {
	c.target.Write(b)
}

// Putu writes pre-encoded text to the buffering layer.
func (c *ParseContext) Putu(s string) {
	io.WriteString(c.writer(), s)
}

// Flush drains the buffering layer to the target sink, tolerating I/O
// errors without propagating them (spec.md §4.3, §7).
func (c *ParseContext) Flush() {
	if c.buffering {
		_ = c.buf.Flush()
	}
	if f, ok := c.target.(interface{ Sync() error }); ok {
		_ = f.Sync()
	}
}

// --- EventDispatcher: one entry point per event.Kind, each either
// offering the event to the observer or serialising it verbatim. ---

// Dispatch offers ev to the bound observer; if unhandled, it is
// re-emitted verbatim per the recipes in spec.md §4.3.
func (c *ParseContext) Dispatch(ev event.Event) {
	if c.rec != nil {
		c.rec.IncEvent(ev.Kind.String())
		if ev.Kind == event.KindInvalid {
			c.rec.IncInvalid()
		}
	}
	switch ev.Kind {
	case event.KindChar:
		c.dispatchChar(ev.CodePoint)
	case event.KindEsc:
		c.dispatchEsc(ev.Intermediates, ev.Final)
	case event.KindCsi:
		c.dispatchCsi(ev.Parameters, ev.Intermediates, ev.Final)
	case event.KindSs2:
		c.dispatchSs2(ev.Final)
	case event.KindSs3:
		c.dispatchSs3(ev.Final)
	case event.KindControlString:
		c.dispatchControlString(ev.Prefix, ev.Payload)
	case event.KindInvalid:
		c.dispatchInvalid(ev.Bytes)
	}
}

func (c *ParseContext) dispatchChar(ch rune) {
	if !c.observer.HandleChar(c, ch) {
		c.Put(ch)
	}
}

func (c *ParseContext) dispatchEsc(intermediates []byte, final byte) {
	if !c.observer.HandleEsc(c, intermediates, final) {
		c.Put(0x1B)
		for _, b := range intermediates {
			c.Put(rune(b))
		}
		c.Put(rune(final))
	}
}

func (c *ParseContext) dispatchCsi(parameters, intermediates []byte, final byte) {
	if !c.observer.HandleCsi(c, parameters, intermediates, final) {
		c.Put(0x1B)
		c.Put(0x5B)
		for _, b := range parameters {
			c.Put(rune(b))
		}
		for _, b := range intermediates {
			c.Put(rune(b))
		}
		c.Put(rune(final))
	}
}

func (c *ParseContext) dispatchSs2(final byte) {
	if !c.observer.HandleSs2(c, final) {
		c.Put(0x1B)
		c.Put(0x4E)
		c.Put(rune(final))
	}
}

func (c *ParseContext) dispatchSs3(final byte) {
	if !c.observer.HandleSs3(c, final) {
		c.Put(0x1B)
		c.Put(0x4F)
		c.Put(rune(final))
	}
}

func (c *ParseContext) dispatchControlString(prefix byte, payload []byte) {
	if !c.observer.HandleControlString(c, prefix, payload) {
		c.Put(0x1B)
		c.Put(rune(prefix))
		for _, b := range payload {
			c.Put(rune(b))
		}
		c.Put(0x1B)
		c.Put(0x5C)
	}
}

func (c *ParseContext) dispatchInvalid(seq []byte) {
	if !c.observer.HandleInvalid(c, seq) {
		for _, b := range seq {
			c.Put(rune(b))
		}
	}
}
