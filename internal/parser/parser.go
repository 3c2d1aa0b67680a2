// Package parser implements the byte-oriented terminal event parser
// (spec.md §4.2): an eleven-state DFA over code points that classifies an
// arbitrary stream into Char/Esc/Csi/Ss2/Ss3/ControlString/Invalid
// events.
//
// The state-as-function shape (each state a small step that reads one
// code point and returns the next state) comes from the teacher's
// terminal/parser.go. The transition table itself — including the
// OSC/DCS/SOS/PM/APC split, CSI parameter/intermediate handling, and
// CAN/SUB recovery — is ported from original_source/tff/parser.py's
// DefaultParser.parse, which implements the reference table exactly;
// the teacher's own table is a simplified HTML-terminal variant and
// was not a faithful source for this component.
//
// Like the reference Python implementation (which iterates decoded
// unicode code points, not raw bytes), this parser steps over the
// code points the scanner already decoded — identical to stepping
// over raw bytes for any ASCII-range control/CSI/ESC byte, which is
// all this table ever inspects numerically.
package parser

import (
	"github.com/tff-go/tffilter/internal/ascii"
	"github.com/tff-go/tffilter/internal/dispatch"
	"github.com/tff-go/tffilter/internal/event"
)

// Parser is a single terminal-event state machine. It holds no
// channel or goroutine state: Parse is driven synchronously by its
// caller (Process, in the normal wiring).
type Parser struct {
	ctx *dispatch.ParseContext

	state  event.State
	pbytes []byte
	ibytes []byte
}

// New binds a Parser to the ParseContext it will dispatch events
// through.
func New(ctx *dispatch.ParseContext) *Parser {
	return &Parser{ctx: ctx, state: event.Ground}
}

// State returns the parser's current state, mainly for tests.
func (p *Parser) State() event.State { return p.state }

// StateIsEsc reports whether the parser is holding a partial sequence
// (state != Ground), used by Process to decide whether to arm the ESC
// timeout (spec.md §4.2 "Inquiry").
func (p *Parser) StateIsEsc() bool { return p.state != event.Ground }

// Reset discards any buffered prefix without emitting an event
// (spec.md §4.2 "Flush and reset").
func (p *Parser) Reset() {
	p.state = event.Ground
	p.pbytes = p.pbytes[:0]
	p.ibytes = p.ibytes[:0]
}

// Flush is invoked when the session has held a partial sequence past
// the ESC timeout. It synthesises an Invalid (or, from the bare Esc
// state, a Char(0x1B)) event carrying the buffered prefix, then
// resets to Ground.
func (p *Parser) Flush() {
	switch p.state {
	case event.Ground:
		// nothing buffered
	case event.Esc:
		p.ctx.Dispatch(event.NewChar(0x1B))
	default:
		p.ctx.Dispatch(event.NewInvalid(append([]byte{0x1B}, p.prefixBytes()...)))
	}
	p.Reset()
}

// prefixBytes reconstructs the introducer bytes already consumed for
// the in-progress sequence, used by Flush to report a faithful
// Invalid payload (not counting the leading 0x1B, added by Flush).
func (p *Parser) prefixBytes() []byte {
	switch p.state {
	case event.CsiParameter, event.CsiIntermediate:
		out := append([]byte{0x5B}, p.pbytes...)
		return append(out, p.ibytes...)
	case event.EscIntermediate:
		return append([]byte{}, p.ibytes...)
	case event.Osc, event.Str:
		out := append([]byte{}, p.pbytes...)
		return append(out, p.ibytes...)
	case event.OscEsc, event.StrEsc:
		out := append([]byte{}, p.pbytes...)
		out = append(out, p.ibytes...)
		return append(out, 0x1B) // the ESC that may have started ST
	case event.Ss2:
		return []byte{0x4E}
	case event.Ss3:
		return []byte{0x4F}
	default:
		return nil
	}
}

// Parse assigns data to the bound context's scanner and steps the
// state machine one code point at a time until the buffer is
// exhausted, dispatching one event per completed sequence (and, in
// Ground, one event per code point).
func (p *Parser) Parse(data []byte) {
	p.ctx.Assign(data)
	for {
		c, ok := p.ctx.Next()
		if !ok {
			return
		}
		p.step(uint32(c))
	}
}

func (p *Parser) dispatch(ev event.Event) { p.ctx.Dispatch(ev) }

func (p *Parser) step(c uint32) {
	switch p.state {
	case event.Ground:
		p.stepGround(c)
	case event.Esc:
		p.stepEsc(c)
	case event.EscIntermediate:
		p.stepEscIntermediate(c)
	case event.CsiParameter:
		p.stepCsiParameter(c)
	case event.CsiIntermediate:
		p.stepCsiIntermediate(c)
	case event.Osc:
		p.stepOsc(c)
	case event.OscEsc:
		p.stepOscEsc(c)
	case event.Str:
		p.stepStr(c)
	case event.StrEsc:
		p.stepStrEsc(c)
	case event.Ss2:
		p.stepSingleShift(c, 0x4E, event.NewSs2)
	case event.Ss3:
		p.stepSingleShift(c, 0x4F, event.NewSs3)
	}
}

// Ground: every code point either starts a sequence (ESC) or is a
// Char in its own right.
func (p *Parser) stepGround(c uint32) {
	if c == 0x1B {
		p.ibytes = p.ibytes[:0]
		p.state = event.Esc
		return
	}
	p.dispatch(event.NewChar(rune(c)))
}

// Esc: dispatch to CSI/OSC/SS2/SS3/DCS-family/independent-escape,
// with CAN/SUB/ESC recovery.
func (p *Parser) stepEsc(c uint32) {
	switch {
	case c == 0x5B: // [
		p.pbytes = p.pbytes[:0]
		p.state = event.CsiParameter
	case c == 0x5D: // ]
		p.pbytes = append(p.pbytes[:0], byte(c))
		p.state = event.Osc
	case c == 0x4E: // N
		p.state = event.Ss2
	case c == 0x4F: // O
		p.state = event.Ss3
	case c == 0x50 || c == 0x58 || c == 0x5E || c == 0x5F: // P, X, ^, _
		p.pbytes = append(p.pbytes[:0], byte(c))
		p.state = event.Str
	case c == 0x1B:
		p.dispatch(event.NewInvalid([]byte{0x1B}))
		p.ibytes = p.ibytes[:0]
		// stay in Esc
	case c == 0x18 || c == 0x1A: // CAN, SUB
		p.dispatch(event.NewInvalid([]byte{0x1B}))
		p.dispatch(event.NewChar(rune(c)))
		p.state = event.Ground
	case c <= 0xFF && ascii.IsCtrl(byte(c)):
		p.dispatch(event.NewChar(rune(c)))
	case c <= 0xFF && ascii.IsIntermediate(byte(c)):
		p.ibytes = append(p.ibytes, byte(c))
		p.state = event.EscIntermediate
	case c <= 0x7E:
		p.dispatch(event.NewEsc(p.ibytes, byte(c)))
		p.state = event.Ground
	case c == 0x7F:
		p.dispatch(event.NewChar(rune(c)))
	default:
		p.dispatch(event.NewInvalid([]byte{0x1B, byte(c)}))
		p.state = event.Ground
	}
}

func (p *Parser) stepEscIntermediate(c uint32) {
	switch {
	case c <= 0xFF && ascii.IsIntermediate(byte(c)):
		p.ibytes = append(p.ibytes, byte(c))
	case c >= 0x30 && c <= 0x7E:
		p.dispatch(event.NewEsc(p.ibytes, byte(c)))
		p.state = event.Ground
	case c == 0x7F:
		p.dispatch(event.NewChar(rune(c)))
	case c == 0x1B:
		p.dispatch(event.NewInvalid(append([]byte{0x1B}, p.ibytes...)))
		p.ibytes = p.ibytes[:0]
		p.state = event.Esc
	case c == 0x18 || c == 0x1A:
		p.dispatch(event.NewInvalid(append([]byte{0x1B}, p.ibytes...)))
		p.dispatch(event.NewChar(rune(c)))
		p.state = event.Ground
	case c <= 0xFF && ascii.IsCtrl(byte(c)):
		p.dispatch(event.NewChar(rune(c)))
	default: // > 0x7E
		seq := append([]byte{0x1B}, p.ibytes...)
		seq = append(seq, byte(c))
		p.dispatch(event.NewInvalid(seq))
		p.state = event.Ground
	}
}

func (p *Parser) stepCsiParameter(c uint32) {
	switch {
	case c <= 0xFF && ascii.IsCSIParam(byte(c)):
		p.pbytes = append(p.pbytes, byte(c))
	case c <= 0xFF && ascii.IsIntermediate(byte(c)):
		p.ibytes = append(p.ibytes, byte(c))
		p.state = event.CsiIntermediate
	case c <= 0xFF && ascii.IsFinal(byte(c)):
		p.dispatch(event.NewCsi(p.pbytes, p.ibytes, byte(c)))
		p.state = event.Ground
	case c == 0x7F:
		p.dispatch(event.NewChar(rune(c)))
	case c == 0x1B:
		p.dispatch(event.NewInvalid(append([]byte{0x1B, 0x5B}, p.pbytes...)))
		p.ibytes = p.ibytes[:0]
		p.state = event.Esc
	case c == 0x18 || c == 0x1A:
		p.dispatch(event.NewInvalid(append([]byte{0x1B, 0x5B}, p.pbytes...)))
		p.dispatch(event.NewChar(rune(c)))
		p.state = event.Ground
	case c <= 0xFF && ascii.IsCtrl(byte(c)):
		p.dispatch(event.NewChar(rune(c)))
	default: // > 0x7E
		p.dispatch(event.NewInvalid(append([]byte{0x1B, 0x5B}, p.pbytes...)))
		p.state = event.Ground
	}
}

func (p *Parser) stepCsiIntermediate(c uint32) {
	switch {
	case c <= 0xFF && ascii.IsIntermediate(byte(c)):
		p.ibytes = append(p.ibytes, byte(c))
	case c <= 0xFF && ascii.IsFinal(byte(c)):
		p.dispatch(event.NewCsi(p.pbytes, p.ibytes, byte(c)))
		p.state = event.Ground
	case c <= 0xFF && ascii.IsCSIParam(byte(c)): // parameter byte here is invalid
		seq := append([]byte{0x1B, 0x5B}, p.pbytes...)
		seq = append(seq, p.ibytes...)
		seq = append(seq, byte(c))
		p.dispatch(event.NewInvalid(seq))
		p.state = event.Ground
	case c == 0x7F:
		p.dispatch(event.NewChar(rune(c)))
	case c == 0x1B:
		seq := append([]byte{0x1B, 0x5B}, p.pbytes...)
		p.dispatch(event.NewInvalid(append(seq, p.ibytes...)))
		p.ibytes = p.ibytes[:0]
		p.state = event.Esc
	case c == 0x18 || c == 0x1A:
		seq := append([]byte{0x1B, 0x5B}, p.pbytes...)
		p.dispatch(event.NewInvalid(append(seq, p.ibytes...)))
		p.dispatch(event.NewChar(rune(c)))
		p.state = event.Ground
	case c <= 0xFF && ascii.IsCtrl(byte(c)):
		p.dispatch(event.NewChar(rune(c)))
	default: // > 0x7E
		seq := append([]byte{0x1B, 0x5B}, p.pbytes...)
		seq = append(seq, p.ibytes...)
		seq = append(seq, byte(c))
		p.dispatch(event.NewInvalid(seq))
		p.state = event.Ground
	}
}

// Osc / Str share the same shape; termination differs (BEL allowed
// only for Osc) and so does the CAN/SUB resolution, per spec.md §9:
// no special CAN/SUB branch — any unlisted control byte under 0x20 is
// simply an invalid terminator.
func (p *Parser) stepOsc(c uint32) { p.stepControlString(c, true, event.OscEsc) }
func (p *Parser) stepStr(c uint32) { p.stepControlString(c, false, event.StrEsc) }

func (p *Parser) stepControlString(c uint32, allowBEL bool, escState event.State) {
	switch {
	case allowBEL && c == 0x07:
		p.dispatch(event.NewControlString(p.prefixByte(), p.ibytes))
		p.state = event.Ground
	case c == 0x1B:
		p.state = escState
	case c >= 0x08 && c <= 0x0D:
		p.ibytes = append(p.ibytes, byte(c))
	case c <= 0xFF && ascii.IsCtrl(byte(c)):
		p.invalidControlString(c)
	default:
		p.ibytes = append(p.ibytes, byte(c))
	}
}

func (p *Parser) invalidControlString(c uint32) {
	seq := append([]byte{0x1B}, p.pbytes...)
	seq = append(seq, p.ibytes...)
	seq = append(seq, byte(c))
	p.dispatch(event.NewInvalid(seq))
	p.state = event.Ground
}

func (p *Parser) stepOscEsc(c uint32) { p.stepControlStringEsc(c) }
func (p *Parser) stepStrEsc(c uint32) { p.stepControlStringEsc(c) }

func (p *Parser) stepControlStringEsc(c uint32) {
	if c == 0x5C { // \  (forms ST)
		p.dispatch(event.NewControlString(p.prefixByte(), p.ibytes))
		p.state = event.Ground
		return
	}
	seq := append([]byte{0x1B}, p.pbytes...)
	seq = append(seq, p.ibytes...)
	seq = append(seq, 0x1B, byte(c))
	p.dispatch(event.NewInvalid(seq))
	p.state = event.Ground
}

func (p *Parser) prefixByte() byte {
	if len(p.pbytes) == 0 {
		return 0
	}
	return p.pbytes[0]
}

func (p *Parser) stepSingleShift(c uint32, introducer byte, build func(byte) event.Event) {
	switch {
	case c == 0x1B:
		p.dispatch(event.NewInvalid([]byte{0x1B, introducer}))
		p.ibytes = p.ibytes[:0]
		p.state = event.Esc
	case c == 0x18 || c == 0x1A:
		p.dispatch(event.NewInvalid([]byte{0x1B, introducer}))
		p.dispatch(event.NewChar(rune(c)))
		p.state = event.Ground
	case c <= 0xFF && ascii.IsCtrl(byte(c)):
		p.dispatch(event.NewChar(rune(c)))
	case c >= 0x20 && c <= 0x7E:
		p.dispatch(build(byte(c)))
		p.state = event.Ground
	default: // >= 0x7F
		p.dispatch(event.NewInvalid([]byte{0x1B, introducer}))
		p.dispatch(event.NewChar(rune(c)))
		p.state = event.Ground
	}
}
