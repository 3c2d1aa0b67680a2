// Package event defines the typed variant the parser emits and the
// parser's own state enumeration.
package event

// State is one member of the parser's eleven-state table. The zero value
// is Ground, the state the parser starts and ends a sequence in.
type State int

const (
	Ground State = iota
	Esc
	EscIntermediate
	CsiParameter
	CsiIntermediate
	Ss2
	Ss3
	Osc
	OscEsc
	Str
	StrEsc
)

func (s State) String() string {
	switch s {
	case Ground:
		return "Ground"
	case Esc:
		return "Esc"
	case EscIntermediate:
		return "EscIntermediate"
	case CsiParameter:
		return "CsiParameter"
	case CsiIntermediate:
		return "CsiIntermediate"
	case Ss2:
		return "Ss2"
	case Ss3:
		return "Ss3"
	case Osc:
		return "Osc"
	case OscEsc:
		return "OscEsc"
	case Str:
		return "Str"
	case StrEsc:
		return "StrEsc"
	default:
		return "Unknown"
	}
}

// Kind tags which fields of an Event are meaningful.
type Kind int

const (
	KindChar Kind = iota
	KindEsc
	KindCsi
	KindSs2
	KindSs3
	KindControlString
	KindInvalid
	KindDraw
	KindStart
	KindEnd
	KindResize
)

func (k Kind) String() string {
	switch k {
	case KindChar:
		return "Char"
	case KindEsc:
		return "Esc"
	case KindCsi:
		return "Csi"
	case KindSs2:
		return "Ss2"
	case KindSs3:
		return "Ss3"
	case KindControlString:
		return "ControlString"
	case KindInvalid:
		return "Invalid"
	case KindDraw:
		return "Draw"
	case KindStart:
		return "Start"
	case KindEnd:
		return "End"
	case KindResize:
		return "Resize"
	default:
		return "Unknown"
	}
}

// Event is the tagged variant produced by the parser (spec.md §3).
// Only the fields relevant to Kind are populated; the rest are left
// at their zero value.
type Event struct {
	Kind Kind

	CodePoint rune // Char

	Intermediates []byte // Esc, Csi
	Final         byte   // Esc, Csi, Ss2, Ss3

	Parameters []byte // Csi

	Prefix  byte   // ControlString
	Payload []byte // ControlString

	Bytes []byte // Invalid: the offending subsequence, verbatim

	Rows, Cols int // Resize
}

// NewChar builds a Char event.
func NewChar(c rune) Event { return Event{Kind: KindChar, CodePoint: c} }

// NewEsc builds an Esc event.
func NewEsc(intermediates []byte, final byte) Event {
	return Event{Kind: KindEsc, Intermediates: cloneBytes(intermediates), Final: final}
}

// NewCsi builds a Csi event.
func NewCsi(parameters, intermediates []byte, final byte) Event {
	return Event{
		Kind:          KindCsi,
		Parameters:    cloneBytes(parameters),
		Intermediates: cloneBytes(intermediates),
		Final:         final,
	}
}

// NewSs2 builds an Ss2 event.
func NewSs2(final byte) Event { return Event{Kind: KindSs2, Final: final} }

// NewSs3 builds an Ss3 event.
func NewSs3(final byte) Event { return Event{Kind: KindSs3, Final: final} }

// NewControlString builds a ControlString event (OSC/DCS/SOS/PM/APC).
func NewControlString(prefix byte, payload []byte) Event {
	return Event{Kind: KindControlString, Prefix: prefix, Payload: cloneBytes(payload)}
}

// NewInvalid builds an Invalid event carrying the unparseable bytes
// verbatim, so a pass-through observer can reproduce them exactly.
func NewInvalid(b []byte) Event {
	return Event{Kind: KindInvalid, Bytes: cloneBytes(b)}
}

// NewResize builds a lifecycle Resize event.
func NewResize(rows, cols int) Event {
	return Event{Kind: KindResize, Rows: rows, Cols: cols}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
