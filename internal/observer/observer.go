// Package observer defines the plug-in contract terminal-event
// consumers implement, plus a composer that chains two observers.
//
// Grounded on tff/tff.py's EventObserver / DefaultHandler /
// FilterMultiplexer: the capability set and the "consumed iff both
// sides consumed" composition rule are ported directly from there.
package observer

// Context is the minimal surface an Observer needs from its caller —
// satisfied by *dispatch.ParseContext without an import cycle between
// the two packages.
type Context interface {
	Put(c rune)
	Puts(b []byte)
	Putu(s string)
}

// Observer is the capability set a terminal-event consumer
// implements. Each handle_* method returns true to consume the event
// (suppressing the dispatcher's verbatim re-emission) or false to let
// it pass through untouched. Lifecycle methods (Start/End/Draw/Resize)
// return nothing; Compose simply fans them out to both observers.
type Observer interface {
	HandleStart(ctx Context)
	HandleEnd(ctx Context)
	HandleDraw(ctx Context)
	HandleResize(ctx Context, rows, cols int)

	HandleChar(ctx Context, c rune) bool
	HandleEsc(ctx Context, intermediates []byte, final byte) bool
	HandleCsi(ctx Context, parameters, intermediates []byte, final byte) bool
	HandleSs2(ctx Context, final byte) bool
	HandleSs3(ctx Context, final byte) bool
	HandleControlString(ctx Context, prefix byte, payload []byte) bool
	HandleInvalid(ctx Context, seq []byte) bool
}

// Default is a pure pass-through observer: every handler returns
// false (or does nothing, for lifecycle events), so the dispatcher
// always re-emits the original bytes verbatim.
type Default struct{}

func (Default) HandleStart(Context)                 {}
func (Default) HandleEnd(Context)                   {}
func (Default) HandleDraw(Context)                  {}
func (Default) HandleResize(Context, int, int)      {}
func (Default) HandleChar(Context, rune) bool        { return false }
func (Default) HandleEsc(Context, []byte, byte) bool { return false }
func (Default) HandleCsi(Context, []byte, []byte, byte) bool {
	return false
}
func (Default) HandleSs2(Context, byte) bool                  { return false }
func (Default) HandleSs3(Context, byte) bool                  { return false }
func (Default) HandleControlString(Context, byte, []byte) bool { return false }
func (Default) HandleInvalid(Context, []byte) bool             { return false }

var _ Observer = Default{}

// composed chains two observers: an event is consumed only if both
// consumed it (spec.md §4.4).
type composed struct {
	lhs, rhs Observer
}

// Compose returns an Observer that offers every event to both l and r
// in order, consuming it only when both of them do.
func Compose(l, r Observer) Observer {
	return composed{lhs: l, rhs: r}
}

func (c composed) HandleStart(ctx Context) {
	c.lhs.HandleStart(ctx)
	c.rhs.HandleStart(ctx)
}

func (c composed) HandleEnd(ctx Context) {
	c.lhs.HandleEnd(ctx)
	c.rhs.HandleEnd(ctx)
}

func (c composed) HandleDraw(ctx Context) {
	c.lhs.HandleDraw(ctx)
	c.rhs.HandleDraw(ctx)
}

func (c composed) HandleResize(ctx Context, rows, cols int) {
	c.lhs.HandleResize(ctx, rows, cols)
	c.rhs.HandleResize(ctx, rows, cols)
}

func (c composed) HandleChar(ctx Context, ch rune) bool {
	l := c.lhs.HandleChar(ctx, ch)
	r := c.rhs.HandleChar(ctx, ch)
	return l && r
}

func (c composed) HandleEsc(ctx Context, intermediates []byte, final byte) bool {
	l := c.lhs.HandleEsc(ctx, intermediates, final)
	r := c.rhs.HandleEsc(ctx, intermediates, final)
	return l && r
}

func (c composed) HandleCsi(ctx Context, parameters, intermediates []byte, final byte) bool {
	l := c.lhs.HandleCsi(ctx, parameters, intermediates, final)
	r := c.rhs.HandleCsi(ctx, parameters, intermediates, final)
	return l && r
}

func (c composed) HandleSs2(ctx Context, final byte) bool {
	l := c.lhs.HandleSs2(ctx, final)
	r := c.rhs.HandleSs2(ctx, final)
	return l && r
}

func (c composed) HandleSs3(ctx Context, final byte) bool {
	l := c.lhs.HandleSs3(ctx, final)
	r := c.rhs.HandleSs3(ctx, final)
	return l && r
}

func (c composed) HandleControlString(ctx Context, prefix byte, payload []byte) bool {
	l := c.lhs.HandleControlString(ctx, prefix, payload)
	r := c.rhs.HandleControlString(ctx, prefix, payload)
	return l && r
}

func (c composed) HandleInvalid(ctx Context, seq []byte) bool {
	l := c.lhs.HandleInvalid(ctx, seq)
	r := c.rhs.HandleInvalid(ctx, seq)
	return l && r
}

var _ Observer = composed{}
