// Package process binds one PTY device to an input parser/context
// pair (bytes from the controlling terminal toward the child) and an
// output pair (bytes from the child back toward the controlling
// terminal), and owns the ESC-disambiguation timer between them.
//
// Grounded on tff/tff.py's Terminal (start/on_write/on_read/end) and
// Session.process_input's threading.Timer-guarded ESC flush, which
// spec.md §5 calls out by name as the reference design this module
// keeps.
package process

import (
	"sync"
	"time"

	"github.com/tff-go/tffilter/internal/dispatch"
	"github.com/tff-go/tffilter/internal/observer"
	"github.com/tff-go/tffilter/internal/parser"
	"github.com/tff-go/tffilter/internal/ptydevice"
	"github.com/tff-go/tffilter/internal/scanner"
	"github.com/tff-go/tffilter/internal/telemetry"
)

// DefaultEscTimeout is the reference implementation's ESC disambiguation
// window (tff/tff.py's module-level _ESC_TIMEOUT).
const DefaultEscTimeout = 500 * time.Millisecond

// Process couples a PTY to a pair of (parser, context) pipelines: one
// consuming bytes typed at the controlling terminal and forwarding
// them to the child (input), one consuming bytes the child writes and
// forwarding them to the controlling terminal (output).
type Process struct {
	pty *ptydevice.PTY
	log *telemetry.Logger
	met *telemetry.Metrics

	name string // used as the metrics "stream" label

	inputCtx    *dispatch.ParseContext
	inputParser *parser.Parser
	inputObs    observer.Observer

	outputCtx    *dispatch.ParseContext
	outputParser *parser.Parser
	outputObs    observer.Observer

	escTimeout time.Duration
	mu         sync.Mutex
	escTimer   *time.Timer
}

// Config bundles the inputs New needs beyond the PTY and name, kept
// as a struct since most fields have sensible zero-value behavior
// (nil observers fall back to observer.Default{}).
type Config struct {
	Name           string // metrics/log "stream" label, e.g. "main" or a subordinate name
	InputObserver  observer.Observer
	OutputObserver observer.Observer
	EscTimeout     time.Duration
	Buffering      bool   // coalesce output writes instead of flushing per event
	Encoding       string // scanner encoding tag, defaults to "UTF-8"
	Logger         *telemetry.Logger
	Metrics        *telemetry.Metrics
}

// New binds pty to a fresh input/output pipeline pair. inputSink
// receives bytes dispatched from the input side (normally the PTY
// itself, so unconsumed keystrokes reach the child); outputSink
// receives bytes dispatched from the output side (normally the real
// controlling terminal's stdout).
func New(pty *ptydevice.PTY, inputSink, outputSink dispatch.Sink, cfg Config) *Process {
	if cfg.InputObserver == nil {
		cfg.InputObserver = observer.Default{}
	}
	if cfg.OutputObserver == nil {
		cfg.OutputObserver = observer.Default{}
	}
	if cfg.EscTimeout <= 0 {
		cfg.EscTimeout = DefaultEscTimeout
	}

	inputCtx := dispatch.NewWithEncoding(inputSink, scanner.New(), cfg.InputObserver, false, cfg.Encoding)
	outputCtx := dispatch.NewWithEncoding(outputSink, scanner.New(), cfg.OutputObserver, cfg.Buffering, cfg.Encoding)
	inputCtx.SetRecorder(cfg.Metrics)
	outputCtx.SetRecorder(cfg.Metrics)

	return &Process{
		pty:          pty,
		log:          cfg.Logger,
		met:          cfg.Metrics,
		name:         cfg.Name,
		inputCtx:     inputCtx,
		inputParser:  parser.New(inputCtx),
		inputObs:     cfg.InputObserver,
		outputCtx:    outputCtx,
		outputParser: parser.New(outputCtx),
		outputObs:    cfg.OutputObserver,
		escTimeout:   cfg.EscTimeout,
	}
}

// PTY returns the bound device, for use in a session's select set.
func (p *Process) PTY() *ptydevice.PTY { return p.pty }

// Start fires HandleStart on both observers and an initial draw pass,
// mirroring Session.process_start.
func (p *Process) Start() {
	p.inputObs.HandleStart(p.inputCtx)
	p.outputObs.HandleStart(p.outputCtx)
	p.draw()
}

// End fires HandleEnd on both observers, mirroring
// Session.process_end / Terminal.end. It does not close the PTY —
// the caller (session) owns that lifecycle decision.
func (p *Process) End() {
	p.cancelEscTimer()
	p.inputObs.HandleEnd(p.inputCtx)
	p.outputObs.HandleEnd(p.outputCtx)
}

func (p *Process) draw() {
	p.inputObs.HandleDraw(p.outputCtx)
	p.outputObs.HandleDraw(p.outputCtx)
	p.outputCtx.Flush()
}

// ProcessInput consumes bytes read from the controlling terminal (or
// relayed from a focused subordinate's stdin), cancelling any pending
// ESC timer and re-arming one if the byte stream left the parser
// mid-escape-sequence, per tff/tff.py's process_input.
func (p *Process) ProcessInput(data []byte) {
	start := time.Now()
	defer func() { p.met.ObserveParseLatency(time.Since(start).Seconds()) }()

	p.met.AddBytes(p.name, "in", len(data))
	p.cancelEscTimer()

	p.inputParser.Parse(data)

	if !p.inputParser.StateIsEsc() {
		p.draw()
		return
	}

	p.mu.Lock()
	p.escTimer = time.AfterFunc(p.escTimeout, p.dispatchEscTimeout)
	p.mu.Unlock()
}

func (p *Process) dispatchEscTimeout() {
	p.mu.Lock()
	p.escTimer = nil
	p.mu.Unlock()

	p.met.IncEscTimeout()
	if p.log != nil {
		p.log.Debug("esc timer fired for %q, flushing partial sequence", p.name)
	}

	p.inputParser.Flush()
	p.draw()
}

func (p *Process) cancelEscTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.escTimer != nil {
		p.escTimer.Stop()
		p.escTimer = nil
	}
}

// ProcessOutput consumes bytes read from the PTY and forwards the
// parsed events to the controlling terminal, mirroring
// Session.process_output.
func (p *Process) ProcessOutput(data []byte) {
	start := time.Now()
	defer func() { p.met.ObserveParseLatency(time.Since(start).Seconds()) }()

	p.met.AddBytes(p.name, "out", len(data))
	p.outputParser.Parse(data)
	p.draw()
}

// ProcessResize notifies both observers of a window-size change.
func (p *Process) ProcessResize(rows, cols int) {
	p.inputObs.HandleResize(p.inputCtx, rows, cols)
	p.outputObs.HandleResize(p.outputCtx, rows, cols)
}

// Drain resets the input parser, discarding its pending buffer after
// flushing any partial escape sequence as an Invalid event (or a bare
// ESC char, from the Esc state), per spec.md §4.6. Session calls this
// on the process losing input focus before reassigning it (§4.7), so
// a partial sequence typed right before a focus switch is reported
// rather than silently dropped.
func (p *Process) Drain() {
	p.cancelEscTimer()
	p.inputParser.Flush()
	p.draw()
}
