// Command tffilter interposes itself between the controlling terminal
// and a child process run under a PTY, tokenizing both directions of
// traffic into terminal control events for any linked-in observer.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/tff-go/tffilter/internal/config"
	"github.com/tff-go/tffilter/internal/observer"
	"github.com/tff-go/tffilter/internal/process"
	"github.com/tff-go/tffilter/internal/ptydevice"
	"github.com/tff-go/tffilter/internal/session"
	"github.com/tff-go/tffilter/internal/telemetry"
)

func main() {
	app := cli.NewApp()
	app.Name = "tffilter"
	app.Usage = "run a command behind a terminal-control-sequence filter"
	app.Version = "0.1.0"
	app.ErrWriter = os.Stderr
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "path to a YAML config file (see internal/config)"},
		cli.StringFlag{Name: "command", Usage: "command for the main child, default $SHELL"},
		cli.StringFlag{Name: "term", Value: "xterm-256color", Usage: "TERM to set for the child"},
		cli.StringFlag{Name: "lang", Usage: "LANG to set for the child, default inherited from environment"},
		cli.StringFlag{Name: "termenc", Value: config.DefaultTermEncoding, Usage: "terminal encoding tag passed to the scanner (bytes are decoded as UTF-8 whatever the tag)"},
		cli.DurationFlag{Name: "esc-timeout", Value: config.DefaultEscTimeout, Usage: "how long to wait for a lone ESC to disambiguate into a sequence"},
		cli.BoolFlag{Name: "buffering", Usage: "coalesce output writes instead of flushing per event"},
		cli.StringFlag{Name: "metrics-addr", Usage: "host:port to serve Prometheus metrics on, disabled if empty"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "tffilter: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	sessionID := uuid.NewString()
	log := telemetry.New(os.Stderr, telemetry.ParseLevel(c.String("log-level")), sessionID)
	met := telemetry.NewMetrics()

	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	if metricsAddr := c.String("metrics-addr"); metricsAddr != "" {
		go serveMetrics(metricsAddr, met, log)
	}

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		log.Warn("stdin is not a terminal; raw-mode keystroke handling will not behave as expected")
	}

	mainPTY, err := ptydevice.Open(stdinFd, cfg.Main.Term, cfg.Main.Lang, cfg.Main.Command)
	if err != nil {
		return fmt.Errorf("opening main pty: %w", err)
	}
	defer mainPTY.Close()

	if err := mainPTY.SetupTerm(); err != nil {
		log.Warn("setupterm failed, continuing without raw mode: %v", err)
	}
	defer mainPTY.RestoreTerm()

	mainProc := process.New(mainPTY, mainPTY, os.Stdout, process.Config{
		Name:           "main",
		InputObserver:  observer.Default{},
		OutputObserver: observer.Default{},
		EscTimeout:     cfg.EscTimeout,
		Buffering:      cfg.Buffering,
		Encoding:       cfg.TermEncoding,
		Logger:         log.With("main"),
		Metrics:        met,
	})

	sess := session.New(stdinFd, mainProc, log, met)

	for _, sub := range cfg.Subordinates {
		subPTY, err := ptydevice.Open(stdinFd, sub.Term, sub.Lang, sub.Command)
		if err != nil {
			log.Error("opening subordinate %q: %v", sub.Name, err)
			continue
		}
		subProc := process.New(subPTY, subPTY, os.Stdout, process.Config{
			Name:           sub.Name,
			InputObserver:  observer.Default{},
			OutputObserver: observer.Default{},
			EscTimeout:     cfg.EscTimeout,
			Buffering:      cfg.Buffering,
			Encoding:       cfg.TermEncoding,
			Logger:         log.With(sub.Name),
			Metrics:        met,
		})
		sess.AddSubordinate(sub.Name, subProc)
	}

	log.Info("starting session %s", sessionID)
	return sess.Drive()
}

// resolveConfig builds a config.Config from --config plus any
// flag overrides, letting explicit flags win over the file the way
// spec.md §4.10 describes ("flags below override it").
func resolveConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{
			TermEncoding: config.DefaultTermEncoding,
			EscTimeout:   config.DefaultEscTimeout,
		}
	}

	if command := c.String("command"); command != "" {
		cfg.Main.Command = strings.Fields(command)
	} else if len(cfg.Main.Command) == 0 {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		cfg.Main.Command = []string{shell}
	}
	if c.IsSet("term") || cfg.Main.Term == "" {
		cfg.Main.Term = c.String("term")
	}
	if c.IsSet("lang") || cfg.Main.Lang == "" {
		cfg.Main.Lang = c.String("lang")
		if cfg.Main.Lang == "" {
			cfg.Main.Lang = os.Getenv("LANG")
		}
	}
	if c.IsSet("termenc") {
		cfg.TermEncoding = c.String("termenc")
	}
	if c.IsSet("esc-timeout") {
		cfg.EscTimeout = c.Duration("esc-timeout")
	}
	if c.IsSet("buffering") {
		cfg.Buffering = c.Bool("buffering")
	}
	return cfg, nil
}

func serveMetrics(addr string, met *telemetry.Metrics, log *telemetry.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server stopped: %v", err)
	}
}
