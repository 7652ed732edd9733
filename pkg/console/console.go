// Package console is a terminal front end for the vision app.
//
// Enter takes a picture, "f" toggles the flash, "s" prints the screen state
// and "q" quits. State changes pushed through Notify are printed above the
// prompt.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/teslashibe/go-visionapp/pkg/camera"
	"github.com/teslashibe/go-visionapp/pkg/pipeline"
)

// DefaultPrompt is shown while waiting for input.
const DefaultPrompt = "vision> "

// Controller is the part of the pipeline the console drives.
type Controller interface {
	Trigger(ctx context.Context) error
	ToggleFlash(ctx context.Context) (camera.FlashMode, error)
	State() pipeline.UIState
}

// Option configures a Console.
type Option func(*Console)

// WithPrompt overrides DefaultPrompt.
func WithPrompt(p string) Option {
	return func(c *Console) { c.prompt = p }
}

// WithIO sets the input and output streams. Defaults are the process's
// stdin and stdout.
func WithIO(in io.ReadCloser, out io.Writer) Option {
	return func(c *Console) {
		c.in = in
		c.out = out
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) { c.logger = l }
}

// lineReader is the subset of *readline.Instance the loop needs.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// Console reads commands from a terminal.
type Console struct {
	ctrl   Controller
	prompt string
	in     io.ReadCloser
	out    io.Writer
	logger *slog.Logger

	mu   sync.Mutex
	last pipeline.State
}

// New creates a console for ctrl.
func New(ctrl Controller, opts ...Option) *Console {
	c := &Console{
		ctrl:   ctrl,
		prompt: DefaultPrompt,
		logger: slog.Default(),
		last:   pipeline.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "console")
	return c
}

// Run reads commands until "q", EOF, Ctrl-C or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt,
		Stdin:           c.in,
		Stdout:          c.out,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}

	c.mu.Lock()
	if c.out == nil {
		c.out = rl.Stdout()
	}
	c.mu.Unlock()

	c.println("Enter = take picture, f = flash, s = state, q = quit")
	return c.loop(ctx, rl)
}

func (c *Console) loop(ctx context.Context, rl lineReader) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = rl.Close()
		case <-stop:
		}
	}()
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if quit := c.Handle(ctx, line); quit {
			return nil
		}
	}
}

// Handle executes one input line. It reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "t", "take":
		if err := c.ctrl.Trigger(ctx); err != nil {
			c.logger.Debug("trigger rejected", "error", err)
			c.println(describeTriggerError(err))
		}
	case "f", "flash":
		mode, err := c.ctrl.ToggleFlash(ctx)
		if err != nil {
			c.println("flash unavailable: " + err.Error())
			return false
		}
		c.println(pipeline.FlashLabel(mode))
	case "s", "state":
		c.println(FormatState(c.ctrl.State()))
	case "q", "quit", "exit":
		return true
	case "h", "help", "?":
		c.println("Enter = take picture, f = flash, s = state, q = quit")
	default:
		c.println("unknown command " + strings.TrimSpace(line))
	}
	return false
}

// Notify prints st when the screen moves to a new state.
func (c *Console) Notify(st pipeline.UIState) {
	c.mu.Lock()
	changed := st.State != c.last
	c.last = st.State
	c.mu.Unlock()
	if changed {
		c.println(FormatState(st))
	}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out == nil {
		return
	}
	fmt.Fprintln(out, s)
}

func describeTriggerError(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		return "busy, wait for the answer"
	case errors.Is(err, pipeline.ErrNoSession):
		return "camera not ready"
	default:
		return "trigger failed: " + err.Error()
	}
}

// FormatState renders the screen as one line.
func FormatState(st pipeline.UIState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", st.State)
	if st.ItemName != "" {
		fmt.Fprintf(&b, " %s", st.ItemName)
	}
	if st.ConfidenceText != "" {
		fmt.Fprintf(&b, " (%s)", st.ConfidenceText)
	}
	if st.Spoken != "" && st.State == pipeline.StateSpeaking {
		fmt.Fprintf(&b, " %q", st.Spoken)
	}
	fmt.Fprintf(&b, " %s", st.FlashLabel)
	return b.String()
}
