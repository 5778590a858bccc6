package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 100 * time.Millisecond

// ShowProgress runs fn, animating a spinner with the elapsed time on w.
// On anything but a terminal nothing is drawn and the message is logged.
func ShowProgress(ctx context.Context, w io.Writer, message string, fn func(ctx context.Context) error) error {
	if !IsTerminal(w) {
		LogInfo(message)
		return fn(ctx)
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	tick := time.NewTicker(spinnerInterval)
	defer tick.Stop()
	for frame := 0; ; frame++ {
		select {
		case err := <-done:
			mark := successStyle.Render("✓")
			if err != nil {
				mark = errorStyle.Render("✗")
			}
			// trailing spaces wipe the elapsed counter
			fmt.Fprintf(w, "\r%s %s        \n", mark, message)
			return err
		case <-tick.C:
			elapsed := time.Since(start).Truncate(100 * time.Millisecond)
			fmt.Fprintf(w, "\r%s %s (%s)", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), message, elapsed)
		}
	}
}

// ProgressStep is one named stage of a multi-step operation
type ProgressStep struct {
	Message string
	Fn      func(ctx context.Context) error
}

// ShowProgressWithSteps runs steps in order, numbering them, and stops at
// the first failure. The error is prefixed with the failing step's message.
func ShowProgressWithSteps(ctx context.Context, w io.Writer, steps []ProgressStep) error {
	for i, step := range steps {
		started := time.Now()
		label := fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Message)
		err := ShowProgress(ctx, w, label, step.Fn)
		LogDebug("Step %q finished in %s", step.Message, time.Since(started))
		if err != nil {
			return fmt.Errorf("%s: %w", step.Message, err)
		}
	}
	return nil
}

// IsTerminal reports whether w is a character device
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

type status struct {
	icon  string
	style lipgloss.Style
	plain string // prefix used when w is not a terminal
}

var (
	statusSuccess = status{icon: "✓", style: successStyle}
	statusError   = status{icon: "✗", style: errorStyle}
	statusInfo    = status{icon: "ℹ", style: spinnerStyle}
	statusWarning = status{icon: "⚠", style: warningStyle, plain: "WARNING: "}
)

func (s status) print(w io.Writer, message string) {
	if IsTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", s.style.Render(s.icon), message)
		return
	}
	fmt.Fprintf(w, "%s%s\n", s.plain, message)
}

func PrintSuccess(w io.Writer, message string) { statusSuccess.print(w, message) }
func PrintError(w io.Writer, message string)   { statusError.print(w, message) }
func PrintInfo(w io.Writer, message string)    { statusInfo.print(w, message) }

// PrintWarning prints message flagged as a warning
func PrintWarning(w io.Writer, message string) { statusWarning.print(w, message) }
