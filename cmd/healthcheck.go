package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/questchat/internal"
	"github.com/iksnae/questchat/internal/broker"
	"github.com/iksnae/questchat/internal/transport"
	"github.com/spf13/cobra"
)

var (
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that questchat can reach the dashboard and its history",
	Long: `Check the health of questchat by verifying:
  • Configuration and chat target
  • Local history database access
  • Dashboard HTTP reachability
  • Dashboard WebSocket connection

This command is useful for debugging connection issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealthcheck(cmd.Context(), cmd.OutOrStdout())
	},
}

type healthcheck struct {
	out    io.Writer
	r      *renderer
	failed int
}

func (h *healthcheck) step(n int, title string) {
	_, _ = fmt.Fprintln(h.out, h.r.style(infoStyle, fmt.Sprintf("Step %d: %s...", n, title)))
}

func (h *healthcheck) ok(msg string) {
	_, _ = fmt.Fprintln(h.out, h.r.style(okStyle, "✅ "+msg))
}

func (h *healthcheck) warn(msg string) {
	_, _ = fmt.Fprintln(h.out, h.r.style(warnStyle, "⚠️  "+msg))
}

func (h *healthcheck) fail(msg string, err error) {
	h.failed++
	_, _ = fmt.Fprintln(h.out, h.r.style(failStyle, "❌ "+msg+":"), err)
}

func (h *healthcheck) detail(format string, a ...interface{}) {
	if verbose {
		_, _ = fmt.Fprintf(h.out, "   "+format+"\n", a...)
	}
}

func runHealthcheck(ctx context.Context, out io.Writer) error {
	h := &healthcheck{out: out, r: &renderer{out: out, tty: internal.IsTerminal(out)}}

	_, _ = fmt.Fprintln(out, h.r.style(sectionStyle, "🔍 questchat Health Check"))
	_, _ = fmt.Fprintln(out)

	h.step(1, "Checking configuration")
	h.ok("Configuration loaded")
	h.detail("Server: %s", cfg.Server)
	wsURL, wsErr := cfg.WebSocketURL()
	h.detail("WebSocket: %s", wsURL)
	h.detail("History: %s", cfg.HistoryDB)
	if target := chatTarget(); target.Addressable() {
		h.ok("Chat target: " + target.String())
	} else {
		h.warn("No guild or quest configured; chat needs --guild or --quest")
	}
	_, _ = fmt.Fprintln(out)

	h.step(2, "Opening history database")
	if store, err := openStore(); err != nil {
		h.fail("Failed to open history", err)
	} else {
		index, err := store.ListSessions(0)
		if err != nil {
			h.fail("Failed to read history", err)
		} else {
			h.ok(fmt.Sprintf("History available (%d saved session(s))", len(index)))
		}
		_ = store.Close()
	}
	_, _ = fmt.Fprintln(out)

	reqCtx, cancel := context.WithTimeout(ctx, cfg.GetRequestTimeout())
	defer cancel()

	h.step(3, "Contacting dashboard server")
	if err := broker.NewClient(cfg.Server, cfg.GetRequestTimeout()).Ping(reqCtx); err != nil {
		h.fail("Server unreachable", err)
	} else {
		h.ok("Server reachable at " + cfg.Server)
	}
	_, _ = fmt.Fprintln(out)

	h.step(4, "Opening WebSocket")
	if wsErr != nil {
		h.fail("Invalid WebSocket URL", wsErr)
	} else {
		ws := transport.NewWebSocket(transport.Options{URL: wsURL, Logger: internal.Logger()})
		if err := ws.Connect(reqCtx); err != nil {
			h.fail("WebSocket connection failed", err)
		} else {
			h.ok("WebSocket connected at " + wsURL)
		}
		_ = ws.Close()
	}
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, h.r.style(sectionStyle, "📊 Summary"))
	_, _ = fmt.Fprintln(out)
	if h.failed > 0 {
		_, _ = fmt.Fprintln(out, h.r.style(failStyle, fmt.Sprintf("❌ Health check failed (%d problem(s))", h.failed)))
		return fmt.Errorf("health check failed: %d problem(s)", h.failed)
	}
	_, _ = fmt.Fprintln(out, h.r.style(okStyle, "✅ Health check passed!"))
	return nil
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
