package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/questchat/internal"
	"github.com/iksnae/questchat/internal/transport"
	"github.com/spf13/cobra"
)

var (
	snoopRaw      bool
	snoopDuration time.Duration
)

var (
	snoopTypeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	snoopDropStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	snoopPathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// snoopCmd represents the snoop command
var snoopCmd = &cobra.Command{
	Use:   "snoop",
	Short: "Print every frame the dashboard WebSocket delivers",
	Long: `Snoop connects to the dashboard WebSocket and prints each inbound frame.

Frames are summarised by envelope type and chat process. Frames the chat
engine would drop are shown with the reason. Use --raw to print the frame
JSON instead. Press Ctrl-C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wsURL, err := cfg.WebSocketURL()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if snoopDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, snoopDuration)
			defer cancel()
		}

		out := cmd.OutOrStdout()
		r := &renderer{out: out, tty: internal.IsTerminal(out)}
		var mu sync.Mutex

		ws := transport.NewWebSocket(transport.Options{
			URL:            wsURL,
			ReconnectDelay: cfg.GetReconnectDelay(),
			Logger:         internal.Logger(),
		})
		ws.OnMessage(func(data []byte) {
			mu.Lock()
			defer mu.Unlock()
			if snoopRaw {
				_, _ = fmt.Fprintln(out, string(data))
				return
			}
			_, _ = fmt.Fprintln(out, describeFrame(r, data, time.Now()))
		})

		dialCtx, cancel := context.WithTimeout(ctx, cfg.GetRequestTimeout())
		defer cancel()
		if err := ws.Connect(dialCtx); err != nil {
			_ = ws.Close()
			return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
		}
		internal.PrintInfo(cmd.ErrOrStderr(), "Listening on "+wsURL)

		<-ctx.Done()
		return ws.Close()
	},
}

// describeFrame renders a one-line summary of an inbound frame
func describeFrame(r *renderer, data []byte, now time.Time) string {
	stamp := r.style(snoopPathStyle, now.Format("15:04:05.000"))

	in, err := internal.ParseEnvelope(data)
	if err != nil {
		return stamp + " " + r.style(snoopDropStyle, "dropped: "+err.Error())
	}

	var detail string
	switch {
	case in.ChatOutput != nil:
		detail = in.ChatOutput.ChatProcessID + " " + describeAgentLine(in.ChatOutput.Line)
	case in.ChatComplete != nil:
		detail = in.ChatComplete.ChatProcessID
		if in.ChatComplete.SessionID != "" {
			detail += " session=" + in.ChatComplete.SessionID
		}
	case in.ChatPatch != nil:
		detail = in.ChatPatch.ToolUseID + " agent=" + in.ChatPatch.AgentID
	case in.ClarificationRequest != nil:
		detail = fmt.Sprintf("%s %d question(s)", in.ClarificationRequest.ChatProcessID, len(in.ClarificationRequest.Questions))
	case in.QuestSessionLinked != nil:
		detail = in.QuestSessionLinked.ChatProcessID + " quest=" + in.QuestSessionLinked.QuestID
	case in.ChatHistoryComplete != nil:
		detail = in.ChatHistoryComplete.ChatProcessID
	}
	return stamp + " " + r.style(snoopTypeStyle, in.Type) + " " + detail
}

func describeAgentLine(line string) string {
	parsed, err := internal.ParseAgentLine(line)
	if err != nil {
		return "(unparsable line)"
	}
	switch parsed.Kind {
	case internal.LineSystemInit:
		return "init session=" + parsed.SessionID
	case internal.LineAssistant:
		kinds := make([]string, 0, len(parsed.Blocks))
		for _, b := range parsed.Blocks {
			kinds = append(kinds, b.Type)
		}
		return "assistant [" + strings.Join(kinds, ",") + "]"
	default:
		return "(ignored line)"
	}
}

func init() {
	rootCmd.AddCommand(snoopCmd)
	snoopCmd.Flags().BoolVar(&snoopRaw, "raw", false, "Print raw frame JSON")
	snoopCmd.Flags().DurationVar(&snoopDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}
