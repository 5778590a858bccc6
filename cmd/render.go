package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/questchat/internal"
)

var (
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	messageContentStyle = lipgloss.NewStyle().
				PaddingLeft(2)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// renderer writes transcript entries to a terminal or a plain stream
type renderer struct {
	out  io.Writer
	tty  bool
	md   *glamour.TermRenderer
	wrap int
}

func newRenderer(w io.Writer) *renderer {
	r := &renderer{out: w, tty: internal.IsTerminal(w), wrap: 80}
	if r.tty {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.wrap),
		)
		if err != nil {
			internal.LogDebug("markdown renderer unavailable: %v", err)
		} else {
			r.md = md
		}
	}
	return r
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if !r.tty {
		return text
	}
	return s.Render(text)
}

// sessionHeader prints the name and metadata line of a saved session
func (r *renderer) sessionHeader(session *internal.Session) {
	if session == nil {
		return
	}
	name := session.Metadata.Name
	if name == "" {
		name = "Untitled"
	}
	_, _ = fmt.Fprintln(r.out, r.style(sessionHeaderStyle, "💬 "+name))

	metaParts := []string{"Session: " + session.ID, "Target: " + session.Target.String()}
	if session.Metadata.LinkedQuestID != "" {
		metaParts = append(metaParts, "Linked quest: "+session.Metadata.LinkedQuestID)
	}
	if session.Metadata.UpdatedAt != "" {
		metaParts = append(metaParts, "Updated: "+formatWhen(session.Metadata.UpdatedAt, time.Now()))
	}
	metaParts = append(metaParts, fmt.Sprintf("Entries: %d", len(session.Entries)))
	_, _ = fmt.Fprintln(r.out, r.style(sessionMetaStyle, strings.Join(metaParts, " • ")))
	_, _ = fmt.Fprintln(r.out)
}

// entry prints one transcript entry
func (r *renderer) entry(e internal.ChatEntry) {
	switch {
	case e.Role == internal.RoleUser:
		_, _ = fmt.Fprintln(r.out, r.style(userMessageStyle, "👤 You"))
		r.body(e.Content, false)

	case e.IsAssistantText():
		_, _ = fmt.Fprintln(r.out, r.style(assistantMessageStyle, "🤖 Agent"))
		r.body(e.Content, true)

	case e.IsToolUse():
		label := "🔧 " + e.ToolName
		if e.AgentID != "" {
			label += " (agent " + e.AgentID + ")"
		}
		_, _ = fmt.Fprintln(r.out, r.style(toolStyle, label))
		input := e.ToolInput
		if len(input) > 200 {
			input = input[:197] + "..."
		}
		_, _ = fmt.Fprintln(r.out, r.style(dimStyle, "  "+input))
		_, _ = fmt.Fprintln(r.out)

	case e.Role == internal.RoleSystem:
		_, _ = fmt.Fprintln(r.out, r.style(systemStyle, "⚠ "+e.Content))
		_, _ = fmt.Fprintln(r.out)

	default:
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n\n", e.Role, e.Content)
	}
}

func (r *renderer) body(content string, markdown bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		_, _ = fmt.Fprintln(r.out, r.style(dimStyle, "  (empty)"))
		_, _ = fmt.Fprintln(r.out)
		return
	}
	if markdown && r.md != nil {
		if out, err := r.md.Render(content); err == nil {
			_, _ = fmt.Fprint(r.out, out)
			return
		}
	}
	_, _ = fmt.Fprintln(r.out, r.style(messageContentStyle, wrapText(content, r.wrap)))
	_, _ = fmt.Fprintln(r.out)
}

// clarification prints a pending question set with numbered options
func (r *renderer) clarification(p *internal.PendingClarification) {
	if p == nil {
		return
	}
	for _, q := range p.Questions {
		header := "❓ " + q.Question
		if q.Header != "" {
			header = "❓ [" + q.Header + "] " + q.Question
		}
		_, _ = fmt.Fprintln(r.out, r.style(assistantMessageStyle, header))
		for i, opt := range q.Options {
			line := fmt.Sprintf("  %d. %s", i+1, opt.Label)
			if opt.Description != "" {
				line += r.style(dimStyle, " - "+opt.Description)
			}
			_, _ = fmt.Fprintln(r.out, line)
		}
		if q.MultiSelect {
			_, _ = fmt.Fprintln(r.out, r.style(dimStyle, "  (several answers allowed)"))
		}
	}
	_, _ = fmt.Fprintln(r.out, r.style(dimStyle, "Reply with /answer <text>, or /dismiss"))
	_, _ = fmt.Fprintln(r.out)
}

// note prints a dim status line
func (r *renderer) note(msg string) {
	_, _ = fmt.Fprintln(r.out, r.style(dimStyle, msg))
}

// formatWhen renders an RFC3339 timestamp relative to now
func formatWhen(ts string, now time.Time) string {
	t := internal.ParseTimestamp(ts)
	if t.IsZero() {
		return ts
	}
	t = t.Local()
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			if len(currentLine)+len(word)+1 > width {
				if currentLine != "" {
					wrapped = append(wrapped, currentLine)
					currentLine = word
				} else {
					wrapped = append(wrapped, word)
					currentLine = ""
				}
			} else {
				if currentLine == "" {
					currentLine = word
				} else {
					currentLine += " " + word
				}
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}
