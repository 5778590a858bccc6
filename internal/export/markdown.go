package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/questchat/internal"
)

// MarkdownExporter renders a session as a readable Markdown document
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	if session == nil {
		return ErrNilSession
	}
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# Session %s\n\n", session.ID)
	header := []struct{ label, value string }{
		{"Guild", session.Target.GuildID},
		{"Quest", session.Target.QuestID},
		{"Linked quest", session.Metadata.LinkedQuestID},
		{"Source", session.Source},
	}
	for _, h := range header {
		if h.value != "" {
			fmt.Fprintf(bw, "**%s:** %s  \n", h.label, h.value)
		}
	}
	fmt.Fprintf(bw, "**Entries:** %d\n\n", len(session.Entries))
	if name := session.Metadata.Name; name != "" {
		fmt.Fprintf(bw, "**Name:** %s\n\n", name)
	}
	bw.WriteString("---\n\n## Transcript\n\n")

	for i, entry := range session.Entries {
		if i > 0 {
			bw.WriteString("---\n\n")
		}
		writeEntry(bw, entry)
	}
	return bw.Flush()
}

func writeEntry(w *bufio.Writer, entry internal.ChatEntry) {
	switch {
	case entry.IsToolUse():
		fmt.Fprintf(w, "**tool:** `%s`", entry.ToolName)
		if entry.AgentID != "" {
			fmt.Fprintf(w, " (agent %s)", entry.AgentID)
		}
		fmt.Fprintf(w, "\n\n```json\n%s\n```\n\n", indentJSON(entry.ToolInput))
	case entry.Role == internal.RoleSystem:
		fmt.Fprintf(w, "**system:**\n\n> %s\n\n", strings.ReplaceAll(entry.Content, "\n", "\n> "))
	default:
		fmt.Fprintf(w, "**%s:**\n\n%s\n\n", entry.Role, escapeMarkdown(entry.Content))
	}
}

// indentJSON pretty-prints tool input; invalid JSON is returned as is
func indentJSON(input string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(input), "", "  "); err != nil {
		return input
	}
	return buf.String()
}

var emphasisEscaper = strings.NewReplacer("**", `\*\*`, "__", `\_\_`)

// escapeMarkdown escapes bold and underline markers outside fenced code
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	fenced := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			fenced = !fenced
			continue
		}
		if !fenced {
			lines[i] = emphasisEscaper.Replace(line)
		}
	}
	return strings.Join(lines, "\n")
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
