package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/questchat/internal"
	"github.com/spf13/cobra"
)

var historyLimit int

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// historyCmd groups the local transcript history commands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved transcripts",
	Long:  `List, show and remove transcripts saved in the local history database.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved transcripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		index, err := store.ListSessions(historyLimit)
		if err != nil {
			return err
		}
		displayHistory(cmd.OutOrStdout(), index, time.Now())
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a saved transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		session, err := store.LoadSession(args[0])
		if err != nil {
			return fmt.Errorf("%w (use 'questchat history list' to see saved sessions)", err)
		}

		r := newRenderer(cmd.OutOrStdout())
		r.sessionHeader(session)
		for _, e := range session.Entries {
			r.entry(e)
		}
		return nil
	},
}

var historyRmCmd = &cobra.Command{
	Use:     "rm <session-id>...",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove saved transcripts",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, id := range args {
			if err := store.DeleteSession(id); err != nil {
				return err
			}
			internal.PrintSuccess(cmd.OutOrStdout(), "Removed "+id)
		}
		return nil
	},
}

// displayHistory prints the history index as an aligned table
func displayHistory(out io.Writer, index []internal.SessionIndexEntry, now time.Time) {
	r := &renderer{out: out, tty: internal.IsTerminal(out)}
	if len(index) == 0 {
		_, _ = fmt.Fprintln(out, r.style(headerStyle, "📋 No saved sessions"))
		return
	}

	_, _ = fmt.Fprintln(out, r.style(headerStyle, fmt.Sprintf("📋 %d saved session(s)", len(index))))
	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join([]string{
		r.style(titleStyle, "ID"),
		r.style(titleStyle, "Name"),
		r.style(titleStyle, "Target"),
		r.style(titleStyle, "Source"),
		r.style(titleStyle, "Entries"),
		r.style(titleStyle, "Updated"),
	}, "\t")+"\t")

	for _, entry := range index {
		name := entry.Name
		if name == "" {
			name = "Untitled"
		}
		if len(name) > 50 {
			name = name[:47] + "..."
		}

		updated := "-"
		if entry.UpdatedAt != "" {
			updated = formatWhen(entry.UpdatedAt, now)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.style(idStyle, entry.ID),
			name,
			entry.Target.String(),
			entry.Source,
			r.style(countStyle, strconv.Itoa(entry.EntryCount)),
			r.style(dateStyle, updated))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, r.style(idStyle, "💡 Tip: use `questchat history show "+index[0].ID+"` to read a transcript"))
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyRmCmd)
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
}
