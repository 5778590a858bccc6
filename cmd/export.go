package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/iksnae/questchat/internal"
	"github.com/iksnae/questchat/internal/export"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export saved transcripts to files",
	Long: `Export saved transcripts to various formats (jsonl, md, yaml, json).

Without a session id every saved transcript is exported, with duplicate
transcripts removed. Use 'questchat history list' to see available session IDs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var sessions []*internal.Session
		if len(args) == 1 {
			session, err := store.LoadSession(args[0])
			if err != nil {
				return fmt.Errorf("%w (use 'questchat history list' to see saved sessions)", err)
			}
			sessions = []*internal.Session{session}
		} else {
			sessions, err = store.LoadAllSessions()
			if err != nil {
				return err
			}
		}

		if len(sessions) == 0 {
			internal.PrintWarning(cmd.ErrOrStderr(), "No saved sessions to export")
			return nil
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return &internal.ExportError{Format: format, Path: outputDir, Err: err}
		}

		var exported int
		err = internal.ShowProgress(cmd.Context(), cmd.ErrOrStderr(),
			fmt.Sprintf("Exporting %d session(s) to %s", len(sessions), outputDir),
			func(ctx context.Context) error {
				for _, session := range sessions {
					if err := ctx.Err(); err != nil {
						return err
					}
					if _, err := export.WriteFile(exporter, session, outputDir); err != nil {
						internal.LogError("%v", err)
						continue
					}
					exported++
				}
				return nil
			})
		if err != nil {
			return err
		}
		if exported == 0 {
			return &internal.ExportError{Format: format, Path: outputDir, Err: fmt.Errorf("no session could be exported")}
		}

		internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Export complete: %d session(s) exported to %s", exported, outputDir))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
}
