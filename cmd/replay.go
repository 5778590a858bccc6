package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/iksnae/questchat/internal"
	"github.com/spf13/cobra"
)

var (
	replayTimeout time.Duration
	replaySave    bool
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Replay a past guild session from the server",
	Long: `Ask the dashboard to stream a past guild chat session back and print it.

Replay needs a guild (--guild or guild in the config file). With --save the
replayed transcript is written to the local history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		target := chatTarget()
		if target.GuildID == "" {
			return fmt.Errorf("replay needs a guild: set --guild or guild in the config file")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), replayTimeout)
		defer cancel()

		var engine *internal.Engine
		defer func() {
			if engine != nil {
				_ = engine.Close()
			}
		}()

		steps := []internal.ProgressStep{
			{
				Message: "Connecting to dashboard",
				Fn: func(ctx context.Context) error {
					var err error
					engine, err = connectEngine(ctx, target, sessionID)
					return err
				},
			},
			{
				Message: "Replaying session " + sessionID,
				Fn: func(ctx context.Context) error {
					return waitForReplay(ctx, engine)
				},
			},
		}
		if err := internal.ShowProgressWithSteps(ctx, cmd.ErrOrStderr(), steps); err != nil {
			return err
		}

		snap := engine.State()
		if len(snap.Entries) == 0 {
			internal.PrintWarning(cmd.ErrOrStderr(), "The server returned no entries for "+sessionID)
			return nil
		}
		session, err := internal.NewNormalizer().NormalizeSnapshot(snap, target, internal.SourceReplay, time.Now())
		if err != nil {
			return err
		}

		r := newRenderer(cmd.OutOrStdout())
		r.sessionHeader(session)
		for _, e := range session.Entries {
			r.entry(e)
		}

		if replaySave {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			written, err := store.SaveSession(session)
			if err != nil {
				return err
			}
			if written {
				internal.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Saved %s to history", session.ID))
			} else {
				internal.PrintInfo(cmd.ErrOrStderr(), fmt.Sprintf("%s is already up to date in history", session.ID))
			}
		}
		return nil
	},
}

// waitForReplay blocks until engine finishes replaying or ctx is done
func waitForReplay(ctx context.Context, engine *internal.Engine) error {
	done := make(chan struct{})
	unsubscribe := engine.Subscribe(internal.EventReplayComplete, func(internal.Event) {
		select {
		case <-done:
		default:
			close(done)
		}
	})
	defer unsubscribe()

	// the replay may have completed before the subscription
	if !engine.Replaying() {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("no history-complete from the server: %w", ctx.Err())
		}
		return ctx.Err()
	}
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", 30*time.Second, "How long to wait for the replay to finish")
	replayCmd.Flags().BoolVar(&replaySave, "save", false, "Save the replayed transcript to history")
}
