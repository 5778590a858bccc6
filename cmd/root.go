package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/questchat/internal"
	"github.com/iksnae/questchat/internal/config"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	serverURL  string
	guildID    string
	questID    string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"

	// cfg is loaded once per invocation by the root PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "questchat",
	Short: "Chat with guild and quest agents from the terminal",
	Long: `A CLI client for the dungeon dashboard's agent chat.

questchat sends messages to a guild or quest chat, streams the agent's
reply over the dashboard WebSocket and keeps a local history of finished
transcripts.

Features:
  • Interactive chat with live streaming output
  • Replay of past sessions from the server
  • Clarification questions answered inline
  • Local transcript history (SQLite)
  • Export in multiple formats (JSONL, Markdown, YAML, JSON)

Quick Start:
  questchat chat --guild <guild-id>         # Start chatting with a guild
  questchat replay <session-id> --save      # Replay and save a past session
  questchat history list                    # List saved transcripts
  questchat export <session-id> --format md # Export as Markdown`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		internal.SetLogLevel(internal.ParseLogLevel(cfg.LogLevel))
		if verbose {
			internal.SetVerbose(true)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.SyncLogger()
	},
}

// applyFlagOverrides copies explicitly set flags over file and env values
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		c.Server = serverURL
	}
	if flags.Changed("guild") {
		c.Guild = guildID
	}
	if flags.Changed("quest") {
		c.Quest = questID
	}
}

// chatTarget returns the configured guild/quest addressing
func chatTarget() internal.Target {
	if cfg == nil {
		return internal.Target{}
	}
	return internal.Target{GuildID: cfg.Guild, QuestID: cfg.Quest}
}

// openStore opens the configured history database
func openStore() (*internal.Store, error) {
	store, err := internal.OpenStore(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.questchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Dashboard server URL")
	rootCmd.PersistentFlags().StringVar(&guildID, "guild", "", "Guild to chat with")
	rootCmd.PersistentFlags().StringVar(&questID, "quest", "", "Quest to chat with")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
