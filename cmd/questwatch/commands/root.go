package commands

import (
	"context"
	"fmt"
	"os"
	"questwatch/internal/config"
	"questwatch/lib/serviceutil"
	"questwatch/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        config.Config
	exporters  telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "questwatch",
	Short: "questwatch announces new quests on the layer3 search page to telegram.",
	Long: `questwatch renders the quest search page every interval, remembers every quest it
has seen and sends a telegram message for each one it has not seen before.

Without a subcommand it runs as a daemon: one check right away, then one per
interval, plus the chat id echo listener and the optional status server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		telemetry.InitSlog(os.Stderr, telemetry.ParseLevel(cfg.LogLevel))

		exporters, err = telemetry.SetupFromEnv(cmd.Context(), "questwatch")
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		exporters.Shutdown(context.Background())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The json5 config file, a missing file is ignored.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		serviceutil.Fatal("questwatch failed", err)
	}
}
