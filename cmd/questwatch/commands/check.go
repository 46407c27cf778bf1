package commands

import (
	"fmt"
	"io"
	"questwatch/internal/watcher"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Runs a single check and exits, announcing whatever is new.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.watcher.Check(cmd.Context())
		printResult(cmd.OutOrStdout(), result)
		if result.Failed() {
			return fmt.Errorf("check failed during %s: %w", result.FailedStage, result.Err)
		}
		return nil
	},
}

func printResult(out io.Writer, result watcher.Result) {
	t := newTable(out)
	t.SetTitle("cycle %s", result.ID)
	t.AppendHeader(table.Row{"ID", "Title", "Href"})
	for _, r := range result.New {
		t.AppendRow(table.Row{r.ID, r.Title, r.Href})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d found", result.Candidates),
		fmt.Sprintf("%d new, %d notified", len(result.New), result.Notified),
		result.Duration.Round(time.Millisecond).String(),
	})
	t.Render()
}
