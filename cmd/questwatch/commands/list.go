package commands

import (
	"errors"
	"fmt"
	"questwatch/internal/quest"
	"questwatch/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list [id...]",
	Short: "Prints the given quests, or every quest in the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cmd.Context(), cfg.StoreURL)
		if err != nil {
			return err
		}
		defer s.Close()

		var records []quest.Record
		if len(args) == 0 {
			records, err = s.List(cmd.Context())
			if err != nil {
				return err
			}
		}
		for _, id := range args {
			r, err := s.Get(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "quest %q has not been seen\n", id)
				continue
			}
			if err != nil {
				return err
			}
			records = append(records, r)
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "Title", "Link"})
		for _, r := range records {
			t.AppendRow(table.Row{r.ID, r.Title, r.URL(cfg.QuestsOrigin)})
		}
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d quests", len(records))})
		t.Render()
		return nil
	},
}
