package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored progress for every stage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			records, err := a.Tracker().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no progress recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tSTATUS\tDONE\tTOTAL\tUPDATED\tERROR")
			for _, rec := range records {
				errMsg := ""
				if rec.ErrorMessage != nil {
					errMsg = *rec.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					rec.TaskName,
					rec.Status,
					rec.ItemsDone,
					rec.ItemsTotal,
					rec.UpdatedAt.Format(time.RFC3339),
					errMsg,
				)
			}
			return w.Flush()
		},
	}
}
