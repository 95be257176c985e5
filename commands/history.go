package commands

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/openlms/crednotify/pkg/history"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recently enqueued notify runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := history.New()
			if err != nil {
				return err
			}
			entries := h.Entries()
			if len(entries) == 0 {
				cmd.Println("No notify runs recorded yet.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Time", "Job", "Arguments"})
			for _, e := range entries {
				table.Append([]string{e.Time.Format("2006-01-02 15:04:05"), e.JobID, e.Args})
			}
			table.Render()
			return nil
		},
	}
}
