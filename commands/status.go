package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the notifier worker is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := workerClient.Status(cmd.Context())
			if !status.Running {
				printStatusLine(cmd, color.New(color.FgRed), "The notifier worker is not running")
				return nil
			}
			printStatusLine(cmd, color.New(color.FgGreen),
				"The notifier worker is running (%d queued jobs)", status.Queued)
			return nil
		},
	}
}
