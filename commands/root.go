// Package commands implements the crednotify command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/openlms/crednotify/client"
	"github.com/openlms/crednotify/config"
)

var (
	cfg          *config.Configuration
	workerClient *client.Client
)

func NewRootCmd() *cobra.Command {
	var configPath string

	c := &cobra.Command{
		Use:   "crednotify",
		Short: "Re-run the handlers that push certificate and grade data to the credentials service",
		Long: "crednotify re-triggers the notification handlers of the credentials subsystem.\n" +
			"Certificate and grade changes normally reach the credentials service as they\n" +
			"happen; after a bug or while bootstrapping a feature, 'crednotify notify'\n" +
			"replays them for a chosen set of courses, dates, or users.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			workerClient = client.New(cfg.Worker.URL)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().StringVar(&configPath, "config", "", "Path to a crednotify configuration file")

	c.AddCommand(
		newNotifyCmd(),
		newWorkerCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newHistoryCmd(),
	)
	return c
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func handleClientError(err error, message string) error {
	if errors.Is(err, client.ErrServiceUnavailable) || errors.Is(err, client.ErrNotFound) {
		return err
	}
	return errors.Wrap(err, message)
}

func handleNotRunningError(err error) error {
	if errors.Is(err, client.ErrServiceUnavailable) {
		return fmt.Errorf(
			"the notifier worker is not running.\n\nStart it with 'crednotify worker'",
		)
	}
	return err
}

// printStatusLine writes a colored status line when stdout is a terminal and
// a plain one otherwise.
func printStatusLine(cmd *cobra.Command, c *color.Color, format string, args ...any) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		c.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
		return
	}
	cmd.Printf(format+"\n", args...)
}
