package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openlms/crednotify/credentials"
	"github.com/openlms/crednotify/store"
	"github.com/openlms/crednotify/worker"
)

func newWorkerCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "worker",
		Short: "Run the notifier worker that executes enqueued notify jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			notifier := credentials.New(
				cfg.Credentials.URL,
				cfg.Credentials.Token,
				cfg.Credentials.Timeout,
				cfg.Credentials.MaxRetries,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return worker.New(cfg, st, notifier).Run(ctx)
		},
	}
	return c
}
