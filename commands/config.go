package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openlms/crednotify/store"
)

func newConfigCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage the saved notify configuration used by --args-from-database",
	}
	c.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigEnableCmd(true),
		newConfigEnableCmd(false),
	)
	return c
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the saved notify configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st *store.Store) error {
				saved, err := st.CurrentNotifyConfig(ctx)
				if err != nil {
					return err
				}
				if saved.ChangedAt.IsZero() {
					cmd.Println("No notify configuration has been saved.")
					return nil
				}
				state := "disabled"
				if saved.Enabled {
					state = "enabled"
				}
				cmd.Printf("State:     %s\n", state)
				cmd.Printf("Arguments: %s\n", saved.Arguments)
				cmd.Printf("Changed:   %s\n", saved.ChangedAt.Format("2006-01-02 15:04:05 MST"))
				return nil
			})
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "set ARGUMENTS",
		Short: "Save a notify argument string, e.g. 'crednotify config set \"--courses course-v1:edX+DemoX+Demo_Course --dry-run\"'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reject argument strings the notify command could not parse.
			if _, err := parseSavedArguments(args[0]); err != nil {
				return err
			}
			return withStore(func(ctx context.Context, st *store.Store) error {
				saved, err := st.CurrentNotifyConfig(ctx)
				if err != nil {
					return err
				}
				if err := st.SaveNotifyConfig(ctx, saved.Enabled, args[0]); err != nil {
					return err
				}
				cmd.Println("Notify configuration saved.")
				return nil
			})
		},
	}
	return c
}

func newConfigEnableCmd(enable bool) *cobra.Command {
	use, short := "enable", "Enable the saved notify configuration"
	if !enable {
		use, short = "disable", "Disable the saved notify configuration"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st *store.Store) error {
				saved, err := st.CurrentNotifyConfig(ctx)
				if err != nil {
					return err
				}
				if err := st.SaveNotifyConfig(ctx, enable, saved.Arguments); err != nil {
					return err
				}
				cmd.Printf("Notify configuration %sd.\n", use)
				return nil
			})
		},
	}
}

// withStore opens the configured database for the duration of one command.
func withStore(fn func(ctx context.Context, st *store.Store) error) error {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(context.Background(), st)
}
