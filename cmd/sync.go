package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the background schedule sync for all registered users",
		Long: `Starts one refresh loop per registered user. Each loop fetches the
remote schedule, merges it with the user's custom events and rewrites
the calendar files, then waits the user's configured interval. Failures
are logged and retried on the next cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if once {
				return a.engine.RefreshAll(ctx)
			}
			return a.engine.Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run one refresh cycle for every user and exit")
	return cmd
}
