package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Weaken memories idle past IDLE_THRESHOLD_DAYS once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				n, err := e.svcs.Sweep.RunOnce(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]int64{"weakened": n}, nil
			})
		},
	}
}
