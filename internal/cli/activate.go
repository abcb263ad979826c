package cli

import (
	"context"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/spf13/cobra"
)

func newActivateCmd() *cobra.Command {
	var (
		maxHops         int
		decay           float64
		inhibition      float64
		minActivation   float64
		maxNodes        int
		asOf            string
		includeMemories bool
	)

	cmd := &cobra.Command{
		Use:   "activate <seed-id>...",
		Short: "Spread activation from seed memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.ActivationRequest{IncludeMemories: includeMemories}
			for _, a := range args {
				id, err := parseID("seed_ids", a)
				if err != nil {
					return err
				}
				req.SeedIDs = append(req.SeedIDs, id)
			}

			flags := cmd.Flags()
			if flags.Changed("max-hops") {
				req.MaxHops = &maxHops
			}
			if flags.Changed("decay") {
				req.DecayFactor = &decay
			}
			if flags.Changed("inhibition") {
				req.InhibitionThreshold = &inhibition
			}
			if flags.Changed("min-activation") {
				req.MinActivation = &minActivation
			}
			if flags.Changed("max-nodes") {
				req.MaxNodes = &maxNodes
			}
			var err error
			if req.AsOf, err = parseTime("as-of", asOf); err != nil {
				return err
			}

			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Activation.Activate(ctx, req)
			})
		},
	}
	cmd.Flags().IntVar(&maxHops, "max-hops", 2, "maximum traversal depth")
	cmd.Flags().Float64Var(&decay, "decay", 0.5, "activation kept per hop")
	cmd.Flags().Float64Var(&inhibition, "inhibition", 1, "activation ceiling (>= 1)")
	cmd.Flags().Float64Var(&minActivation, "min-activation", 0.1, "drop shares below this")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 1000, "maximum nodes expanded")
	cmd.Flags().StringVar(&asOf, "as-of", "", "traverse edges valid at this RFC 3339 instant")
	cmd.Flags().BoolVar(&includeMemories, "include-memories", false, "attach each node's memory")
	return cmd
}
