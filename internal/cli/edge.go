package cli

import (
	"context"
	"encoding/json"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/spf13/cobra"
)

func newLinkCmd(root *rootOptions) *cobra.Command {
	var (
		confidence float64
		metadata   string
		validFrom  string
		validTo    string
	)

	cmd := &cobra.Command{
		Use:   "link <from-id> <relation> <to-id>",
		Short: "Create a typed edge between two memories",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseID("from_id", args[0])
			if err != nil {
				return err
			}
			to, err := parseID("to_id", args[2])
			if err != nil {
				return err
			}
			req := domain.EdgeRequest{
				ProjectID:    root.project,
				FromID:       from,
				ToID:         to,
				RelationType: args[1],
			}
			if cmd.Flags().Changed("confidence") {
				req.Confidence = &confidence
			}
			if metadata != "" {
				if err := json.Unmarshal([]byte(metadata), &req.Metadata); err != nil {
					return domain.NewValidationError("metadata", "must be a JSON object")
				}
			}
			if req.ValidFrom, err = parseTime("valid-from", validFrom); err != nil {
				return err
			}
			if req.ValidTo, err = parseTime("valid-to", validTo); err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Edges.Create(ctx, req)
			})
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "edge confidence in [0,1]")
	cmd.Flags().StringVar(&metadata, "metadata", "", "JSON object attached to the edge")
	cmd.Flags().StringVar(&validFrom, "valid-from", "", "RFC 3339 start of validity (default now)")
	cmd.Flags().StringVar(&validTo, "valid-to", "", "RFC 3339 end of validity (default open)")
	return cmd
}

func newEdgesCmd() *cobra.Command {
	var (
		direction      string
		relation       string
		asOf           string
		includeExpired bool
	)

	cmd := &cobra.Command{
		Use:   "edges <memory-id>",
		Short: "List edges touching a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("memory_id", args[0])
			if err != nil {
				return err
			}
			q := domain.EdgeQuery{
				MemoryID:       id,
				Direction:      domain.Direction(direction),
				RelationType:   relation,
				IncludeExpired: includeExpired,
			}
			if q.AsOf, err = parseTime("as-of", asOf); err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Edges.Query(ctx, q)
			})
		},
	}
	cmd.Flags().StringVar(&direction, "direction", string(domain.DirectionBoth), "outgoing, incoming or both")
	cmd.Flags().StringVar(&relation, "relation", "", "only this relation type")
	cmd.Flags().StringVar(&asOf, "as-of", "", "edges valid at this RFC 3339 instant")
	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "include invalidated edges")
	return cmd
}

func newInvalidateCmd() *cobra.Command {
	var validTo string

	cmd := &cobra.Command{
		Use:   "invalidate <edge-id>",
		Short: "Close an edge's validity interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("edge_id", args[0])
			if err != nil {
				return err
			}
			at, err := parseTime("valid-to", validTo)
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Edges.Invalidate(ctx, id, at)
			})
		},
	}
	cmd.Flags().StringVar(&validTo, "valid-to", "", "RFC 3339 end of validity (default now)")
	return cmd
}
