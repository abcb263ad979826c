package cli

import (
	"context"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/spf13/cobra"
)

func newStoreCmd(root *rootOptions) *cobra.Command {
	var (
		memType    string
		tags       []string
		importance float64
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "store <content>",
		Short: "Store a new memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.StoreRequest{
				ProjectID: root.project,
				Content:   args[0],
				Type:      domain.MemoryType(memType),
				Tags:      tags,
			}
			if cmd.Flags().Changed("importance") {
				req.Importance = &importance
			}
			if cmd.Flags().Changed("confidence") {
				req.Confidence = &confidence
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Store(ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&memType, "type", "t", "", "memory type (fact, event, observation, preference, note, decision)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().Float64Var(&importance, "importance", 0.5, "importance in [0,1]")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "initial confidence in [0,1]")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a memory without recording an access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("id", args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Get(ctx, id)
			})
		},
	}
}

func newRecallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recall <id>",
		Short: "Recall a memory, strengthening it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("id", args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Recall(ctx, id)
			})
		},
	}
}

func newListCmd(root *rootOptions) *cobra.Command {
	var (
		memType           string
		tag               string
		tier              string
		asOf              string
		includeSuperseded bool
		includeDeleted    bool
		minRetention      float64
		limit             int
		offset            int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories with their retention and effective confidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := domain.ListOpts{
				ProjectID:         root.project,
				Tag:               tag,
				IncludeSuperseded: includeSuperseded,
				IncludeDeleted:    includeDeleted,
				Limit:             limit,
				Offset:            offset,
			}
			if memType != "" {
				if !domain.ValidMemoryType(memType) {
					return domain.NewValidationError("type", "unknown memory type")
				}
				mt := domain.MemoryType(memType)
				opts.Type = &mt
			}
			if tier != "" {
				if !domain.ValidTier(tier) {
					return domain.NewValidationError("tier", "must be hot, warm, cold or archive")
				}
				mt := domain.MemoryTier(tier)
				opts.Tier = &mt
			}
			var err error
			if opts.AsOf, err = parseTime("as-of", asOf); err != nil {
				return err
			}
			if cmd.Flags().Changed("min-retention") {
				opts.MinRetention = &minRetention
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.List(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&memType, "type", "t", "", "only this memory type")
	cmd.Flags().StringVar(&tag, "tag", "", "only memories carrying this tag")
	cmd.Flags().StringVar(&tier, "tier", "", "only this confidence tier (hot, warm, cold, archive)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "versions valid at this RFC 3339 instant")
	cmd.Flags().BoolVar(&includeSuperseded, "include-superseded", false, "include superseded versions")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include deleted memories")
	cmd.Flags().Float64Var(&minRetention, "min-retention", 0, "drop memories below this retention (default RETENTION_FLOOR)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		content    string
		memType    string
		tags       []string
		importance float64
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a memory in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("id", args[0])
			if err != nil {
				return err
			}
			var req domain.UpdateRequest
			if cmd.Flags().Changed("content") {
				req.Content = &content
			}
			if cmd.Flags().Changed("type") {
				mt := domain.MemoryType(memType)
				req.Type = &mt
			}
			if cmd.Flags().Changed("tag") {
				req.Tags = &tags
			}
			if cmd.Flags().Changed("importance") {
				req.Importance = &importance
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Update(ctx, id, req)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new content")
	cmd.Flags().StringVarP(&memType, "type", "t", "", "new memory type")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replacement tags (repeatable)")
	cmd.Flags().Float64Var(&importance, "importance", 0, "new importance in [0,1]")
	return cmd
}

func newConfirmCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Record an independent confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("id", args[0])
			if err != nil {
				return err
			}
			sourceID, err := optionalID("source", source)
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Confirm(ctx, id, sourceID)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "memory providing the confirmation")
	return cmd
}

func newContradictCmd() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "contradict <id>",
		Short: "Record a contradiction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("id", args[0])
			if err != nil {
				return err
			}
			byID, err := optionalID("by", by)
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Contradict(ctx, id, byID)
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "memory contradicting this one")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory (tombstone unless --permanent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("id", args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Delete(ctx, id, permanent)
			})
		},
	}
	cmd.Flags().BoolVar(&permanent, "permanent", false, "remove the row and every edge touching it")
	return cmd
}

func newSupersedeCmd() *cobra.Command {
	var validFrom string

	cmd := &cobra.Command{
		Use:   "supersede <old-id> <new-id>",
		Short: "Replace a memory with a newer version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldID, err := parseID("old_id", args[0])
			if err != nil {
				return err
			}
			newID, err := parseID("new_id", args[1])
			if err != nil {
				return err
			}
			at, err := parseTime("valid-from", validFrom)
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) (any, error) {
				return e.svcs.Memories.Supersede(ctx, oldID, newID, at)
			})
		},
	}
	cmd.Flags().StringVar(&validFrom, "valid-from", "", "RFC 3339 instant the new version takes over (default now)")
	return cmd
}
