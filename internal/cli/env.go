package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Voork1144/just-memory/internal/config"
	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/Voork1144/just-memory/internal/embedding"
	"github.com/Voork1144/just-memory/internal/service"
	"github.com/Voork1144/just-memory/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is everything a command needs to reach the services.
type env struct {
	logger  *zap.Logger
	backend *store.Backend
	svcs    *service.Services
}

func serviceConfig() service.Config {
	return service.Config{
		DefaultProject: config.DefaultProject(),
		Decay: service.DecayParams{
			DecayConstant:        config.DecayConstant(),
			RecentAccessBoost:    config.RecentAccessBoost(),
			DecayPerDay:          config.DecayPerDay(),
			ConfirmationBoost:    config.ConfirmationBoost(),
			ContradictionPenalty: config.ContradictionPenalty(),
			HighImportanceBoost:  config.HighImportanceBoost(),
			RetentionFloor:       config.RetentionFloor(),
		},
		Activation: domain.ActivationParams{
			MaxHops:             config.ActivationMaxHops(),
			DecayFactor:         config.ActivationDecay(),
			InhibitionThreshold: config.ActivationInhibition(),
			MinActivation:       config.ActivationMinActivation(),
			MaxNodes:            config.ActivationMaxNodes(),
		},
		Sweep: service.SweepConfig{
			Interval:  config.IdleSweepInterval(),
			IdleAfter: time.Duration(config.IdleThresholdDays()) * 24 * time.Hour,
			Factor:    config.IdleStrengthFactor(),
		},
	}
}

func openEnv(ctx context.Context) (*env, error) {
	logger, err := config.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	backend, err := store.Open(ctx, store.Config{Driver: config.StoreDriver(), DSN: config.StoreDSN()})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}

	ec, err := embedding.NewClient(config.EmbeddingProvider(), config.OpenAIAPIKey(), config.EmbeddingModel(), logger)
	if err != nil {
		logger.Warn("embedding client initialization failed",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
		ec = nil
	}

	return &env{
		logger:  logger,
		backend: backend,
		svcs:    service.New(backend.Memories, backend.Edges, ec, serviceConfig(), logger),
	}, nil
}

func (e *env) Close() {
	e.backend.Close()
	_ = e.logger.Sync()
}

// withEnv opens the backend for the duration of fn.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	out, err := fn(ctx, e)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(field, "must be a UUID")
	}
	return id, nil
}

func optionalID(field, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := parseID(field, s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}
