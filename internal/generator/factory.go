package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/54b3r/raggate-go/internal/provider"
)

// BackendEcho selects the offline Echo generator.
const BackendEcho = "echo"

// NewFromEnv builds the Generator selected by MODEL_PROVIDER. "echo" needs no
// model; every other value is resolved by provider.ConfigFromEnv. The
// returned HealthChecker is nil when the backend has no token-free probe.
func NewFromEnv(ctx context.Context, opts Options, log *slog.Logger) (Generator, provider.HealthChecker, error) {
	if strings.EqualFold(os.Getenv("MODEL_PROVIDER"), BackendEcho) {
		log.Info("generator: using offline echo backend")
		return Echo{}, nil, nil
	}

	cfg := provider.ConfigFromEnv()
	m, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("generator: %w", err)
	}
	g, err := NewChatGenerator(m, string(cfg.Backend), opts)
	if err != nil {
		return nil, nil, err
	}
	log.Info("generator: chat model initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return g, provider.HealthCheckFor(cfg), nil
}
