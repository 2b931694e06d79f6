package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggate-go/internal/bootstrap"
	"github.com/54b3r/raggate-go/internal/logging"
	"github.com/54b3r/raggate-go/internal/server"
	"github.com/54b3r/raggate-go/internal/tracing"
	"github.com/54b3r/raggate-go/internal/version"
)

// NewServeCmd constructs the `raggate serve` command, which builds the
// service graph and then starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the raggate HTTP API",
		Long: `Start the raggate HTTP API.

Startup embeds the document corpus (or loads a matching index snapshot),
opens the audit trail and connects the chat model before the listener
opens. Any failure aborts startup.

Routes:
  POST /api/v1/query   {"question": "..."}
  GET  /api/v1/health  liveness
  GET  /api/ready      dependency readiness
  GET  /metrics        Prometheus metrics

Examples:
  raggate serve
  raggate serve --port 9090
  MODEL_PROVIDER=openai RAGGATE_INDEX_BACKEND=vptree raggate serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			flush := tracing.Enable(log)
			defer flush()

			svc, err := bootstrap.Once(ctx, bootstrap.Options{Log: log})()
			if err != nil {
				return fmt.Errorf("serve: startup failed: %w", err)
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Warn("serve: close failed", slog.Any("error", err))
				}
			}()

			set := svc.Settings
			if cmd.Flags().Changed("host") {
				set.Host = host
			}
			if cmd.Flags().Changed("port") {
				set.Port = port
			}

			if set.WatchDocuments {
				go func() {
					if err := svc.Watch(ctx); err != nil {
						log.Error("serve: document watcher stopped", slog.Any("error", err))
					}
				}()
			}

			srv, err := server.New(svc.Pipeline, &server.Config{
				Host:              set.Host,
				Port:              set.Port,
				QueryTimeout:      set.QueryTimeout,
				MaxQuestionLength: set.MaxQuestionLength,
				Version:           version.Version,
				Logger:            log,
				Pingers:           buildPingers(svc),
				RateLimit:         set.RateLimitRPS,
				RateBurst:         set.RateLimitBurst,
				APIKey:            set.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides RAGGATE_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides RAGGATE_PORT)")

	return cmd
}

// buildPingers lists the readiness probes for the dependencies svc uses.
func buildPingers(svc *bootstrap.Services) []server.Pinger {
	pingers := []server.Pinger{server.NewEmbedderPinger(svc.Embedder, svc.Embedder.Name())}
	if svc.Qdrant != nil {
		pingers = append(pingers, svc.Qdrant)
	}
	if svc.AuditDB != nil {
		pingers = append(pingers, svc.AuditDB)
	}
	if svc.LLMHealth != nil {
		pingers = append(pingers, server.NewLLMPinger(svc.LLMHealth, "llm"))
	}
	return pingers
}
