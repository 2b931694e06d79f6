package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/raggate-go/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed QueryTimeout so the timeout answer can still be written.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single POST /api/v1/query (default: 60s).
	QueryTimeout time.Duration
	// MaxQuestionLength is the transport limit on question length in
	// characters (default: 1000). Longer questions get 422.
	MaxQuestionLength int
	// Version is reported by GET /.
	Version string
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /api/v1/query (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on POST /api/v1/query.
	// If empty, authentication is disabled.
	APIKey string
	// MetricsRegistry receives the HTTP metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker answers one question. *pipeline.Pipeline satisfies it; tests inject
// a fake.
type asker interface {
	Ask(ctx context.Context, q pipeline.Query) (*pipeline.Answer, error)
}

// Server is the HTTP front end of the query pipeline.
type Server struct {
	// asker answers POST /api/v1/query.
	asker asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the HTTP request metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/v1/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	Detail string `json:"detail"`
}

// healthResponse is the JSON body of GET /api/v1/health.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// rootResponse is the JSON body of GET /.
type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}
