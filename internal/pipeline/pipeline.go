// Package pipeline runs a question through the security gate, retrieval,
// generation and answer sanitisation, recording exactly one audit record per
// processed query.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/raggate-go/internal/audit"
	"github.com/54b3r/raggate-go/internal/generator"
	"github.com/54b3r/raggate-go/internal/guard"
	"github.com/54b3r/raggate-go/internal/logging"
)

// ErrInternal is returned for any capability failure. Details are logged and
// audited, never returned to the caller.
var ErrInternal = errors.New("pipeline: internal error")

// RejectedError reports a question the security gate refused.
type RejectedError struct {
	Verdict guard.Verdict
}

// Error returns the client-facing rejection reason.
func (e *RejectedError) Error() string { return e.Verdict.Message }

// Query is one question to answer.
type Query struct {
	// Question is the user's question, already validated by the transport.
	Question string
	// Origin identifies the caller (client IP for HTTP, "cli" for the CLI).
	Origin string
}

// Answer is the result of an accepted query.
type Answer struct {
	QueryID   string    `json:"query_id"`
	Text      string    `json:"answer"`
	Contexts  []string  `json:"contexts"`
	Timestamp time.Time `json:"timestamp"`
	Flagged   bool      `json:"flagged"`
}

// Retriever returns passage texts nearest to question, nearest first.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]string, error)
}

// Config wires a Pipeline's collaborators.
type Config struct {
	Gate      *guard.Gate
	Retriever Retriever
	Generator generator.Generator
	Trail     audit.Trail
	// TopK is the number of passages retrieved per question.
	TopK int
	// Registerer receives the query metrics. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Pipeline answers questions. It is safe for concurrent use.
type Pipeline struct {
	gate      *guard.Gate
	retriever Retriever
	gen       generator.Generator
	trail     audit.Trail
	topK      int
	metrics   *metrics

	now   func() time.Time
	newID func() string
}

// New validates cfg and returns a ready Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Gate == nil || cfg.Retriever == nil || cfg.Generator == nil || cfg.Trail == nil {
		return nil, fmt.Errorf("pipeline: gate, retriever, generator and trail are required")
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("pipeline: top_k must be positive, got %d", cfg.TopK)
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	return &Pipeline{
		gate:      cfg.Gate,
		retriever: cfg.Retriever,
		gen:       cfg.Generator,
		trail:     cfg.Trail,
		topK:      cfg.TopK,
		metrics:   newMetrics(cfg.Registerer),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// Check runs the gate only. It is not a processed query and is not audited.
func (p *Pipeline) Check(text string) guard.Verdict {
	return p.gate.Check(text)
}

// Ask answers q. A rejected question returns *RejectedError; a capability
// failure returns ErrInternal. Every outcome is audited before returning.
func (p *Pipeline) Ask(ctx context.Context, q Query) (*Answer, error) {
	start := time.Now()
	id := p.newID()
	log := logging.FromContext(ctx).With(slog.String("query_id", id))

	rec := audit.Record{
		Timestamp: p.now(),
		QueryID:   id,
		Query:     q.Question,
		Origin:    q.Origin,
	}

	if v := p.gate.Check(q.Question); !v.Safe {
		rec.Flagged = true
		rec.Outcome = audit.OutcomeRejected
		rec.Reason = auditReason(v)
		p.record(ctx, log, rec)
		p.metrics.rejectionsTotal.WithLabelValues(string(v.Reason)).Inc()
		p.observe(rec.Outcome, start)
		log.Warn("pipeline: query rejected", slog.String("reason", string(v.Reason)))
		return nil, &RejectedError{Verdict: v}
	}

	passages, err := p.retriever.Retrieve(ctx, q.Question, p.topK)
	if err != nil {
		return nil, p.fail(ctx, log, rec, start, "retrieval", err)
	}

	raw, err := p.gen.Generate(ctx, q.Question, passages)
	if err != nil {
		return nil, p.fail(ctx, log, rec, start, "generation", err)
	}
	answer := p.gate.Sanitize(raw)

	rec.Outcome = audit.OutcomeAccepted
	rec.Response = answer
	p.record(ctx, log, rec)
	p.observe(rec.Outcome, start)

	log.Info("pipeline: query answered",
		slog.Int("passages", len(passages)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Answer{
		QueryID:   id,
		Text:      answer,
		Contexts:  passages,
		Timestamp: rec.Timestamp,
		Flagged:   false,
	}, nil
}

// fail logs and audits a capability failure and returns ErrInternal.
func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, rec audit.Record, start time.Time, stage string, err error) error {
	log.Error("pipeline: query failed", slog.String("stage", stage), slog.Any("error", err))
	rec.Outcome = audit.OutcomeFailed
	rec.Reason = stage + " failed"
	p.record(ctx, log, rec)
	p.observe(rec.Outcome, start)
	return ErrInternal
}

// record writes rec to the trail. Failures are logged and counted only. The
// write is detached from ctx cancellation so a client disconnect cannot drop
// the record.
func (p *Pipeline) record(ctx context.Context, log *slog.Logger, rec audit.Record) {
	if err := p.trail.Record(context.WithoutCancel(ctx), rec); err != nil {
		p.metrics.auditFailures.Inc()
		log.Error("pipeline: audit record failed", slog.Any("error", err))
	}
}

func (p *Pipeline) observe(outcome audit.Outcome, start time.Time) {
	p.metrics.queryTotal.WithLabelValues(string(outcome)).Inc()
	p.metrics.queryDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
}

// auditReason always names the matched phrase, even when the client message
// hides it.
func auditReason(v guard.Verdict) string {
	if v.Reason == guard.ReasonBlockedPhrase && v.Match != "" {
		return "Blocked pattern detected: " + v.Match
	}
	return v.Message
}
