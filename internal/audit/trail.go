package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Outcome is the terminal state of a processed query.
type Outcome string

const (
	// OutcomeAccepted means the query passed the gate and an answer was returned.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRejected means the security gate refused the query.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the query passed the gate but a capability failed.
	OutcomeFailed Outcome = "failed"
)

// Record describes the outcome of one processed query. Records are
// immutable once written.
type Record struct {
	// Timestamp is when the query was received.
	Timestamp time.Time `json:"timestamp"`
	// QueryID correlates the record with the client response.
	QueryID string `json:"query_id"`
	// Query is the question text as received.
	Query string `json:"query"`
	// Flagged is true when the gate rejected the query.
	Flagged bool `json:"flagged"`
	// Outcome is the terminal state.
	Outcome Outcome `json:"outcome"`
	// Reason explains a rejection or failure.
	Reason string `json:"reason,omitempty"`
	// Response is the sanitised answer for accepted queries.
	Response string `json:"response,omitempty"`
	// Origin identifies the caller, typically the client address.
	Origin string `json:"ip_address,omitempty"`
}

// Trail persists records. Implementations must be safe for concurrent use
// and must write each record completely or not at all.
type Trail interface {
	// Record appends rec to the trail.
	Record(ctx context.Context, rec Record) error
}

// Multi fans a record out to several trails. Every trail is attempted; the
// returned error joins all failures.
type Multi []Trail

// Record writes rec to every trail.
func (m Multi) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, t := range m {
		if err := t.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogTrail mirrors records to a structured logger: WARN for flagged
// queries, INFO otherwise.
type LogTrail struct {
	log *slog.Logger
}

// NewLogTrail returns a trail writing to log.
func NewLogTrail(log *slog.Logger) *LogTrail {
	return &LogTrail{log: log}
}

// Record logs rec. It never fails.
func (l *LogTrail) Record(ctx context.Context, rec Record) error {
	level := slog.LevelInfo
	if rec.Flagged {
		level = slog.LevelWarn
	}
	l.log.LogAttrs(ctx, level, "audit: query processed",
		slog.String("query_id", rec.QueryID),
		slog.String("outcome", string(rec.Outcome)),
		slog.Bool("flagged", rec.Flagged),
		slog.String("reason", rec.Reason),
		slog.String("origin", rec.Origin),
		slog.Int("query_chars", len([]rune(rec.Query))),
		slog.Int("response_chars", len([]rune(rec.Response))),
	)
	return nil
}
