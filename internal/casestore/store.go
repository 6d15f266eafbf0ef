// Package casestore persists fraud cases behind one of two interchangeable backends.
//
// The primary backend is a DynamoDB table, the fallback an embedded SQLite database. [Open] picks one of them once
// per process and every caller talks to the [Store] interface afterwards.
package casestore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
)

var (
	// ErrInvalidInput is returned for blank names or statuses and for outcomes that are present but blank.
	ErrInvalidInput = errors.NewSentinel("invalid input")
	// ErrNotFound is returned when no case matches the customer name.
	ErrNotFound = errors.NewSentinel("case not found")
	// ErrUnavailable is returned when the backend fails or doesn't answer within the operation timeout.
	ErrUnavailable = errors.NewSentinel("case store unavailable")
)

// DefaultOperationTimeout bounds every backend call.
const DefaultOperationTimeout = 5 * time.Second

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

// Store looks up and updates fraud cases.
//
// Implementations are safe for concurrent use by multiple verification sessions.
type Store interface {
	// Lookup returns the first case whose customer name matches name case-insensitively.
	Lookup(ctx context.Context, name string) (models.FraudCase, error)
	// UpdateStatus sets the status, outcome and update time of the case matching name.
	//
	// A nil outcome clears the stored outcome. A non-nil blank outcome is rejected with ErrInvalidInput.
	UpdateStatus(ctx context.Context, name string, status models.CaseStatus, outcome *string) (UpdateResult, error)
	// List returns every case ordered by customer name.
	List(ctx context.Context) ([]models.FraudCase, error)
	// Put inserts the case or replaces the case with the same customer name, keeping every field as given.
	Put(ctx context.Context, fraudCase models.FraudCase) error
	// Seed inserts cases if the store holds no cases yet and reports how many were inserted.
	Seed(ctx context.Context, cases []models.FraudCase) (int, error)
	// Close releases the backend resources. It's safe to call more than once.
	Close() error
}

// UpdateResult describes a status mutation for auditing.
type UpdateResult struct {
	Before    models.CaseStatus
	After     models.CaseStatus
	Modified  bool
	UpdatedAt time.Time
}

// statusUpdate is a validated and normalized UpdateStatus request.
type statusUpdate struct {
	name      string
	key       string
	status    models.CaseStatus
	outcome   *string
	updatedAt time.Time
}

func newStatusUpdate(name string, status models.CaseStatus, outcome *string) (statusUpdate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return statusUpdate{}, errors.Wrap(ErrInvalidInput, "blank customer name")
	}
	status = models.CaseStatus(strings.TrimSpace(string(status)))
	if status == "" {
		return statusUpdate{}, errors.Wrap(ErrInvalidInput, "blank status", slog.String("customer", name))
	}
	if outcome != nil {
		trimmed := strings.TrimSpace(*outcome)
		if trimmed == "" {
			return statusUpdate{}, errors.Wrap(ErrInvalidInput, "blank outcome must be passed as absent",
				slog.String("customer", name))
		}
		outcome = &trimmed
	}
	return statusUpdate{
		name:      name,
		key:       nameKey(name),
		status:    status,
		outcome:   outcome,
		updatedAt: time.Now().UTC(),
	}, nil
}

// lookupKey validates a lookup name and returns its case-insensitive key.
func lookupKey(name string) (string, error) {
	key := nameKey(name)
	if key == "" {
		return "", errors.Wrap(ErrInvalidInput, "blank customer name")
	}
	return key, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// logStatusChange writes the audit record of a status mutation.
func logStatusChange(ctx context.Context, logger *slog.Logger, u statusUpdate, result UpdateResult) {
	if !u.status.Known() {
		logger.LogAttrs(ctx, slog.LevelWarn, "unusual case status, proceeding anyway",
			slog.String("status", string(u.status)))
	}
	outcome := slog.String("outcome", "")
	if u.outcome != nil {
		outcome = slog.String("outcome", *u.outcome)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "case status updated",
		slog.String("customer", u.name),
		slog.String("before", string(result.Before)),
		slog.String("after", string(result.After)),
		outcome,
		slog.Time("updated_at", result.UpdatedAt),
	)
}

// withTimeout bounds a single backend call.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// unavailable marks a backend failure so that callers can tell it apart from a missing case.
func unavailable(err error, msg string, attrs ...slog.Attr) error {
	return errors.Wrap(errors.Join(ErrUnavailable, err), msg, attrs...)
}
