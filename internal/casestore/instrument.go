package casestore

import (
	"context"
	"time"

	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/metrics"
	"github.com/myrjola/fraudalert/internal/models"
)

type instrumented struct {
	next    Store
	backend string
	metrics *metrics.Metrics
}

// Instrument records the duration and result of every call to store under the backend label.
func Instrument(store Store, backend Backend, m *metrics.Metrics) Store {
	return &instrumented{next: store, backend: string(backend), metrics: m}
}

func (s *instrumented) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveStore(s.backend, operation, resultOf(err), start)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrInvalidInput):
		return metrics.ResultInvalid
	default:
		return metrics.ResultUnavailable
	}
}

func (s *instrumented) Lookup(ctx context.Context, name string) (models.FraudCase, error) {
	start := time.Now()
	fraudCase, err := s.next.Lookup(ctx, name)
	s.observe("lookup", start, err)
	return fraudCase, err //nolint:wrapcheck // decorator.
}

func (s *instrumented) UpdateStatus(
	ctx context.Context,
	name string,
	status models.CaseStatus,
	outcome *string,
) (UpdateResult, error) {
	start := time.Now()
	result, err := s.next.UpdateStatus(ctx, name, status, outcome)
	s.observe("update_status", start, err)
	return result, err //nolint:wrapcheck // decorator.
}

func (s *instrumented) List(ctx context.Context) ([]models.FraudCase, error) {
	start := time.Now()
	cases, err := s.next.List(ctx)
	s.observe("list", start, err)
	return cases, err //nolint:wrapcheck // decorator.
}

func (s *instrumented) Put(ctx context.Context, fraudCase models.FraudCase) error {
	start := time.Now()
	err := s.next.Put(ctx, fraudCase)
	s.observe("put", start, err)
	return err //nolint:wrapcheck // decorator.
}

func (s *instrumented) Seed(ctx context.Context, cases []models.FraudCase) (int, error) {
	start := time.Now()
	n, err := s.next.Seed(ctx, cases)
	s.observe("seed", start, err)
	return n, err //nolint:wrapcheck // decorator.
}

func (s *instrumented) Close() error {
	return s.next.Close() //nolint:wrapcheck // decorator.
}
