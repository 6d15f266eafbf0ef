package casestore

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
)

// Memory keeps cases in process memory. It backs tests and dry runs of the CLI.
type Memory struct {
	mu     sync.RWMutex
	cases  []models.FraudCase
	logger *slog.Logger
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		mu:     sync.RWMutex{},
		cases:  nil,
		logger: logger.With(slog.String("source", "MemoryStore")),
	}
}

// index returns the position of the first case matching key or -1. The caller holds the lock.
func (m *Memory) index(key string) int {
	return slices.IndexFunc(m.cases, func(c models.FraudCase) bool {
		return nameKey(c.CustomerName) == key
	})
}

func (m *Memory) Lookup(ctx context.Context, name string) (models.FraudCase, error) {
	key, err := lookupKey(name)
	if err != nil {
		return models.FraudCase{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.index(key)
	if i < 0 {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "no case found", slog.String("customer", name))
		return models.FraudCase{}, errors.Wrap(ErrNotFound, "lookup case", slog.String("customer", name))
	}
	return clone(m.cases[i]), nil
}

func (m *Memory) UpdateStatus(
	ctx context.Context,
	name string,
	status models.CaseStatus,
	outcome *string,
) (UpdateResult, error) {
	u, err := newStatusUpdate(name, status, outcome)
	if err != nil {
		return UpdateResult{}, err
	}
	m.mu.Lock()
	i := m.index(u.key)
	if i < 0 {
		m.mu.Unlock()
		m.logger.LogAttrs(ctx, slog.LevelWarn, "no case to update", slog.String("customer", u.name))
		return UpdateResult{}, errors.Wrap(ErrNotFound, "update case status", slog.String("customer", u.name))
	}
	before := m.cases[i].Status
	m.cases[i].Status = u.status
	m.cases[i].Outcome = u.outcome
	updatedAt := u.updatedAt
	m.cases[i].UpdatedAt = &updatedAt
	m.mu.Unlock()

	result := UpdateResult{Before: before, After: u.status, Modified: true, UpdatedAt: u.updatedAt}
	logStatusChange(ctx, m.logger, u, result)
	return result, nil
}

func (m *Memory) List(_ context.Context) ([]models.FraudCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cases := make([]models.FraudCase, 0, len(m.cases))
	for _, c := range m.cases {
		cases = append(cases, clone(c))
	}
	slices.SortStableFunc(cases, func(a, b models.FraudCase) int {
		return strings.Compare(nameKey(a.CustomerName), nameKey(b.CustomerName))
	})
	return cases, nil
}

func (m *Memory) Put(_ context.Context, fraudCase models.FraudCase) error {
	key, err := lookupKey(fraudCase.CustomerName)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(key); i >= 0 {
		m.cases[i] = clone(fraudCase)
		return nil
	}
	m.cases = append(m.cases, clone(fraudCase))
	return nil
}

func (m *Memory) Seed(ctx context.Context, cases []models.FraudCase) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cases) > 0 {
		return 0, nil
	}
	for _, c := range cases {
		m.cases = append(m.cases, clone(c))
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "seeded fraud cases", slog.Int("count", len(cases)))
	return len(cases), nil
}

func (m *Memory) Close() error {
	return nil
}

// clone copies the pointer fields so that callers can't mutate stored cases.
func clone(c models.FraudCase) models.FraudCase {
	c.TransactionTime = transactionInstant(c.TransactionTime)
	if c.Outcome != nil {
		outcome := *c.Outcome
		c.Outcome = &outcome
	}
	if c.UpdatedAt != nil {
		updatedAt := *c.UpdatedAt
		c.UpdatedAt = &updatedAt
	}
	return c
}
