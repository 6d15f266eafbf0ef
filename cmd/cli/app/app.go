// Package app holds what every CLI command shares: the logger, the metrics and the case store selected at start-up.
package app

import (
	"context"
	"log/slog"

	"github.com/myrjola/fraudalert/internal/casestore"
	"github.com/myrjola/fraudalert/internal/config"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/metrics"
	"github.com/myrjola/fraudalert/internal/verification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var ErrNoApp = errors.NewSentinel("app not initialised")

type App struct {
	Logger    *slog.Logger
	Config    config.Config
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Selection casestore.Selection
	// Store is the selected store instrumented with Metrics.
	Store casestore.Store
}

// Open selects the case store once for the whole process.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...casestore.Option) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults.
	)
	m := metrics.New(reg)

	sel, err := casestore.Open(ctx, cfg.Store(), logger, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "open case store")
	}
	m.SelectBackend(string(sel.Backend))
	logger.LogAttrs(ctx, slog.LevelDebug, "case store selected",
		slog.String("backend", string(sel.Backend)), slog.String("reason", sel.Reason))

	return &App{
		Logger:    logger,
		Config:    cfg,
		Registry:  reg,
		Metrics:   m,
		Selection: sel,
		Store:     casestore.Instrument(sel.Store, sel.Backend, m),
	}, nil
}

// NewSession starts a verification session against the selected store.
func (a *App) NewSession() *verification.Session {
	return verification.NewSession(a.Store, a.Logger, verification.WithMetrics(a.Metrics))
}

func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		return errors.Wrap(err, "close case store")
	}
	return nil
}

type contextKey struct{}

func WithApp(ctx context.Context, a *App) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the App stored by WithApp.
func FromContext(ctx context.Context) (*App, error) {
	a, ok := ctx.Value(contextKey{}).(*App)
	if !ok || a == nil {
		return nil, ErrNoApp
	}
	return a, nil
}
