package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/fraudalert/internal/casestore"
	"github.com/myrjola/fraudalert/internal/config"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/logging"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/myrjola/fraudalert/internal/verification"
)

var errWrongState = errors.NewSentinel("unexpected session state")

// TestCall verifies John and confirms the purchase, then puts the case back the way it was.
func TestCall(ctx context.Context, store casestore.Store, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	before, err := store.Lookup(ctx, "John")
	if err != nil {
		return errors.Wrap(err, "look up case")
	}
	defer func() {
		if restoreErr := store.Put(context.WithoutCancel(ctx), before); restoreErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "restoring case failed", errors.SlogError(restoreErr))
		}
	}()

	s := verification.NewSession(store, logger)
	steps := []struct {
		name string
		run  func() (verification.Result, error)
		want verification.State
	}{
		{"load case", func() (verification.Result, error) { return s.LoadCase(ctx, "John") }, verification.StateCaseLoaded},
		{"security answer", func() (verification.Result, error) { return s.VerifySecurityAnswer(ctx, "blue") },
			verification.StateSecurityVerified},
		{"card digits", func() (verification.Result, error) { return s.VerifyCardDigits(ctx, "4242") },
			verification.StateCardVerified},
		{"resolve", func() (verification.Result, error) { return s.ResolveSafe(ctx) }, verification.StateResolvedSafe},
	}
	for _, step := range steps {
		r, stepErr := step.run()
		if stepErr != nil {
			return errors.Wrap(stepErr, step.name)
		}
		if r.State != step.want {
			return errors.Wrap(errWrongState, step.name,
				slog.String("state", r.State.String()), slog.String("want", step.want.String()))
		}
	}

	after, err := store.Lookup(ctx, "John")
	if err != nil {
		return errors.Wrap(err, "look up resolved case")
	}
	if after.Status != models.CaseStatusConfirmedSafe {
		return errors.Wrap(errWrongState, "check stored status", slog.String("status", string(after.Status)))
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if err := config.LoadDotEnv(config.DotEnvFiles...); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error loading dotenv", errors.SlogError(err))
		os.Exit(1)
	}
	cfg, err := config.Parse(os.LookupEnv)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error parsing config", errors.SlogError(err))
		os.Exit(1)
	}

	sel, err := casestore.Open(ctx, cfg.Store(), logger, casestore.WithLookupEnv(os.LookupEnv))
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error opening case store", errors.SlogError(err))
		os.Exit(1)
	}
	ctx = logging.WithAttrs(ctx, slog.String("backend", string(sel.Backend)), slog.String("reason", sel.Reason))

	err = TestCall(ctx, sel.Store, logger)
	_ = sel.Store.Close()
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing call", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
}
