package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/myrjola/fraudalert/internal/sqlite"
	"github.com/myrjola/fraudalert/internal/testhelpers"
)

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd // 5 seconds
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "migration test failed", errors.SlogError(err))
		cancel()
		os.Exit(1)
	}
	cancel()
}

var (
	errNoURL = errors.NewSentinel("FRAUD_SQLITE_URL not set")
	errNoCases = errors.NewSentinel("no fraud cases found, something is likely wrong")
)

// run opens a copy of the production database, which applies the schema migration, and checks the cases survived.
func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	start := time.Now()
	sqliteURL, ok := lookupEnv("FRAUD_SQLITE_URL")
	if !ok {
		return errNoURL
	}

	db, err := sqlite.NewDatabase(ctx, sqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "create database", slog.String("url", sqliteURL))
	}
	defer func() { _ = db.Close() }()

	var count int
	if err = db.ReadOnly.GetContext(ctx, &count, `SELECT COUNT(*) FROM fraud_cases`); err != nil {
		return errors.Wrap(err, "fetch case count")
	}
	if count == 0 {
		return errNoCases
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "case count", slog.Int("count", count))

	var statuses []string
	if err = db.ReadOnly.SelectContext(ctx, &statuses, `SELECT DISTINCT caseStatus FROM fraud_cases`); err != nil {
		return errors.Wrap(err, "fetch case statuses")
	}
	for _, s := range statuses {
		if !models.CaseStatus(s).Known() {
			logger.LogAttrs(ctx, slog.LevelWarn, "case status outside the verification protocol",
				slog.String("status", s))
		}
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	return nil
}
