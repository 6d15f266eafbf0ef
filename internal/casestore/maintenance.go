package casestore

import (
	"context"
	"log/slog"

	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
)

// Reset puts every case back to pending_review and clears its outcome so that demo calls can be replayed.
//
// The update time is cleared as well, leaving the cases as they were after seeding.
func Reset(ctx context.Context, store Store) (int, error) {
	cases, err := store.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list cases")
	}
	for _, c := range cases {
		c.Status = models.CaseStatusPendingReview
		c.Outcome = nil
		c.UpdatedAt = nil
		if err = store.Put(ctx, c); err != nil {
			return 0, errors.Wrap(err, "reset case", slog.String("customer", c.CustomerName))
		}
	}
	return len(cases), nil
}

// Copy writes every case of src to dst unchanged, replacing cases with the same customer name.
func Copy(ctx context.Context, src, dst Store) (int, error) {
	cases, err := src.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list source cases")
	}
	for _, c := range cases {
		if err = dst.Put(ctx, c); err != nil {
			return 0, errors.Wrap(err, "copy case", slog.String("customer", c.CustomerName))
		}
	}
	return len(cases), nil
}
