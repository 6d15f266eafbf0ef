// Package cases administers the stored fraud cases.
package cases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/myrjola/fraudalert/cmd/cli/app"
	"github.com/myrjola/fraudalert/internal/casestore"
	"github.com/myrjola/fraudalert/internal/config"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/spf13/cobra"
)

var ErrTargetUnreachable = errors.NewSentinel("migration target unreachable")

var Group = &cobra.Group{
	ID:    "cases",
	Title: "Case administration",
}

var Cmd = &cobra.Command{
	Use:     "cases",
	GroupID: "cases",
	Short:   "Inspect and maintain fraud cases",
}

func init() {
	migrateCmd.Flags().String("to", "", "target store, a SQLite path or dynamodb://<region>/<table>?endpoint=<url>")
	_ = migrateCmd.MarkFlagRequired("to")
	Cmd.AddCommand(listCmd, resetCmd, migrateCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		return List(cmd.Context(), a.Store, cmd.OutOrStdout())
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Put every case back to pending review",
	Long:  `Resets the status, outcome and update time of every case so that the demo calls can be replayed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		return Reset(cmd.Context(), a.Store, cmd.OutOrStdout())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every case to another store",
	Long: `Copies the cases of the selected store to the target, replacing cases with the same customer name.
Use it to move the cases collected in the SQLite fallback to DynamoDB once the primary is back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		to, err := cmd.Flags().GetString("to")
		if err != nil {
			return errors.Wrap(err, "read --to")
		}
		return Migrate(cmd.Context(), a.Store, to, a.Config, a.Logger, cmd.OutOrStdout())
	},
}

// List writes a table of the cases ordered by customer name.
func List(ctx context.Context, store casestore.Store, out io.Writer) error {
	cases, err := store.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list cases")
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0) //nolint:mnd // column padding.
	_, _ = fmt.Fprintln(w, "CUSTOMER\tSTATUS\tAMOUNT\tMERCHANT\tOUTCOME\tUPDATED")
	for _, c := range cases {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.CustomerName, c.Status, c.TransactionAmount.StringFixed(2), c.TransactionMerchant,
			valueOr(c.Outcome, "-"), updatedAt(c))
	}
	if err = w.Flush(); err != nil {
		return errors.Wrap(err, "write case table")
	}
	return nil
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func updatedAt(c models.FraudCase) string {
	if c.UpdatedAt == nil {
		return "-"
	}
	return c.UpdatedAt.UTC().Format(time.RFC3339)
}

// Reset puts every case of store back to pending review.
func Reset(ctx context.Context, store casestore.Store, out io.Writer) error {
	n, err := casestore.Reset(ctx, store)
	if err != nil {
		return errors.Wrap(err, "reset cases")
	}
	_, _ = fmt.Fprintf(out, "Reset %d cases to %s.\n", n, models.CaseStatusPendingReview)
	return nil
}

// Migrate copies every case of src to the store at target.
//
// A target starting with dynamodb:// must be reachable; Migrate never falls back to SQLite for it. Any other target
// is the path of a SQLite database, created if missing. The target isn't seeded.
func Migrate(
	ctx context.Context,
	src casestore.Store,
	target string,
	cfg config.Config,
	logger *slog.Logger,
	out io.Writer,
	opts ...casestore.Option,
) error {
	storeCfg := cfg.Store()
	toPrimary := strings.HasPrefix(strings.ToLower(strings.TrimSpace(target)), "dynamodb://")
	if toPrimary {
		storeCfg.UsePrimary = true
		storeCfg.PrimaryURL = target
		// A failed primary must not leave a database file behind.
		storeCfg.SQLiteURL = ":memory:"
	} else {
		storeCfg.UsePrimary = false
		storeCfg.SQLiteURL = target
	}

	sel, err := casestore.Open(ctx, storeCfg, logger, append(opts, casestore.WithoutSeed())...)
	if err != nil {
		return errors.Wrap(err, "open migration target", slog.String("target", target))
	}
	dst := sel.Store
	defer func() {
		if closeErr := dst.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "closing migration target failed", errors.SlogError(closeErr))
		}
	}()
	if toPrimary && sel.Backend != casestore.BackendPrimary {
		return errors.Wrap(ErrTargetUnreachable, "open migration target",
			slog.String("target", target), slog.String("reason", sel.Reason))
	}

	n, err := casestore.Copy(ctx, src, dst)
	if err != nil {
		return errors.Wrap(err, "copy cases", slog.String("target", target))
	}
	_, _ = fmt.Fprintf(out, "Copied %d cases to %s.\n", n, target)
	return nil
}
