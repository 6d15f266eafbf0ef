package casestore

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/myrjola/fraudalert/internal/sqlite"
)

// SQLiteStore is the embedded fallback backend. It's always available.
type SQLiteStore struct {
	db      *sqlite.Database
	timeout time.Duration
	logger  *slog.Logger
}

// NewSQLiteStore stores cases in the fraud_cases table of db. The store takes ownership of db and closes it in Close.
func NewSQLiteStore(db *sqlite.Database, timeout time.Duration, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:      db,
		timeout: timeout,
		logger:  logger.With(slog.String("source", "SQLiteStore")),
	}
}

// caseRow maps a fraud_cases row. Column names are the persisted field names.
type caseRow struct {
	ID                  int64          `db:"id"`
	UserName            string         `db:"userName"`
	// NameKey is the lookup key of userName. SQLite's LOWER folds ASCII only, so it's computed in Go.
	NameKey             string         `db:"nameKey"`
	SecurityIdentifier  string         `db:"securityIdentifier"`
	CardEnding          string         `db:"cardEnding"`
	CaseStatus          string         `db:"caseStatus"`
	TransactionName     string         `db:"transactionName"`
	TransactionAmount   string         `db:"transactionAmount"`
	TransactionTime     string         `db:"transactionTime"`
	TransactionCategory string         `db:"transactionCategory"`
	TransactionSource   string         `db:"transactionSource"`
	SecurityQuestion    string         `db:"securityQuestion"`
	SecurityAnswer      string         `db:"securityAnswer"`
	Outcome             sql.NullString `db:"outcome"`
	UpdatedAt           sql.NullString `db:"updatedAt"`
}

const selectCases = `SELECT id, userName, nameKey, securityIdentifier, cardEnding, caseStatus,
       transactionName, transactionAmount, transactionTime, transactionCategory, transactionSource, securityQuestion,
       securityAnswer, outcome, updatedAt
FROM fraud_cases`

const insertCase = `INSERT INTO fraud_cases (userName, nameKey, securityIdentifier, cardEnding, caseStatus,
                         transactionName, transactionAmount, transactionTime, transactionCategory,
                         transactionSource, securityQuestion, securityAnswer, outcome, updatedAt)
VALUES (:userName, :nameKey, :securityIdentifier, :cardEnding, :caseStatus, :transactionName, :transactionAmount,
        :transactionTime, :transactionCategory, :transactionSource, :securityQuestion, :securityAnswer, :outcome,
        :updatedAt)`

func toRow(c models.FraudCase) caseRow {
	row := caseRow{
		ID:                  0,
		UserName:            c.CustomerName,
		NameKey:             nameKey(c.CustomerName),
		SecurityIdentifier:  c.SecurityIdentifier,
		CardEnding:          c.CardEnding,
		CaseStatus:          string(c.Status),
		TransactionName:     c.TransactionMerchant,
		TransactionAmount:   formatAmount(c.TransactionAmount),
		TransactionTime:     formatTransactionTime(c.TransactionTime),
		TransactionCategory: c.TransactionCategory,
		TransactionSource:   c.TransactionSource,
		SecurityQuestion:    c.SecurityQuestion,
		SecurityAnswer:      c.SecurityAnswer,
		Outcome:             sql.NullString{},
		UpdatedAt:           sql.NullString{},
	}
	if c.Outcome != nil {
		row.Outcome = sql.NullString{String: *c.Outcome, Valid: true}
	}
	if updatedAt := formatUpdatedAt(c.UpdatedAt); updatedAt != nil {
		row.UpdatedAt = sql.NullString{String: *updatedAt, Valid: true}
	}
	return row
}

func (r caseRow) toModel() (models.FraudCase, error) {
	amount, err := parseAmount(r.TransactionAmount)
	if err != nil {
		return models.FraudCase{}, err
	}
	at, err := time.Parse(models.TransactionTimeLayout, r.TransactionTime)
	if err != nil {
		return models.FraudCase{}, errors.Wrap(err, "parse transaction time", slog.Int64("id", r.ID))
	}
	var outcome, updatedAtText *string
	if r.Outcome.Valid {
		outcome = &r.Outcome.String
	}
	if r.UpdatedAt.Valid {
		updatedAtText = &r.UpdatedAt.String
	}
	updatedAt, err := parseUpdatedAt(updatedAtText)
	if err != nil {
		return models.FraudCase{}, err
	}
	return models.FraudCase{
		CustomerName:        r.UserName,
		SecurityIdentifier:  r.SecurityIdentifier,
		CardEnding:          r.CardEnding,
		Status:              models.CaseStatus(r.CaseStatus),
		TransactionMerchant: r.TransactionName,
		TransactionAmount:   amount,
		TransactionTime:     at,
		TransactionCategory: r.TransactionCategory,
		TransactionSource:   r.TransactionSource,
		SecurityQuestion:    r.SecurityQuestion,
		SecurityAnswer:      r.SecurityAnswer,
		Outcome:             outcome,
		UpdatedAt:           updatedAt,
	}, nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, name string) (models.FraudCase, error) {
	key, err := lookupKey(name)
	if err != nil {
		return models.FraudCase{}, err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row caseRow
	// Duplicates are a seeding error. The oldest row wins.
	stmt := selectCases + ` WHERE nameKey = ? ORDER BY id LIMIT 1`
	if err = s.db.ReadOnly.GetContext(ctx, &row, stmt, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "no case found", slog.String("customer", name))
			return models.FraudCase{}, errors.Wrap(ErrNotFound, "lookup case", slog.String("customer", name))
		}
		return models.FraudCase{}, unavailable(err, "select case", slog.String("customer", name))
	}
	fraudCase, err := row.toModel()
	if err != nil {
		return models.FraudCase{}, errors.Wrap(err, "map case row")
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "retrieved case", slog.String("customer", fraudCase.CustomerName))
	return fraudCase, nil
}

func (s *SQLiteStore) UpdateStatus(
	ctx context.Context,
	name string,
	status models.CaseStatus,
	outcome *string,
) (UpdateResult, error) {
	u, err := newStatusUpdate(name, status, outcome)
	if err != nil {
		return UpdateResult{}, err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return UpdateResult{}, unavailable(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current struct {
		ID     int64  `db:"id"`
		Status string `db:"caseStatus"`
	}
	if err = tx.GetContext(ctx, &current,
		`SELECT id, caseStatus FROM fraud_cases WHERE nameKey = ? ORDER BY id LIMIT 1`, u.key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "no case to update", slog.String("customer", u.name))
			return UpdateResult{}, errors.Wrap(ErrNotFound, "update case status", slog.String("customer", u.name))
		}
		return UpdateResult{}, unavailable(err, "select case for update", slog.String("customer", u.name))
	}

	updatedAt := formatUpdatedAt(&u.updatedAt)
	res, err := tx.ExecContext(ctx,
		`UPDATE fraud_cases SET caseStatus = ?, outcome = ?, updatedAt = ? WHERE id = ?`,
		string(u.status), u.outcome, *updatedAt, current.ID)
	if err != nil {
		return UpdateResult{}, unavailable(err, "update case status", slog.String("customer", u.name))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return UpdateResult{}, unavailable(err, "rows affected")
	}
	if err = tx.Commit(); err != nil {
		return UpdateResult{}, unavailable(err, "commit status update")
	}

	result := UpdateResult{
		Before:    models.CaseStatus(current.Status),
		After:     u.status,
		Modified:  affected > 0,
		UpdatedAt: u.updatedAt,
	}
	logStatusChange(ctx, s.logger, u, result)
	return result, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.FraudCase, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var rows []caseRow
	if err := s.db.ReadOnly.SelectContext(ctx, &rows, selectCases+` ORDER BY nameKey, id`); err != nil {
		return nil, unavailable(err, "select cases")
	}
	cases := make([]models.FraudCase, 0, len(rows))
	for _, row := range rows {
		fraudCase, err := row.toModel()
		if err != nil {
			return nil, errors.Wrap(err, "map case row")
		}
		cases = append(cases, fraudCase)
	}
	return cases, nil
}

func (s *SQLiteStore) Put(ctx context.Context, fraudCase models.FraudCase) error {
	key, err := lookupKey(fraudCase.CustomerName)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM fraud_cases WHERE nameKey = ?`, key); err != nil {
		return unavailable(err, "delete replaced case", slog.String("customer", fraudCase.CustomerName))
	}
	if _, err = tx.NamedExecContext(ctx, insertCase, toRow(fraudCase)); err != nil {
		return unavailable(err, "insert case", slog.String("customer", fraudCase.CustomerName))
	}
	if err = tx.Commit(); err != nil {
		return unavailable(err, "commit put")
	}
	return nil
}

func (s *SQLiteStore) Seed(ctx context.Context, cases []models.FraudCase) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM fraud_cases`); err != nil {
		return 0, unavailable(err, "count cases")
	}
	if count > 0 || len(cases) == 0 {
		return 0, nil
	}
	if err = insertRows(ctx, tx, cases); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, unavailable(err, "commit seed")
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "seeded fraud cases", slog.Int("count", len(cases)))
	return len(cases), nil
}

// BackfillNameKeys fills the lookup key of rows written before the nameKey column existed. It returns the number of
// rows updated.
func (s *SQLiteStore) BackfillNameKeys(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var rows []struct {
		ID       int64  `db:"id"`
		UserName string `db:"userName"`
	}
	if err = tx.SelectContext(ctx, &rows, `SELECT id, userName FROM fraud_cases WHERE nameKey = ''`); err != nil {
		return 0, unavailable(err, "select rows without name key")
	}
	for _, r := range rows {
		if _, err = tx.ExecContext(ctx, `UPDATE fraud_cases SET nameKey = ? WHERE id = ?`,
			nameKey(r.UserName), r.ID); err != nil {
			return 0, unavailable(err, "backfill name key", slog.Int64("id", r.ID))
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, unavailable(err, "commit name key backfill")
	}
	if len(rows) > 0 {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "backfilled name keys", slog.Int("count", len(rows)))
	}
	return len(rows), nil
}

func insertRows(ctx context.Context, tx *sqlx.Tx, cases []models.FraudCase) error {
	rows := make([]caseRow, 0, len(cases))
	for _, c := range cases {
		rows = append(rows, toRow(c))
	}
	// sqlx expands a slice argument into a single multi-row insert.
	if _, err := tx.NamedExecContext(ctx, insertCase, rows); err != nil {
		return unavailable(err, "insert cases", slog.Int("count", len(rows)))
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "close sqlite database")
	}
	return nil
}
