package casestore

import (
	"log/slog"
	"time"

	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/shopspring/decimal"
)

// Persisted field names. Both backends use them verbatim so that records move between them unchanged.
const (
	fieldUserName            = "userName"
	fieldSecurityIdentifier  = "securityIdentifier"
	fieldCardEnding          = "cardEnding"
	fieldCaseStatus          = "caseStatus"
	fieldTransactionName     = "transactionName"
	fieldTransactionAmount   = "transactionAmount"
	fieldTransactionTime     = "transactionTime"
	fieldTransactionCategory = "transactionCategory"
	fieldTransactionSource   = "transactionSource"
	fieldSecurityQuestion    = "securityQuestion"
	fieldSecurityAnswer      = "securityAnswer"
	fieldOutcome             = "outcome"
	fieldUpdatedAt           = "updatedAt"
)

// Amounts are currency values persisted with exactly two decimal places.
const amountPlaces = 2

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(amountPlaces)
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse transaction amount", slog.String("amount", s))
	}
	// Normalize the exponent so that "1250" and "1250.00" decode to identical values.
	return decimal.RequireFromString(d.StringFixed(amountPlaces)), nil
}

// transactionInstant is the transaction time as persisted: UTC at whole seconds, since the layout carries neither a
// zone nor fractions.
func transactionInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func formatTransactionTime(t time.Time) string {
	return transactionInstant(t).Format(models.TransactionTimeLayout)
}

func formatUpdatedAt(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func parseUpdatedAt(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil //nolint:nilnil // absent timestamp is not an error.
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, errors.Wrap(err, "parse updatedAt", slog.String("updatedAt", *s))
	}
	t = t.UTC()
	return &t, nil
}
