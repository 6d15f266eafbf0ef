package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionTimeLayout is the layout of the persisted transactionTime field.
const TransactionTimeLayout = "2006-01-02 15:04:05"

// CaseStatus is the review status of a fraud case.
type CaseStatus string

const (
	CaseStatusPendingReview      CaseStatus = "pending_review"
	CaseStatusVerificationFailed CaseStatus = "verification_failed"
	CaseStatusConfirmedSafe      CaseStatus = "confirmed_safe"
	CaseStatusConfirmedFraud     CaseStatus = "confirmed_fraud"
)

var knownStatuses = []CaseStatus{
	CaseStatusPendingReview,
	CaseStatusVerificationFailed,
	CaseStatusConfirmedSafe,
	CaseStatusConfirmedFraud,
}

// transitions lists the statuses a verification session may move a case to from a given status.
var transitions = map[CaseStatus][]CaseStatus{
	CaseStatusPendingReview: {
		CaseStatusVerificationFailed,
		CaseStatusConfirmedSafe,
		CaseStatusConfirmedFraud,
	},
	CaseStatusVerificationFailed: nil,
	CaseStatusConfirmedSafe:      nil,
	CaseStatusConfirmedFraud:     nil,
}

// Known reports whether s is one of the statuses of the verification protocol.
//
// Backends may hold other, transient values. They are persisted as-is.
func (s CaseStatus) Known() bool {
	return slices.Contains(knownStatuses, s)
}

// Terminal reports whether s is a disposition that closes the case for the current session.
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusConfirmedSafe || s == CaseStatusConfirmedFraud
}

// CanTransitionTo reports whether a verification session may move a case from s to next.
//
// A session treats every loaded case as pending review, whatever its stored status, and consults the table against the
// status it wrote last.
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	allowed, ok := transitions[s]
	if !ok {
		// Transient backend statuses behave like a fresh case.
		allowed = transitions[CaseStatusPendingReview]
	}
	return slices.Contains(allowed, next)
}

// FraudCase is one suspected-fraud transaction tied to a customer.
type FraudCase struct {
	// CustomerName is the case-insensitive lookup key.
	CustomerName       string
	SecurityIdentifier string
	// CardEnding holds the last digits of the card. It's compared with exact string equality.
	CardEnding          string
	Status              CaseStatus
	TransactionMerchant string
	TransactionAmount   decimal.Decimal
	TransactionTime     time.Time
	TransactionCategory string
	TransactionSource   string
	SecurityQuestion    string
	SecurityAnswer      string
	// Outcome is the free-text resolution note. Nil when absent.
	Outcome *string
	// UpdatedAt is set on every status mutation. Nil until the first one.
	UpdatedAt *time.Time
}

// Summary returns the parts of the case that may be read out to the customer before they are verified.
func (c FraudCase) Summary() CaseSummary {
	return CaseSummary{
		CustomerName:        c.CustomerName,
		CardEnding:          c.CardEnding,
		TransactionMerchant: c.TransactionMerchant,
		TransactionAmount:   c.TransactionAmount,
		TransactionTime:     c.TransactionTime,
		TransactionCategory: c.TransactionCategory,
		TransactionSource:   c.TransactionSource,
		SecurityQuestion:    c.SecurityQuestion,
	}
}

// CaseSummary is returned when a case is loaded. It never includes the security answer.
type CaseSummary struct {
	CustomerName        string
	CardEnding          string
	TransactionMerchant string
	TransactionAmount   decimal.Decimal
	TransactionTime     time.Time
	TransactionCategory string
	TransactionSource   string
	SecurityQuestion    string
}

// Disposition is the customer's verdict on the flagged transaction.
type Disposition int

const (
	DispositionSafe Disposition = iota + 1
	DispositionFraud
)

// Status returns the terminal case status recorded for d.
func (d Disposition) Status() CaseStatus {
	if d == DispositionFraud {
		return CaseStatusConfirmedFraud
	}
	return CaseStatusConfirmedSafe
}

// Outcome returns the resolution note recorded for d.
func (d Disposition) Outcome() string {
	if d == DispositionFraud {
		return "Customer denied transaction - card blocked"
	}
	return "Customer confirmed transaction"
}

func (d Disposition) String() string {
	switch d {
	case DispositionSafe:
		return "safe"
	case DispositionFraud:
		return "fraud"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the defined dispositions.
func (d Disposition) Valid() bool {
	return d == DispositionSafe || d == DispositionFraud
}
