// Package verification runs the identity check of a fraud-alert call.
//
// A [Session] walks one caller through name lookup, the security question and the card digits, strictly in that
// order, before a disposition can be recorded. A single failed check ends the session.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/myrjola/fraudalert/internal/casestore"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/logging"
	"github.com/myrjola/fraudalert/internal/metrics"
	"github.com/myrjola/fraudalert/internal/models"
)

var (
	// ErrEmptyInput is returned for blank caller input. The driver should ask again.
	ErrEmptyInput = errors.NewSentinel("empty input")
	// ErrProtocolViolation is returned for operations called out of order. Nothing is written to the store.
	ErrProtocolViolation = errors.NewSentinel("protocol violation")
	// ErrMismatch is returned when the security answer or the card digits are wrong. The session is then over.
	ErrMismatch = errors.NewSentinel("verification mismatch")
	// ErrNotFound is returned when no case matches the customer.
	ErrNotFound = errors.NewSentinel("case not found")
	// ErrStoreUnavailable is returned when the case store couldn't confirm a read or write.
	ErrStoreUnavailable = errors.NewSentinel("case store unavailable")
)

// Outcome notes written on failed checks.
const (
	OutcomeSecurityFailed = "Security question failed"
	OutcomeCardFailed     = "Card digits failed"
)

// Result is the short outcome the driver relays to the customer.
type Result struct {
	State   State
	Message string
	// Summary is set by a successful LoadCase.
	Summary *models.CaseSummary
}

// Session is the state of one call. It's used by a single caller at a time and discarded when the call ends.
type Session struct {
	id      string
	store   casestore.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	state State
	// fraudCase is the case loaded for the call.
	fraudCase models.FraudCase
	// status is the case status as far as this session is concerned.
	status         models.CaseStatus
	securityPassed bool
}

// Option customizes a Session.
type Option func(*Session)

// WithMetrics records session starts, outcomes and protocol violations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// NewSession starts a call against store.
func NewSession(store casestore.Store, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		id:             uuid.NewString(),
		store:          store,
		logger:         logger,
		metrics:        nil,
		state:          StateUnauthenticated,
		fraudCase:      models.FraudCase{}, //nolint:exhaustruct // loaded later.
		status:         "",
		securityPassed: false,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.metrics.IncrementSessionStarted()
	}
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// SecurityPassed reports whether the security question was answered correctly.
func (s *Session) SecurityPassed() bool {
	return s.securityPassed
}

// CustomerName returns the name of the loaded case or "" before a case is loaded.
func (s *Session) CustomerName() string {
	return s.fraudCase.CustomerName
}

func (s *Session) logContext(ctx context.Context) context.Context {
	attrs := []slog.Attr{slog.String("session_id", s.id)}
	if s.fraudCase.CustomerName != "" {
		attrs = append(attrs, slog.String("customer", s.fraudCase.CustomerName))
	}
	return logging.WithAttrs(ctx, attrs...)
}

// require rejects operation unless the session is in the wanted state.
func (s *Session) require(ctx context.Context, operation string, want State) error {
	if s.state == want {
		return nil
	}
	if s.metrics != nil {
		s.metrics.IncrementProtocolRejected(operation)
	}
	s.logger.LogAttrs(ctx, slog.LevelWarn, "operation called out of order",
		slog.String("operation", operation),
		slog.String("state", s.state.String()),
		slog.String("required_state", want.String()))
	return errors.Wrap(ErrProtocolViolation, operation,
		slog.String("state", s.state.String()), slog.String("required_state", want.String()))
}

// LoadCase looks up the case of the named customer. It's valid only before a case is loaded.
func (s *Session) LoadCase(ctx context.Context, name string) (Result, error) {
	ctx = s.logContext(ctx)
	if err := s.require(ctx, "load case", StateUnauthenticated); err != nil {
		return s.result("Verification has already started for this call."), err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s.result("Could you tell me your name?"), errors.Wrap(ErrEmptyInput, "load case: blank name")
	}

	fraudCase, err := s.store.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, casestore.ErrNotFound) {
			return s.result(fmt.Sprintf("I couldn't find a case for %s. Could you verify the name?", name)),
				errors.Wrap(errors.Join(ErrNotFound, err), "load case", slog.String("customer", name))
		}
		return s.result("I'm unable to look up your case right now."),
			errors.Wrap(errors.Join(ErrStoreUnavailable, err), "load case", slog.String("customer", name))
	}

	s.fraudCase = fraudCase
	s.status = models.CaseStatusPendingReview
	s.state = StateCaseLoaded
	ctx = logging.WithAttrs(ctx, slog.String("customer", fraudCase.CustomerName))
	if fraudCase.Status != models.CaseStatusPendingReview {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "re-verifying case that isn't pending review",
			slog.String("stored_status", string(fraudCase.Status)))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "case loaded")

	summary := fraudCase.Summary()
	r := s.result(fmt.Sprintf("Hello %s, we noticed a %s transaction of $%s at %s. To verify your identity: %s",
		fraudCase.CustomerName,
		fraudCase.TransactionCategory,
		fraudCase.TransactionAmount.StringFixed(2),
		fraudCase.TransactionMerchant,
		fraudCase.SecurityQuestion))
	r.Summary = &summary
	return r, nil
}

// VerifySecurityAnswer checks answer against the stored answer ignoring case and surrounding whitespace.
func (s *Session) VerifySecurityAnswer(ctx context.Context, answer string) (Result, error) {
	ctx = s.logContext(ctx)
	if err := s.require(ctx, "verify security answer", StateCaseLoaded); err != nil {
		return s.result("The security question can't be answered at this point of the call."), err
	}
	normalized := strings.ToLower(strings.TrimSpace(answer))
	if normalized == "" {
		return s.result("Could you answer the security question?"),
			errors.Wrap(ErrEmptyInput, "verify security answer: blank answer")
	}

	if normalized != strings.ToLower(strings.TrimSpace(s.fraudCase.SecurityAnswer)) {
		return s.fail(ctx, "security answer", OutcomeSecurityFailed,
			"I'm sorry, that answer doesn't match our records. For your security this call can't continue.")
	}

	s.securityPassed = true
	s.state = StateSecurityVerified
	s.logger.LogAttrs(ctx, slog.LevelInfo, "security question passed")
	return s.result("Thank you. Could you confirm the last four digits of your card?"), nil
}

// VerifyCardDigits checks digits against the stored card ending with exact string equality.
//
// The digits aren't normalized: surrounding whitespace, leading zeros or any other difference is a mismatch.
func (s *Session) VerifyCardDigits(ctx context.Context, digits string) (Result, error) {
	ctx = s.logContext(ctx)
	if err := s.require(ctx, "verify card digits", StateSecurityVerified); err != nil {
		return s.result("The card digits can't be checked before the security question is answered."), err
	}
	if strings.TrimSpace(digits) == "" {
		return s.result("Could you tell me the last four digits of your card?"),
			errors.Wrap(ErrEmptyInput, "verify card digits: blank digits")
	}

	if digits != s.fraudCase.CardEnding {
		return s.fail(ctx, "card digits", OutcomeCardFailed,
			"I'm sorry, those digits don't match our records. For your security this call can't continue.")
	}

	s.state = StateCardVerified
	s.logger.LogAttrs(ctx, slog.LevelInfo, "card digits passed")
	return s.result(fmt.Sprintf("Thank you, you're verified. Did you make the %s purchase at %s?",
		s.fraudCase.TransactionAmount.StringFixed(2), s.fraudCase.TransactionMerchant)), nil
}

// fail ends the session after a mismatch and records it in the store.
//
// The session ends even if the write fails, in which case the store error is returned together with ErrMismatch.
func (s *Session) fail(ctx context.Context, check, outcome, message string) (Result, error) {
	s.state = StateVerificationFailed
	s.logger.LogAttrs(ctx, slog.LevelWarn, "verification failed", slog.String("check", check))
	mismatch := errors.Wrap(ErrMismatch, "verify "+check)
	if err := s.write(ctx, models.CaseStatusVerificationFailed, outcome); err != nil {
		return s.result(message), errors.Join(mismatch, err)
	}
	return s.result(message), mismatch
}

// Resolve records the customer's disposition. It's valid only after both checks passed.
//
// When the store can't confirm the write the session stays verified and the driver must not claim success.
func (s *Session) Resolve(ctx context.Context, d models.Disposition) (Result, error) {
	ctx = s.logContext(ctx)
	if err := s.require(ctx, "resolve", StateCardVerified); err != nil {
		return s.result("The case can't be resolved before verification is complete."), err
	}
	if !d.Valid() {
		return s.result("Was the transaction made by you?"),
			errors.Wrap(ErrEmptyInput, "resolve: unknown disposition", slog.Int("disposition", int(d)))
	}

	if err := s.write(ctx, d.Status(), d.Outcome()); err != nil {
		return s.result("I couldn't confirm the update of your case. Please stay on the line."), err
	}

	if d == models.DispositionFraud {
		s.state = StateResolvedFraud
		return s.result(fmt.Sprintf("Your card ending in %s has been blocked and a replacement is on its way.",
			s.fraudCase.CardEnding)), nil
	}
	s.state = StateResolvedSafe
	return s.result("Thank you for confirming. The transaction has been marked as legitimate."), nil
}

// ResolveSafe records that the customer made the transaction.
func (s *Session) ResolveSafe(ctx context.Context) (Result, error) {
	return s.Resolve(ctx, models.DispositionSafe)
}

// ResolveFraud records that the customer denied the transaction.
func (s *Session) ResolveFraud(ctx context.Context) (Result, error) {
	return s.Resolve(ctx, models.DispositionFraud)
}

func (s *Session) write(ctx context.Context, status models.CaseStatus, outcome string) error {
	if !s.status.CanTransitionTo(status) {
		return errors.Wrap(ErrProtocolViolation, "illegal status transition",
			slog.String("from", string(s.status)), slog.String("to", string(status)))
	}
	name := s.fraudCase.CustomerName
	if _, err := s.store.UpdateStatus(ctx, name, status, &outcome); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "case status update failed",
			slog.String("status", string(status)), errors.SlogError(err))
		if errors.Is(err, casestore.ErrNotFound) {
			return errors.Wrap(errors.Join(ErrNotFound, err), "update case status")
		}
		return errors.Wrap(errors.Join(ErrStoreUnavailable, err), "update case status")
	}
	s.status = status
	if s.metrics != nil {
		s.metrics.IncrementOutcome(string(status))
	}
	return nil
}

func (s *Session) result(message string) Result {
	return Result{State: s.state, Message: message, Summary: nil}
}
