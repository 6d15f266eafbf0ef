package verification_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/myrjola/fraudalert/internal/awsutil"
	"github.com/myrjola/fraudalert/internal/casestore"
	"github.com/myrjola/fraudalert/internal/casestore/mocks"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/metrics"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/myrjola/fraudalert/internal/testhelpers"
	"github.com/myrjola/fraudalert/internal/verification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newSeededStore(t *testing.T) *casestore.Memory {
	t.Helper()
	store := casestore.NewMemory(testhelpers.NewLogger(io.Discard))
	_, err := store.Seed(context.Background(), casestore.SampleCases())
	require.NoError(t, err)
	return store
}

func storedCase(t *testing.T, store casestore.Store, name string) models.FraudCase {
	t.Helper()
	c, err := store.Lookup(context.Background(), name)
	require.NoError(t, err)
	return c
}

// scenarioStores are the stores the end-to-end calls run against. The fallback is selected by Open with the primary
// down, as in production.
var scenarioStores = map[string]func(t *testing.T) casestore.Store{
	"memory":   func(t *testing.T) casestore.Store { return newSeededStore(t) },
	"fallback": newFallbackStore,
}

var errPrimaryDown = errors.New("dial tcp: connection refused")

func newFallbackStore(t *testing.T) casestore.Store {
	t.Helper()
	dial := func(context.Context, awsutil.TableLocation) (casestore.DynamoAPI, error) {
		return nil, errPrimaryDown
	}
	cfg := casestore.Config{ //nolint:exhaustruct // defaults.
		UsePrimary: true,
		PrimaryURL: "dynamodb://eu-north-1/fraud_cases",
		SQLiteURL:  filepath.Join(t.TempDir(), "cases.sqlite"),
	}
	sel, err := casestore.Open(context.Background(), cfg, testhelpers.NewLogger(io.Discard), casestore.WithDial(dial))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sel.Store.Close() })
	require.Equal(t, casestore.BackendFallback, sel.Backend)
	return sel.Store
}

func TestSession_resolveSafe(t *testing.T) {
	for backend, newStore := range scenarioStores {
		t.Run(backend, func(t *testing.T) {
			testResolveSafe(t, newStore(t))
		})
	}
}

func testResolveSafe(t *testing.T, store casestore.Store) {
	t.Helper()
	ctx := context.Background()
	s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))
	require.NotEmpty(t, s.ID())

	r, err := s.LoadCase(ctx, "John")
	require.NoError(t, err)
	require.Equal(t, verification.StateCaseLoaded, r.State)
	require.NotNil(t, r.Summary)
	require.Equal(t, "ABC Industry", r.Summary.TransactionMerchant)
	require.Equal(t, "1250.00", r.Summary.TransactionAmount.StringFixed(2))
	require.Equal(t, "What is your favorite color?", r.Summary.SecurityQuestion)
	require.NotContains(t, r.Message, "blue", "the answer is never read out")

	r, err = s.VerifySecurityAnswer(ctx, "Blue")
	require.NoError(t, err)
	require.Equal(t, verification.StateSecurityVerified, r.State)
	require.True(t, s.SecurityPassed())

	r, err = s.VerifyCardDigits(ctx, "4242")
	require.NoError(t, err)
	require.Equal(t, verification.StateCardVerified, r.State)

	r, err = s.ResolveSafe(ctx)
	require.NoError(t, err)
	require.Equal(t, verification.StateResolvedSafe, r.State)
	require.True(t, s.State().Done())

	c := storedCase(t, store, "john")
	require.Equal(t, models.CaseStatusConfirmedSafe, c.Status)
	require.NotNil(t, c.UpdatedAt)
	require.NotNil(t, c.Outcome)
	require.Equal(t, "Customer confirmed transaction", *c.Outcome)

	_, err = s.ResolveFraud(ctx)
	require.ErrorIs(t, err, verification.ErrProtocolViolation, "a session resolves once")
	require.Equal(t, models.CaseStatusConfirmedSafe, storedCase(t, store, "john").Status)
}

func TestSession_resolveFraud(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))

	_, err := s.LoadCase(ctx, "  michael ")
	require.NoError(t, err)
	_, err = s.VerifySecurityAnswer(ctx, "  MAX ")
	require.NoError(t, err)
	_, err = s.VerifyCardDigits(ctx, "1234")
	require.NoError(t, err)
	r, err := s.ResolveFraud(ctx)
	require.NoError(t, err)
	require.Equal(t, verification.StateResolvedFraud, r.State)
	require.Contains(t, r.Message, "1234")

	c := storedCase(t, store, "Michael")
	require.Equal(t, models.CaseStatusConfirmedFraud, c.Status)
	require.NotNil(t, c.UpdatedAt)
	require.Equal(t, "Customer denied transaction - card blocked", *c.Outcome)
}

func TestSession_securityMismatch(t *testing.T) {
	for backend, newStore := range scenarioStores {
		t.Run(backend, func(t *testing.T) {
			testSecurityMismatch(t, newStore(t))
		})
	}
}

func testSecurityMismatch(t *testing.T, store casestore.Store) {
	t.Helper()
	ctx := context.Background()
	s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))

	_, err := s.LoadCase(ctx, "Sarah")
	require.NoError(t, err)

	r, err := s.VerifySecurityAnswer(ctx, "red")
	require.ErrorIs(t, err, verification.ErrMismatch)
	require.Equal(t, verification.StateVerificationFailed, r.State)
	require.False(t, s.SecurityPassed())

	c := storedCase(t, store, "sarah")
	require.Equal(t, models.CaseStatusVerificationFailed, c.Status)
	require.Equal(t, verification.OutcomeSecurityFailed, *c.Outcome)
	require.NotNil(t, c.UpdatedAt)

	_, err = s.VerifyCardDigits(ctx, "8888")
	require.ErrorIs(t, err, verification.ErrProtocolViolation)
	_, err = s.VerifySecurityAnswer(ctx, "chicago")
	require.ErrorIs(t, err, verification.ErrProtocolViolation, "no second chance")
	_, err = s.LoadCase(ctx, "Sarah")
	require.ErrorIs(t, err, verification.ErrProtocolViolation)
	_, err = s.ResolveSafe(ctx)
	require.ErrorIs(t, err, verification.ErrProtocolViolation)
	require.Equal(t, verification.StateVerificationFailed, s.State())
	require.Equal(t, models.CaseStatusVerificationFailed, storedCase(t, store, "sarah").Status)
}

func TestSession_cardDigitsStrictEquality(t *testing.T) {
	tests := []struct {
		name   string
		digits string
		match  bool
	}{
		{name: "exact", digits: "4242", match: true},
		{name: "different digits", digits: "1234", match: false},
		{name: "leading space", digits: " 4242", match: false},
		{name: "trailing space", digits: "4242 ", match: false},
		{name: "leading zero", digits: "04242", match: false},
		{name: "last three", digits: "242", match: false},
		{name: "full width digits", digits: "４２４２", match: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newSeededStore(t)
			s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))
			_, err := s.LoadCase(ctx, "John")
			require.NoError(t, err)
			_, err = s.VerifySecurityAnswer(ctx, "blue")
			require.NoError(t, err)

			r, err := s.VerifyCardDigits(ctx, tt.digits)
			if tt.match {
				require.NoError(t, err)
				require.Equal(t, verification.StateCardVerified, r.State)
				return
			}
			require.ErrorIs(t, err, verification.ErrMismatch)
			require.Equal(t, verification.StateVerificationFailed, r.State)
			c := storedCase(t, store, "John")
			require.Equal(t, models.CaseStatusVerificationFailed, c.Status)
			require.Equal(t, verification.OutcomeCardFailed, *c.Outcome)
		})
	}
}

func TestSession_emptyInput(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))

	_, err := s.LoadCase(ctx, " \t ")
	require.ErrorIs(t, err, verification.ErrEmptyInput)
	require.Equal(t, verification.StateUnauthenticated, s.State())

	_, err = s.LoadCase(ctx, "Emily")
	require.NoError(t, err)
	_, err = s.VerifySecurityAnswer(ctx, "   ")
	require.ErrorIs(t, err, verification.ErrEmptyInput)
	require.Equal(t, verification.StateCaseLoaded, s.State(), "blank input can be asked again")

	_, err = s.VerifySecurityAnswer(ctx, "Smith")
	require.NoError(t, err)
	_, err = s.VerifyCardDigits(ctx, "")
	require.ErrorIs(t, err, verification.ErrEmptyInput)
	require.Equal(t, verification.StateSecurityVerified, s.State())

	_, err = s.VerifyCardDigits(ctx, "5678")
	require.NoError(t, err)
	_, err = s.Resolve(ctx, models.Disposition(0))
	require.ErrorIs(t, err, verification.ErrEmptyInput)
	require.Equal(t, verification.StateCardVerified, s.State())
	require.Equal(t, models.CaseStatusPendingReview, storedCase(t, store, "emily").Status)
}

func TestSession_notFound(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Lookup(gomock.Any(), "Zeus").
		Return(models.FraudCase{}, errors.Wrap(casestore.ErrNotFound, "lookup case")) //nolint:exhaustruct // empty.
	// No UpdateStatus expectation: any store mutation fails the test.

	s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))
	r, err := s.LoadCase(ctx, "Zeus")
	require.ErrorIs(t, err, verification.ErrNotFound)
	require.NotErrorIs(t, err, verification.ErrStoreUnavailable)
	require.Equal(t, verification.StateUnauthenticated, r.State)
	require.Contains(t, r.Message, "Zeus")
}

func TestSession_protocolViolationsNeverTouchStore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ctx context.Context, t *testing.T, s *verification.Session)
		call  func(ctx context.Context, s *verification.Session) (verification.Result, error)
	}{
		{
			name:  "security answer before case",
			setup: func(context.Context, *testing.T, *verification.Session) {},
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.VerifySecurityAnswer(ctx, "blue")
			},
		},
		{
			name:  "card digits before case",
			setup: func(context.Context, *testing.T, *verification.Session) {},
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.VerifyCardDigits(ctx, "4242")
			},
		},
		{
			name:  "resolve before case",
			setup: func(context.Context, *testing.T, *verification.Session) {},
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.ResolveFraud(ctx)
			},
		},
		{
			name:  "card digits before security answer",
			setup: loadJohn,
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.VerifyCardDigits(ctx, "4242")
			},
		},
		{
			name:  "resolve before security answer",
			setup: loadJohn,
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.ResolveSafe(ctx)
			},
		},
		{
			name: "resolve before card digits",
			setup: func(ctx context.Context, t *testing.T, s *verification.Session) {
				loadJohn(ctx, t, s)
				_, err := s.VerifySecurityAnswer(ctx, "blue")
				require.NoError(t, err)
			},
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.ResolveSafe(ctx)
			},
		},
		{
			name: "second case load",
			setup: loadJohn,
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.LoadCase(ctx, "Sarah")
			},
		},
		{
			name: "security answer twice",
			setup: func(ctx context.Context, t *testing.T, s *verification.Session) {
				loadJohn(ctx, t, s)
				_, err := s.VerifySecurityAnswer(ctx, "blue")
				require.NoError(t, err)
			},
			call: func(ctx context.Context, s *verification.Session) (verification.Result, error) {
				return s.VerifySecurityAnswer(ctx, "blue")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			store := mocks.NewMockStore(ctrl)
			john := casestore.SampleCases()[0]
			store.EXPECT().Lookup(gomock.Any(), "John").Return(john, nil).AnyTimes()
			// UpdateStatus is never expected.

			m := metrics.New(prometheus.NewRegistry())
			s := verification.NewSession(store, testhelpers.NewLogger(io.Discard), verification.WithMetrics(m))
			tt.setup(ctx, t, s)
			before := s.State()

			r, err := tt.call(ctx, s)
			require.ErrorIs(t, err, verification.ErrProtocolViolation)
			require.Equal(t, before, r.State)
			require.Equal(t, before, s.State(), "a rejected call doesn't change state")
			require.InDelta(t, 1, testutil.CollectAndCount(m.ProtocolRejected), 0)
		})
	}
}

func loadJohn(ctx context.Context, t *testing.T, s *verification.Session) {
	t.Helper()
	_, err := s.LoadCase(ctx, "John")
	require.NoError(t, err)
}

func TestSession_storeUnavailable(t *testing.T) {
	ctx := context.Background()
	unavailable := errors.Wrap(errors.Join(casestore.ErrUnavailable, context.DeadlineExceeded), "update item")

	t.Run("lookup", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().Lookup(gomock.Any(), "John").Return(models.FraudCase{}, unavailable) //nolint:exhaustruct // empty.

		s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))
		_, err := s.LoadCase(ctx, "John")
		require.ErrorIs(t, err, verification.ErrStoreUnavailable)
		require.Equal(t, verification.StateUnauthenticated, s.State())
	})

	t.Run("resolve", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		john := casestore.SampleCases()[0]
		outcome := models.DispositionSafe.Outcome()
		store.EXPECT().Lookup(gomock.Any(), "John").Return(john, nil)
		store.EXPECT().UpdateStatus(gomock.Any(), "John", models.CaseStatusConfirmedSafe, &outcome).
			Return(casestore.UpdateResult{}, unavailable) //nolint:exhaustruct // empty.

		s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))
		loadJohn(ctx, t, s)
		_, err := s.VerifySecurityAnswer(ctx, "blue")
		require.NoError(t, err)
		_, err = s.VerifyCardDigits(ctx, "4242")
		require.NoError(t, err)

		r, err := s.ResolveSafe(ctx)
		require.ErrorIs(t, err, verification.ErrStoreUnavailable)
		require.Equal(t, verification.StateCardVerified, r.State, "unconfirmed resolution isn't reported as done")
		require.NotContains(t, r.Message, "marked as legitimate")
	})

	t.Run("resolve not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		john := casestore.SampleCases()[0]
		store.EXPECT().Lookup(gomock.Any(), "John").Return(john, nil)
		store.EXPECT().UpdateStatus(gomock.Any(), "John", models.CaseStatusConfirmedFraud, gomock.Any()).
			Return(casestore.UpdateResult{}, errors.Wrap(casestore.ErrNotFound, "update")) //nolint:exhaustruct // empty.

		s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))
		loadJohn(ctx, t, s)
		_, err := s.VerifySecurityAnswer(ctx, "blue")
		require.NoError(t, err)
		_, err = s.VerifyCardDigits(ctx, "4242")
		require.NoError(t, err)

		_, err = s.ResolveFraud(ctx)
		require.ErrorIs(t, err, verification.ErrNotFound)
		require.False(t, s.State().Resolved())
	})

	t.Run("mismatch write", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		john := casestore.SampleCases()[0]
		outcome := verification.OutcomeSecurityFailed
		store.EXPECT().Lookup(gomock.Any(), "John").Return(john, nil)
		store.EXPECT().UpdateStatus(gomock.Any(), "John", models.CaseStatusVerificationFailed, &outcome).
			Return(casestore.UpdateResult{}, unavailable) //nolint:exhaustruct // empty.

		s := verification.NewSession(store, testhelpers.NewLogger(io.Discard))
		loadJohn(ctx, t, s)
		_, err := s.VerifySecurityAnswer(ctx, "green")
		require.ErrorIs(t, err, verification.ErrMismatch)
		require.ErrorIs(t, err, verification.ErrStoreUnavailable)
		require.Equal(t, verification.StateVerificationFailed, s.State(), "a mismatch ends the session regardless")
	})
}

func TestSession_reverifyClosedCase(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	outcome := models.DispositionSafe.Outcome()
	_, err := store.UpdateStatus(ctx, "John", models.CaseStatusConfirmedSafe, &outcome)
	require.NoError(t, err)

	var logs bytes.Buffer
	s := verification.NewSession(store, testhelpers.NewLogger(&logs))
	_, err = s.LoadCase(ctx, "JOHN")
	require.NoError(t, err)
	require.Contains(t, logs.String(), "re-verifying case that isn't pending review")
	require.Contains(t, logs.String(), "session_id="+s.ID())

	_, err = s.VerifySecurityAnswer(ctx, "blue")
	require.NoError(t, err)
	_, err = s.VerifyCardDigits(ctx, "4242")
	require.NoError(t, err)
	_, err = s.ResolveFraud(ctx)
	require.NoError(t, err)
	require.Equal(t, models.CaseStatusConfirmedFraud, storedCase(t, store, "john").Status)
}

func TestSession_metrics(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	m := metrics.New(prometheus.NewRegistry())

	s := verification.NewSession(store, testhelpers.NewLogger(io.Discard), verification.WithMetrics(m))
	_, err := s.LoadCase(ctx, "Lisa")
	require.NoError(t, err)
	_, err = s.VerifySecurityAnswer(ctx, "winter")
	require.ErrorIs(t, err, verification.ErrMismatch)

	require.InDelta(t, 1, testutil.ToFloat64(m.SessionsStarted), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.SessionOutcomes.WithLabelValues("verification_failed")), 0)
}
