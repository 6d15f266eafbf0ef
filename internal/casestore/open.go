package casestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/myrjola/fraudalert/internal/awsutil"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/sqlite"
)

// Backend names the storage technology a Selection resolved to.
type Backend string

const (
	BackendPrimary  Backend = "primary"
	BackendFallback Backend = "fallback"
)

const (
	defaultPrimaryAttempts = 3
	defaultPrimaryTimeout  = 5 * time.Second
)

// Config selects and tunes the backends.
type Config struct {
	// UsePrimary enables the attempt to reach the primary backend.
	UsePrimary bool
	// PrimaryURL locates the DynamoDB table, dynamodb://<region>/<table>?endpoint=<url>.
	PrimaryURL string
	// SQLiteURL is the path of the fallback database file or ":memory:".
	SQLiteURL string
	// PrimaryAttempts is the number of connection attempts before falling back.
	PrimaryAttempts int
	// PrimaryTimeout bounds each connection attempt.
	PrimaryTimeout time.Duration
	// OperationTimeout bounds every store call after selection.
	OperationTimeout time.Duration
}

// Selection is the backend chosen by Open together with the reason for choosing it.
type Selection struct {
	Backend Backend
	Store   Store
	Reason  string
}

// DialFunc connects to the DynamoDB API for the table at loc.
type DialFunc func(ctx context.Context, loc awsutil.TableLocation) (DynamoAPI, error)

type openOptions struct {
	dial      DialFunc
	lookupEnv func(string) (string, bool)
	seed      bool
}

// Option customizes Open.
type Option func(*openOptions)

// WithDial replaces the DynamoDB client constructor, e.g., with a fake in tests.
func WithDial(dial DialFunc) Option {
	return func(o *openOptions) {
		o.dial = dial
	}
}

// WithLookupEnv sets the environment lookup used for AWS settings such as AWS_ENDPOINT_URL.
func WithLookupEnv(lookupEnv func(string) (string, bool)) Option {
	return func(o *openOptions) {
		o.lookupEnv = lookupEnv
	}
}

// WithoutSeed skips inserting the sample cases into an empty store.
func WithoutSeed() Option {
	return func(o *openOptions) {
		o.seed = false
	}
}

// Open selects the backend once for the process lifetime.
//
// The primary backend is tried only when it's enabled and its URL is configured. After the configured number of
// failed attempts Open falls back to SQLite and never tries the primary again. The chosen store is seeded with the
// sample cases if it's empty. An error is returned only when the fallback can't be opened either.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (Selection, error) {
	o := openOptions{dial: nil, lookupEnv: func(string) (string, bool) { return "", false }, seed: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dial == nil {
		o.dial = dynamoDialer(o.lookupEnv)
	}
	if cfg.PrimaryAttempts <= 0 {
		cfg.PrimaryAttempts = defaultPrimaryAttempts
	}
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = defaultPrimaryTimeout
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}

	reason := primarySkipReason(cfg)
	if reason == "" {
		store, err := openPrimary(ctx, cfg, o, logger)
		if err == nil {
			logger.LogAttrs(ctx, slog.LevelInfo, "using primary case store", slog.String("url", cfg.PrimaryURL))
			return Selection{Backend: BackendPrimary, Store: store, Reason: "primary reachable"}, nil
		}
		reason = fmt.Sprintf("primary unreachable: %v", err)
		logger.LogAttrs(ctx, slog.LevelError, "primary case store failed, falling back to SQLite",
			errors.SlogError(err))
	} else {
		logger.LogAttrs(ctx, slog.LevelWarn, "primary case store not used, falling back to SQLite",
			slog.String("reason", reason))
	}

	store, err := openFallback(ctx, cfg, o, logger)
	if err != nil {
		return Selection{}, errors.Wrap(err, "open fallback case store", slog.String("reason", reason))
	}
	return Selection{Backend: BackendFallback, Store: store, Reason: reason}, nil
}

// primarySkipReason explains why the primary backend isn't attempted, or returns "" when it should be.
func primarySkipReason(cfg Config) string {
	url := strings.TrimSpace(cfg.PrimaryURL)
	switch {
	case !cfg.UsePrimary:
		return "primary disabled"
	case url == "":
		return "primary URL not configured"
	case isPlaceholder(url):
		return "primary URL is a placeholder"
	default:
		return ""
	}
}

// isPlaceholder detects template values left in configuration files.
func isPlaceholder(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "<") ||
		strings.Contains(lower, "changeme") ||
		lower == "dynamodb://localhost" ||
		lower == "dynamodb://localhost/"
}

func openPrimary(ctx context.Context, cfg Config, o openOptions, logger *slog.Logger) (Store, error) {
	loc, err := awsutil.ParseTableURL(cfg.PrimaryURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse primary URL")
	}

	var store *DynamoStore
	for attempt := 1; attempt <= cfg.PrimaryAttempts; attempt++ {
		store, err = connectPrimary(ctx, cfg, o, loc, logger)
		if err == nil {
			break
		}
		logger.LogAttrs(ctx, slog.LevelWarn, "primary connection attempt failed",
			slog.Int("attempt", attempt), slog.Int("max_attempts", cfg.PrimaryAttempts), errors.SlogError(err))
	}
	if err != nil {
		return nil, errors.Wrap(err, "connect primary", slog.Int("attempts", cfg.PrimaryAttempts))
	}

	if o.seed {
		if _, err = store.Seed(ctx, SampleCases()); err != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "primary table may be partially seeded",
				slog.String("table", loc.Table), errors.SlogError(err))
			if closeErr := store.Close(); closeErr != nil {
				logger.LogAttrs(ctx, slog.LevelError, "closing primary case store failed", errors.SlogError(closeErr))
			}
			return nil, errors.Wrap(err, "seed primary")
		}
	}
	return store, nil
}

func connectPrimary(
	ctx context.Context,
	cfg Config,
	o openOptions,
	loc awsutil.TableLocation,
	logger *slog.Logger,
) (*DynamoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.PrimaryTimeout)
	defer cancel()
	api, err := o.dial(ctx, loc)
	if err != nil {
		return nil, errors.Wrap(err, "dial dynamodb")
	}
	store := NewDynamoStore(api, loc.Table, cfg.OperationTimeout, logger)
	if err = store.EnsureTable(ctx); err != nil {
		return nil, errors.Wrap(err, "ensure table")
	}
	return store, nil
}

// dynamoDialer builds SDK clients. The SDK connects lazily, EnsureTable performs the first round trip.
func dynamoDialer(lookupEnv func(string) (string, bool)) DialFunc {
	return func(ctx context.Context, loc awsutil.TableLocation) (DynamoAPI, error) {
		cfg, _, err := awsutil.Load(ctx, loc.Region, loc.Endpoint, lookupEnv)
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}
		return dynamodb.NewFromConfig(cfg), nil
	}
}

func openFallback(ctx context.Context, cfg Config, o openOptions, logger *slog.Logger) (Store, error) {
	url := cfg.SQLiteURL
	if strings.TrimSpace(url) == "" {
		url = "./fraud_cases.sqlite"
	}
	db, err := sqlite.NewDatabase(ctx, url, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite", slog.String("url", url))
	}
	store := NewSQLiteStore(db, cfg.OperationTimeout, logger)
	if _, err = store.BackfillNameKeys(ctx); err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "backfill sqlite name keys")
	}
	if o.seed {
		if _, err = store.Seed(ctx, SampleCases()); err != nil {
			_ = store.Close()
			return nil, errors.Wrap(err, "seed sqlite")
		}
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "using fallback case store", slog.String("url", url))
	return store, nil
}
