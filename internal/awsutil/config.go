// Package awsutil provides utilities for loading AWS configuration.
package awsutil

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/myrjola/fraudalert/internal/errors"
)

const tableScheme = "dynamodb"

var ErrInvalidTableURL = errors.NewSentinel("invalid table URL")

// TableLocation identifies a DynamoDB table.
type TableLocation struct {
	Region string
	Table  string
	// Endpoint overrides the regional AWS endpoint, e.g., http://localhost:8000 for DynamoDB Local.
	Endpoint string
}

// ParseTableURL parses URLs of the form dynamodb://<region>/<table>?endpoint=<url>.
func ParseTableURL(raw string) (TableLocation, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return TableLocation{}, errors.Wrap(errors.Join(ErrInvalidTableURL, err), "parse table URL")
	}
	if u.Scheme != tableScheme {
		return TableLocation{}, errors.Wrap(ErrInvalidTableURL, "unsupported scheme", slog.String("scheme", u.Scheme))
	}
	table := strings.Trim(u.Path, "/")
	if u.Host == "" || table == "" || strings.Contains(table, "/") {
		return TableLocation{}, errors.Wrap(ErrInvalidTableURL, "expected dynamodb://<region>/<table>")
	}
	return TableLocation{
		Region:   u.Host,
		Table:    table,
		Endpoint: u.Query().Get("endpoint"),
	}, nil
}

// Load loads the AWS configuration for region.
//
// The endpoint argument takes precedence over AWS_ENDPOINT_URL, e.g., http://localstack:4566. The endpoint in use is
// returned, empty when the SDK resolves the regional endpoint itself.
func Load(
	ctx context.Context,
	region string,
	endpoint string,
	lookupEnv func(string) (string, bool),
) (aws.Config, string, error) {
	if endpoint == "" {
		endpoint, _ = lookupEnv("AWS_ENDPOINT_URL")
	}
	opts := []func(*awsCfg.LoadOptions) error{awsCfg.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsCfg.WithBaseEndpoint(endpoint))
	}
	cfg, err := awsCfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, "", errors.Wrap(err, "load AWS config", slog.String("region", region))
	}
	return cfg, endpoint, nil
}
