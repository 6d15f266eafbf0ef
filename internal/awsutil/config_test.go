package awsutil_test

import (
	"context"
	"testing"

	"github.com/myrjola/fraudalert/internal/awsutil"
	"github.com/stretchr/testify/require"
)

func TestParseTableURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    awsutil.TableLocation
		wantErr bool
	}{
		{
			name: "region and table",
			raw:  "dynamodb://eu-north-1/fraud_cases",
			want: awsutil.TableLocation{Region: "eu-north-1", Table: "fraud_cases", Endpoint: ""},
		},
		{
			name: "local endpoint",
			raw:  "dynamodb://us-east-1/fraud_cases?endpoint=http://localhost:8000",
			want: awsutil.TableLocation{Region: "us-east-1", Table: "fraud_cases", Endpoint: "http://localhost:8000"},
		},
		{
			name:    "wrong scheme",
			raw:     "mongodb://localhost:27017/",
			wantErr: true,
		},
		{
			name:    "missing table",
			raw:     "dynamodb://eu-north-1",
			wantErr: true,
		},
		{
			name:    "nested path",
			raw:     "dynamodb://eu-north-1/a/b",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := awsutil.ParseTableURL(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, awsutil.ErrInvalidTableURL)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	env := map[string]string{"AWS_ENDPOINT_URL": "http://localstack:4566"}
	lookupEnv := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, endpoint, err := awsutil.Load(ctx, "eu-north-1", "", lookupEnv)
	require.NoError(t, err)
	require.Equal(t, "eu-north-1", cfg.Region)
	require.Equal(t, "http://localstack:4566", endpoint)

	_, endpoint, err = awsutil.Load(ctx, "eu-north-1", "http://localhost:8000", lookupEnv)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", endpoint, "explicit endpoint wins")
}
