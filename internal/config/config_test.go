package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/myrjola/fraudalert/internal/config"
	"github.com/myrjola/fraudalert/internal/envstruct"
	"github.com/stretchr/testify/require"
)

func lookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    config.Config
		wantErr error
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: config.Config{
				UsePrimary:       true,
				PrimaryURL:       "",
				SQLiteURL:        "./fraud_cases.sqlite",
				PrimaryAttempts:  3,
				PrimaryTimeout:   5 * time.Second,
				OperationTimeout: 5 * time.Second,
			},
			wantErr: nil,
		},
		{
			name: "overrides",
			env: map[string]string{
				"FRAUD_USE_PRIMARY":       "false",
				"FRAUD_PRIMARY_URL":       "dynamodb://eu-north-1/fraud_cases",
				"FRAUD_SQLITE_URL":        ":memory:",
				"FRAUD_PRIMARY_ATTEMPTS":  "1",
				"FRAUD_PRIMARY_TIMEOUT":   "2s",
				"FRAUD_OPERATION_TIMEOUT": "750ms",
			},
			want: config.Config{
				UsePrimary:       false,
				PrimaryURL:       "dynamodb://eu-north-1/fraud_cases",
				SQLiteURL:        ":memory:",
				PrimaryAttempts:  1,
				PrimaryTimeout:   2 * time.Second,
				OperationTimeout: 750 * time.Millisecond,
			},
			wantErr: nil,
		},
		{
			name:    "invalid bool",
			env:     map[string]string{"FRAUD_USE_PRIMARY": "maybe"},
			want:    config.Config{}, //nolint:exhaustruct // error case.
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name:    "zero attempts",
			env:     map[string]string{"FRAUD_PRIMARY_ATTEMPTS": "0"},
			want:    config.Config{}, //nolint:exhaustruct // error case.
			wantErr: envstruct.ErrInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.Parse(lookup(tt.env))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want.PrimaryAttempts, got.Store().PrimaryAttempts)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(local, []byte("FRAUD_TEST_DOTENV=local\n"), 0o600))
	require.NoError(t, os.Unsetenv("FRAUD_TEST_DOTENV"))
	t.Cleanup(func() { _ = os.Unsetenv("FRAUD_TEST_DOTENV") })

	require.NoError(t, config.LoadDotEnv(local, filepath.Join(dir, ".env")))
	require.Equal(t, "local", os.Getenv("FRAUD_TEST_DOTENV"))
}
