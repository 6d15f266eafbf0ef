// Package config reads the process configuration from the environment and optional dotenv files.
package config

import (
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/myrjola/fraudalert/internal/casestore"
	"github.com/myrjola/fraudalert/internal/envstruct"
	"github.com/myrjola/fraudalert/internal/errors"
)

// DotEnvFiles are loaded in order. Variables already set in the environment win over both files.
var DotEnvFiles = []string{".env.local", ".env"}

type Config struct {
	UsePrimary       bool          `env:"FRAUD_USE_PRIMARY" envDefault:"true"`
	PrimaryURL       string        `env:"FRAUD_PRIMARY_URL" envDefault:""`
	SQLiteURL        string        `env:"FRAUD_SQLITE_URL" envDefault:"./fraud_cases.sqlite"`
	PrimaryAttempts  int           `env:"FRAUD_PRIMARY_ATTEMPTS" envDefault:"3"`
	PrimaryTimeout   time.Duration `env:"FRAUD_PRIMARY_TIMEOUT" envDefault:"5s"`
	OperationTimeout time.Duration `env:"FRAUD_OPERATION_TIMEOUT" envDefault:"5s"`
}

// LoadDotEnv loads the dotenv files that exist. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Wrap(err, "load dotenv file", slog.String("file", file))
		}
	}
	return nil
}

// Parse reads the configuration with lookupEnv, which has the same signature as [os.LookupEnv].
func Parse(lookupEnv func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return Config{}, errors.Wrap(err, "populate config")
	}
	if cfg.PrimaryAttempts < 1 {
		return Config{}, errors.Wrap(envstruct.ErrInvalidValue, "FRAUD_PRIMARY_ATTEMPTS must be positive",
			slog.Int("attempts", cfg.PrimaryAttempts))
	}
	return cfg, nil
}

// Store returns the case store settings.
func (c Config) Store() casestore.Config {
	return casestore.Config{
		UsePrimary:       c.UsePrimary,
		PrimaryURL:       c.PrimaryURL,
		SQLiteURL:        c.SQLiteURL,
		PrimaryAttempts:  c.PrimaryAttempts,
		PrimaryTimeout:   c.PrimaryTimeout,
		OperationTimeout: c.OperationTimeout,
	}
}
