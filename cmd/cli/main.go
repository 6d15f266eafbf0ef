package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/myrjola/fraudalert/cmd/cli/app"
	"github.com/myrjola/fraudalert/cmd/cli/call"
	"github.com/myrjola/fraudalert/cmd/cli/cases"
	"github.com/myrjola/fraudalert/internal/casestore"
	"github.com/myrjola/fraudalert/internal/config"
	"github.com/myrjola/fraudalert/internal/debugserver"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/logging"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "log at debug level")
	rootCmd.PersistentFlags().String("debug-addr", "",
		"loopback address serving pprof and /metrics, e.g., localhost:6060")
	rootCmd.AddGroup(call.Group)
	rootCmd.AddCommand(call.Cmd)
	rootCmd.AddGroup(cases.Group)
	rootCmd.AddCommand(cases.Cmd)
}

var rootCmd = &cobra.Command{
	Use:               "fraudalert-cli",
	Long:              `Fraud-alert call verification with a DynamoDB case store and a SQLite fallback.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// opened is closed by main after the command returns, whether it failed or not.
var opened *app.App

// setup selects the case store once for the command being run.
func setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := config.LoadDotEnv(config.DotEnvFiles...); err != nil {
		return err
	}
	cfg, err := config.Parse(os.LookupEnv)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(os.Stderr, level)

	a, err := app.Open(ctx, cfg, logger, casestore.WithLookupEnv(os.LookupEnv))
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("debug-addr"); addr != "" {
		if _, err = debugserver.Launch(ctx, addr, a.Registry, logger); err != nil {
			_ = a.Close()
			return errors.Wrap(err, "launch debug server")
		}
	}
	opened = a
	cmd.SetContext(app.WithApp(ctx, a))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if opened != nil {
		if closeErr := opened.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
