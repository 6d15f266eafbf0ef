// Package debugserver exposes pprof profiles and Prometheus metrics on a loopback address.
package debugserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var ErrNotLoopback = errors.NewSentinel("debug server must listen on a loopback address")

// Handle registers the pprof endpoints and /metrics serving the metrics of gatherer.
func Handle(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})) //nolint:exhaustruct // defaults.
}

// Launch serves the debug endpoints at addr until ctx is done.
//
// The address must resolve to loopback so that profiles aren't exposed to the world. The returned address is the one
// actually listened on, which differs from addr when its port is 0.
func Launch(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", errors.Wrap(err, "split debug address", slog.String("addr", addr))
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return "", errors.Wrap(ErrNotLoopback, "check debug address", slog.String("addr", addr))
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return "", errors.Wrap(err, "listen", slog.String("addr", addr))
	}

	mux := http.NewServeMux()
	Handle(mux, gatherer)
	srv := &http.Server{ //nolint:exhaustruct // defaults.
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		logger.LogAttrs(ctx, slog.LevelInfo, "starting debug server", slog.String("addr", listener.Addr().String()))
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.LogAttrs(ctx, slog.LevelError, "debug server stopped", errors.SlogError(serveErr))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.LogAttrs(shutdownCtx, slog.LevelError, "debug server shutdown failed", errors.SlogError(shutdownErr))
		}
	}()
	return listener.Addr().String(), nil
}
