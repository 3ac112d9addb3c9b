// Command kvrunner serves a sandboxed wasm guest over HTTP. Each request runs
// in a fresh instance with access to a key-value store.
//
// Usage:
//
//	kvrunner -config kvrunner.toml
//	kvrunner -print-schema
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reglet-dev/kvrunner/config"
	"github.com/reglet-dev/kvrunner/host"
	"github.com/reglet-dev/kvrunner/infrastructure/kvstore"
	"github.com/reglet-dev/kvrunner/internal/frontend"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "kvrunner: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("kvrunner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "kvrunner.toml", "Path to the TOML configuration file")
	printSchema := fs.Bool("print-schema", false, "Print the configuration JSON schema and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(schema))
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	stores, err := kvstore.NewFactory(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	executor, err := host.NewExecutor(ctx,
		host.WithLogger(logger),
		host.WithImportModule(cfg.Module.ImportModule),
		host.WithWASI(cfg.Module.WASI),
		host.WithMemoryLimitPages(cfg.Module.MemoryLimitPages),
		host.WithCompilationCacheDir(cfg.Module.CacheDir),
		host.WithTrace(cfg.Module.Trace),
	)
	if err != nil {
		return err
	}
	defer executor.Close(context.WithoutCancel(ctx))

	module, err := executor.CompileFile(ctx, cfg.Module.Path)
	if err != nil {
		return err
	}
	logger.Info("module loaded", "path", cfg.Module.Path, "backend", cfg.Store.Backend)

	handler := frontend.NewHandler(module, stores,
		frontend.WithLogger(logger),
		frontend.WithContentType(cfg.Server.ContentType),
		frontend.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		frontend.WithTimeout(cfg.Server.RequestTimeout),
	)
	return serve(ctx, &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, logger)
}

// serve runs srv until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
