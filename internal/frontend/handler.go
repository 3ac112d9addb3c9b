// Package frontend exposes a compiled guest over HTTP. Each POST body is one
// request; the guest's result is the response body.
package frontend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/reglet-dev/kvrunner/domain/ports"
)

// Runner executes one request against a store. *host.Module satisfies it.
type Runner interface {
	Run(ctx context.Context, store ports.KVStore, body []byte) ([]byte, error)
}

// RequestIDHeader carries the request ID on every response.
const RequestIDHeader = "X-Request-Id"

type handlerConfig struct {
	logger       *slog.Logger
	contentType  string
	maxBodyBytes int64
	timeout      time.Duration
}

// Option configures a Handler.
type Option func(*handlerConfig)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *handlerConfig) {
		c.logger = l
	}
}

// WithContentType sets the Content-Type of successful responses
// (default: "text/html").
func WithContentType(ct string) Option {
	return func(c *handlerConfig) {
		c.contentType = ct
	}
}

// WithMaxBodyBytes limits request bodies (default: 1MiB).
func WithMaxBodyBytes(n int64) Option {
	return func(c *handlerConfig) {
		c.maxBodyBytes = n
	}
}

// WithTimeout bounds each request's execution. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *handlerConfig) {
		c.timeout = d
	}
}

// Handler serves POST requests by running the guest against a fresh store.
type Handler struct {
	runner Runner
	stores ports.KVStoreFactory
	config handlerConfig
}

// NewHandler returns a Handler running requests through runner with stores
// produced by stores.
func NewHandler(runner Runner, stores ports.KVStoreFactory, opts ...Option) *Handler {
	cfg := handlerConfig{
		contentType:  "text/html",
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Handler{runner: runner, stores: stores, config: cfg}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set(RequestIDHeader, id)
	logger := h.config.logger.With("request_id", id)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(r.Context(), "request body too large", "limit", tooLarge.Limit)
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		logger.WarnContext(r.Context(), "failed to read request body", "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := h.run(ctx, body)
	if err != nil {
		// Details stay in the log; the client never sees partial results.
		logger.ErrorContext(ctx, "request failed", "error", err, "duration", time.Since(start))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger.InfoContext(ctx, "request served",
		"body_bytes", len(body), "result_bytes", len(result), "duration", time.Since(start))
	w.Header().Set("Content-Type", h.config.contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (h *Handler) run(ctx context.Context, body []byte) ([]byte, error) {
	store, err := h.stores.NewStore(ctx)
	if err != nil {
		return nil, err
	}
	return h.runner.Run(ctx, store, body)
}
