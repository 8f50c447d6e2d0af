package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tnqbao/gau-vm-session-service/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
)

type LoggerClient struct {
	logger *slog.Logger
}

func InitLoggerClient(cfg *config.EnvConfig) *LoggerClient {
	level := slog.LevelInfo
	if cfg.Environment.Mode == "development" {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}
	if cfg.Grafana.OTLPEndpoint != "" {
		handlers = append(handlers, otelslog.NewHandler(cfg.Grafana.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider())))
	}

	logger := slog.New(fanoutHandler(handlers)).With(
		slog.String("service", cfg.Grafana.ServiceName),
		slog.String("env", cfg.Environment.Mode),
	)
	return &LoggerClient{logger: logger}
}

// NewLoggerClient wraps an existing handler.
func NewLoggerClient(handler slog.Handler) *LoggerClient {
	return &LoggerClient{logger: slog.New(handler)}
}

// NewDiscardLogger drops every record.
func NewDiscardLogger() *LoggerClient {
	return NewLoggerClient(slog.NewTextHandler(io.Discard, nil))
}

func (l *LoggerClient) DebugWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.logger.DebugContext(ctx, fmt.Sprintf(format, args...))
}

func (l *LoggerClient) InfoWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.logger.InfoContext(ctx, fmt.Sprintf(format, args...))
}

func (l *LoggerClient) WarningWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.logger.WarnContext(ctx, fmt.Sprintf(format, args...))
}

func (l *LoggerClient) ErrorWithContextf(ctx context.Context, err error, format string, args ...interface{}) {
	if err == nil {
		l.logger.ErrorContext(ctx, fmt.Sprintf(format, args...))
		return
	}
	l.logger.ErrorContext(ctx, fmt.Sprintf(format, args...), slog.String("error", err.Error()))
}

// fanoutHandler sends every record to all handlers that accept its level.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
