package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const serviceName = "receptionist-platform"

// redactedKeys never reach the log output. Provider payloads are logged on
// failure paths, and they carry OAuth tokens and API keys.
var redactedKeys = map[string]struct{}{
	"authorization": {},
	"access_token":  {},
	"refresh_token": {},
	"api_key":       {},
	"client_secret": {},
	"password":      {},
	"secret":        {},
	"x-vapi-secret": {},
}

// New returns a production-friendly structured logger.
// No business logic should depend on logging implementation details.
func New(appEnv string) *slog.Logger {
	return newLogger(os.Stdout, appEnv)
}

func newLogger(w io.Writer, appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: redact})
	return slog.New(h).With("service", serviceName, "env", appEnv)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
// Detached contexts (context.WithoutCancel) keep their logger.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ShutdownFlush exists so main can flush a buffered handler if one is ever configured.
// The JSON handler writes synchronously.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
