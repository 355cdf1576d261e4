package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"companion-billing/internal/config"
)

const serviceName = "companion-billing"

// New builds the process logger. Unknown levels fall back to info. Dev mode
// forces console output and disables sampling.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return newWithWriter(cfg, dev, os.Stdout)
}

func newWithWriter(cfg config.LogConfig, dev bool, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
	if cfg.Sampling && !dev {
		// 1 in 100 below warn; warnings and errors are never dropped.
		logger = logger.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BasicSampler{N: 100},
			DebugSampler: &zerolog.BasicSampler{N: 100},
			InfoSampler:  &zerolog.BasicSampler{N: 100},
		})
	}
	return &logger
}

type ctxKey int

const (
	keyTraceID ctxKey = iota
	keyUserID
	keyEventID
)

var ctxFields = []struct {
	key  ctxKey
	name string
}{
	{keyTraceID, "trace_id"},
	{keyUserID, "user_id"},
	{keyEventID, "event_id"},
}

// With returns base enriched with whichever request fields ctx carries.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	lc := base.With()
	for _, f := range ctxFields {
		if v := value(ctx, f.key); v != "" {
			lc = lc.Str(f.name, v)
		}
	}
	l := lc.Logger()
	return &l
}

// TraceDuration logs entry and exit of name at trace level.
//
//	defer logging.TraceDuration(logger, "ReconcileUseCase.Handle")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyTraceID, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyEventID, id)
}

// UserID is the authenticated user stored by the auth middleware.
func UserID(ctx context.Context) string { return value(ctx, keyUserID) }

// Redact keeps a short prefix of a credential so it can be told apart in
// logs without being usable.
func Redact(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}
