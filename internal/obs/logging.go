// Package obs carries the engine's ambient observability stack: a
// process-wide structured logger, correlation-id propagation via context,
// and OpenTelemetry metrics. Grounded on the teacher's internal/logging
// (logrus JSON logger with a caller hook) and internal/rag/obs (per-request
// metrics adapter).
package obs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Every component should prefer Logger(ctx)
// over this directly so correlation ids are attached automatically.
var Log = logrus.New()

type contextHook struct{}

func (contextHook) Levels() []logrus.Level { return logrus.AllLevels }

func packageFromFunc(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		return fn[:i]
	}
	return fn
}

func (contextHook) Fire(e *logrus.Entry) error {
	if e.Caller == nil {
		return nil
	}
	e.Data["package"] = packageFromFunc(e.Caller.Function)
	e.Data["file"] = fmt.Sprintf("%s:%d", filepath.Base(e.Caller.File), e.Caller.Line)
	return nil
}

func init() {
	Log.SetReportCaller(true)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return filepath.Base(f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		},
	})
	Log.AddHook(contextHook{})
	Log.SetOutput(os.Stdout)

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := logrus.ParseLevel(levelStr); err == nil {
		Log.SetLevel(lvl)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}

type correlationIDKey struct{}

// WithCorrelationID attaches a correlation id to ctx for propagation to every
// log line and downstream call made during this request or task.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the correlation id attached to ctx, or "" if absent.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Logger returns a logrus entry pre-populated with the request's correlation
// id, ready for .Info()/.Error()/.Debug() calls.
func Logger(ctx context.Context) *logrus.Entry {
	if id := CorrelationID(ctx); id != "" {
		return Log.WithField("correlation_id", id)
	}
	return logrus.NewEntry(Log)
}
