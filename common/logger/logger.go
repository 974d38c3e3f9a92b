package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/basegraphhq/researchd/core/config"
	"go.opentelemetry.io/otel/trace"
)

// Setup installs the process-wide slog default handler. Production writes
// structured JSON to stdout; development writes human-readable text to both
// stdout and a dated log file. Either way every record is decorated with the
// OTel trace/span IDs (if a span is active on the context) and the
// query/agent fields threaded through context via WithLogFields.
func Setup(cfg config.Config) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = NewTraceHandler(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		handler = NewTraceHandler(slog.NewTextHandler(createDevWriter(), opts))
	}

	slog.SetDefault(slog.New(handler))
}

func createDevWriter() io.Writer {
	logsDir := "logs"
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create logs directory: %v\n", err)
		return os.Stdout
	}

	timestamp := time.Now().Format("2006-01-02")
	logFileName := filepath.Join(logsDir, fmt.Sprintf("researchd-%s.log", timestamp))

	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open log file: %v\n", err)
		return os.Stdout
	}

	return io.MultiWriter(os.Stdout, logFile)
}

// TraceHandler decorates every record with the active span's trace/span IDs
// and with the structured fields carried on the context (query ID, agent
// role, phase, worker role). This is how a single `research()` call's logs
// can be correlated across the planner, every worker, and the supervisor
// without threading a logger value through every function signature.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	fields := GetLogFields(ctx)
	if fields.QueryID != "" {
		r.AddAttrs(slog.String("query_id", fields.QueryID))
	}
	if fields.AgentRole != "" {
		r.AddAttrs(slog.String("agent_role", fields.AgentRole))
	}
	if fields.Phase != "" {
		r.AddAttrs(slog.String("phase", fields.Phase))
	}
	if fields.WorkerRole != "" {
		r.AddAttrs(slog.String("worker_role", fields.WorkerRole))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
