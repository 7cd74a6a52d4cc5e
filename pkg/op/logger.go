package op

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"
)

func newLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slog.New(&logHandler{
		handler: logger.Handler(),
	})
}

type LogKey int

const (
	RequestID LogKey = iota
	TenantID

	maxLogKey
)

type loggerKey struct{}

// ContextWithTenant stores the tenant for log records of the request.
func ContextWithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantID, tenant)
}

func contextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

type logHandler struct {
	handler slog.Handler
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

type logAttributes []any

func (attrs *logAttributes) appendFromContext(ctx context.Context, ctxKey any, logKey string) {
	v := ctx.Value(ctxKey)
	if v == nil {
		return
	}
	*attrs = append(*attrs, slog.Any(logKey, v))
}

func (h *logHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make(logAttributes, 0, maxLogKey)
	attrs.appendFromContext(ctx, RequestID, "id")
	attrs.appendFromContext(ctx, TenantID, "tenant")
	if len(attrs) == 0 {
		return h.handler.Handle(ctx, record)
	}
	return h.handler.WithAttrs([]slog.Attr{slog.Group("request", attrs...)}).Handle(ctx, record)
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logHandler{
		handler: h.handler.WithAttrs(attrs),
	}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{
		handler: h.handler.WithGroup(name),
	}
}

// LogMiddleware assigns a request id, makes the logger available to the
// pipeline and logs every request once it is done.
func (o *Provider) LogMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := context.WithValue(r.Context(), RequestID, xid.New())
			r = r.WithContext(contextWithLogger(ctx, o.logger))
			lw := &loggedWriter{
				ResponseWriter: w,
			}
			next.ServeHTTP(lw, r)
			logger := o.logger.With(
				slog.Group("http", "method", r.Method, "url", r.URL),
				slog.Group("response", "duration", time.Since(start), "status", lw.statusCode, "written", lw.written),
			)
			if lw.err != nil {
				logger.ErrorContext(r.Context(), "response writer", "error", lw.err)
				return
			}
			logger.InfoContext(r.Context(), "done")
		})
	}
}

type loggedWriter struct {
	http.ResponseWriter

	statusCode int
	written    int
	err        error
}

func (w *loggedWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *loggedWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	w.err = err
	return n, err
}
