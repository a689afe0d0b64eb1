package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestLogger tags every request with an id and logs its outcome once
// the handler returns. Streaming endpoints log when the stream ends, so
// their open is logged at debug as well.
func requestLogger(logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		id := ctx.Header(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.SetHeader(requestIDHeader, id)

		method := ctx.Method()
		path := ctx.URL().Path
		attrs := []slog.Attr{
			slog.String("request_id", id),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("remote_addr", ctx.RemoteAddr()),
		}
		if q := ctx.URL().RawQuery; q != "" && !strings.Contains(q, "auth=") {
			attrs = append(attrs, slog.String("query", q))
		}

		stream := strings.HasPrefix(ctx.Header("Accept"), "text/event-stream")
		if stream {
			logger.LogAttrs(ctx.Context(), slog.LevelDebug, "Event stream opened", attrs...)
		}

		start := time.Now()
		next(ctx)
		status := ctx.Status()
		attrs = append(attrs, slog.Int("status", status), slog.Duration("duration", time.Since(start)))

		logger.LogAttrs(ctx.Context(), requestLevel(method, status), "HTTP request completed", attrs...)
	}
}

func requestLevel(method string, status int) slog.Level {
	switch {
	case method == http.MethodOptions:
		return slog.LevelDebug
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
