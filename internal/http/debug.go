package http

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"scoreload/internal/core"
)

const maxBodyLogSize = 1024

// DebugLogger writes one debug entry per request and response. A nil
// *DebugLogger is valid and logs nothing.
type DebugLogger struct {
	log *zap.Logger
}

// NewDebugLogger returns nil when log is nil or debug level is disabled,
// so callers pay nothing outside verbose mode.
func NewDebugLogger(log *zap.Logger) *DebugLogger {
	if log == nil || !log.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &DebugLogger{log: log.Named("http")}
}

func (d *DebugLogger) LogRequest(kind core.ActionKind, req *http.Request, body []byte) {
	if d == nil {
		return
	}
	fields := []zap.Field{
		zap.Stringer("action", kind),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	}
	if len(body) > 0 {
		fields = append(fields, zap.String("body", truncateBody(body)))
	}
	d.log.Debug(">>> request", fields...)
}

func (d *DebugLogger) LogResponse(kind core.ActionKind, resp *http.Response, body []byte, duration time.Duration) {
	if d == nil {
		return
	}
	fields := []zap.Field{
		zap.Stringer("action", kind),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", duration.Round(time.Millisecond)),
	}
	if len(body) > 0 {
		fields = append(fields, zap.String("body", truncateBody(body)))
	}
	d.log.Debug("<<< response", fields...)
}

func (d *DebugLogger) LogError(kind core.ActionKind, errMsg string, duration time.Duration) {
	if d == nil {
		return
	}
	d.log.Debug("!!! error",
		zap.Stringer("action", kind),
		zap.String("error", errMsg),
		zap.Duration("latency", duration.Round(time.Millisecond)),
	)
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
