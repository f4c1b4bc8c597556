package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the acting
// user, if known.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	fieldAttrs := make([]any, 0, len(fields))
	for k, v := range fields {
		fieldAttrs = append(fieldAttrs, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", fieldAttrs...))

	obs.Logger().LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}

// Appender persists audit entries.
type Appender interface {
	AppendAudit(ctx context.Context, entry auth.AuditEntry) error
}

// Record logs the entry and persists it through sink. The request id and the
// acting user are taken from ctx when the entry leaves them empty.
func Record(ctx context.Context, sink Appender, entry auth.AuditEntry) error {
	if entry.RequestID == "" {
		entry.RequestID = RequestIDFromContext(ctx)
	}
	if entry.ActorID == "" {
		if userID, ok := auth.UserIDFromContext(ctx); ok {
			entry.ActorID = userID
		}
	}
	fields := make(map[string]any, len(entry.Fields)+2)
	if entry.ResourceType != "" {
		fields["resource_type"] = entry.ResourceType
	}
	if entry.ResourceID != "" {
		fields["resource_id"] = entry.ResourceID
	}
	for k, v := range entry.Fields {
		fields[k] = v
	}
	if err := LogEvent(ctx, entry.Event, fields); err != nil {
		return err
	}
	if sink == nil {
		return nil
	}
	if err := sink.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("persist audit %s: %w", entry.Event, err)
	}
	return nil
}
