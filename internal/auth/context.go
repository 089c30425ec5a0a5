package auth

import "context"

type contextKey string

const (
	contextKeySubject contextKey = "auth.subject"
	contextKeySession contextKey = "auth.session_id"
)

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, subject, sessionID string) context.Context {
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	ctx = context.WithValue(ctx, contextKeySession, sessionID)
	return ctx
}

// SubjectFromContext extracts the subject from context.
func SubjectFromContext(ctx context.Context) string {
	return stringValue(ctx, contextKeySubject)
}

// SessionFromContext extracts the session id from context.
func SessionFromContext(ctx context.Context) string {
	return stringValue(ctx, contextKeySession)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
