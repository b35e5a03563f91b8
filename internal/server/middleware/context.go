package middleware

import "context"

type contextKey struct{ name string }

var (
	adminSubjectKey = contextKey{"admin_subject"}
	requestIDKey    = contextKey{"request_id"}
)

// WithAdmin returns a context carrying the authenticated admin subject.
func WithAdmin(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminSubjectKey, subject)
}

// GetAdmin returns the admin subject from context and true if set; otherwise "", false.
func GetAdmin(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(adminSubjectKey).(string)
	return v, ok
}

// WithRequestID returns a context carrying the request id assigned by RequestLogger.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id from context and true if set; otherwise "", false.
func GetRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok
}
