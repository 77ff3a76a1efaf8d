// Package context holds the timeouts shared by bootstrap, health checks and
// background work.
package context

import (
	"context"
	"time"
)

const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultPingTimeout     = 2 * time.Second
)

// WithPingTimeout bounds a health or startup ping.
func WithPingTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultPingTimeout)
}

// WithShutdownTimeout gives in-flight work a fixed window after a signal. It
// deliberately starts from Background because parent is usually cancelled.
func WithShutdownTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultShutdownTimeout)
}

// Detached keeps parent's values but drops its cancellation, for best-effort
// work that must outlive a request.
func Detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
