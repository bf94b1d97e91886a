package deferred

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotifierClosed is returned by notifiers that no longer accept messages.
var ErrNotifierClosed = errors.New("notifier closed")

// Notification tells a user where to resume an authorization.
type Notification struct {
	JobID     string
	UserID    string
	URL       string
	ExpiresAt time.Time
}

// Notifier delivers resume links to users.
type Notifier interface {
	Notify(ctx context.Context, notification *Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notification *Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, notification *Notification) error {
	return f(ctx, notification)
}

// LogNotifier writes resume links to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, notification *Notification) error {
	n.logger.InfoContext(ctx, "authorization required, visit link to continue",
		"job_id", notification.JobID,
		"user_id", notification.UserID,
		"url", notification.URL,
		"expires_at", notification.ExpiresAt)
	return nil
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mux           sync.Mutex
	closed        bool
	notifications []*Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(ctx context.Context, notification *Notification) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.closed {
		return ErrNotifierClosed
	}
	r.notifications = append(r.notifications, notification)
	return nil
}

// Close makes subsequent Notify calls fail.
func (r *Recorder) Close() {
	r.mux.Lock()
	r.closed = true
	r.mux.Unlock()
}

// Notifications returns recorded notifications.
func (r *Recorder) Notifications() []*Notification {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]*Notification(nil), r.notifications...)
}
