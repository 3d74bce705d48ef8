package message

import (
	"context"
	"time"

	"github.com/rbaliyan/message/resolver"
	"github.com/rbaliyan/message/retry"
	"github.com/rbaliyan/message/store"
)

// Notification describes a message delivery to notify a recipient
// about. It identifies the message by its stable numeric ID and public
// hash; consumers that need more than the summary fields load the
// record themselves.
type Notification struct {
	MessageID      int64
	MessageHash    string
	From           string
	To             string
	RecipientEmail string
	Title          string
	Body           string
}

// Notifier delivers notifications, typically by email. Implementations
// must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// dispatchNotification notifies the recipient about a delivered record.
// It never fails the send: every error path is logged and reported
// through the publish-failure handler.
//
// In queued mode delivery is left to MessageComposed subscribers; the
// event published at the end of the compose pipeline carries the
// message ID and consumers load the record at delivery time. Hooks
// still run so a BeforeNotify veto works in both modes.
func (s *service) dispatchNotification(ctx context.Context, rec *store.Record, recipient *resolver.User) {
	if s.opts.notifier == nil && !s.opts.queueNotifications {
		return
	}
	if recipient == nil {
		return
	}

	if s.opts.notificationPolicy != nil && !s.opts.notificationPolicy(ctx, rec.To) {
		s.logger.Debug("notification suppressed by policy", "message_id", rec.ID, "to", rec.To)
		return
	}
	if !s.opts.queueNotifications && recipient.Email == "" {
		s.logger.Debug("recipient has no notification address", "message_id", rec.ID, "to", rec.To)
		return
	}

	n := Notification{
		MessageID:      rec.ID,
		MessageHash:    rec.Hash,
		From:           rec.From,
		To:             rec.To,
		RecipientEmail: recipient.Email,
		Title:          rec.Title,
		Body:           rec.Body,
	}

	ctx, endSpan := s.otel.startSpan(ctx, "message.notify")
	start := time.Now()
	var notifyErr error
	defer func() {
		endSpan(notifyErr)
		s.otel.recordNotify(ctx, time.Since(start), s.opts.queueNotifications, notifyErr)
	}()

	if err := s.plugins.beforeNotify(ctx, &n); err != nil {
		s.logger.Info("notification vetoed", "message_id", rec.ID, "error", err)
		return
	}

	if s.opts.queueNotifications {
		s.plugins.afterNotify(ctx, &n, nil)
		return
	}

	notifyErr = retry.Do(ctx, s.opts.notifyRetry, func(ctx context.Context) error {
		return s.opts.notifier.Notify(ctx, n)
	})
	s.plugins.afterNotify(ctx, &n, notifyErr)

	if notifyErr != nil {
		s.logger.Warn("notification delivery failed",
			"message_id", rec.ID, "to", rec.To, "error", notifyErr)
		s.opts.safeEventPublishFailure("notify", notifyErr)
	}
}
