package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/message/resolver"
	"github.com/rbaliyan/message/store"
	"go.opentelemetry.io/otel/attribute"
)

// ComposeRequest is the low-level input to the compose pipeline.
// BeforeCompose plugin hooks receive it after validation and may mutate
// it, e.g. to rewrite the body.
type ComposeRequest struct {
	// To is the recipient user ID. Not required for authoring statuses.
	To string

	// Title is the subject line. Required.
	Title string

	// Body is the message text.
	Body string

	// Context is a free-form origin reference.
	Context string

	// Params carries serialized auxiliary data.
	Params string

	// Status is the creation status. Zero composes a normal unread
	// message; authoring statuses create drafts, templates, signatures
	// and out-of-office replies.
	Status store.Status

	// DocumentID references an uploaded document (.pdf).
	DocumentID string

	// SignatureImageID references an uploaded signature image
	// (.png/.jpg/.jpeg/.webp).
	SignatureImageID string

	// ExpiresAt, when set, schedules the record for soft deletion by
	// maintenance sweeps.
	ExpiresAt *time.Time

	// autoReply marks requests generated by the out-of-office responder.
	autoReply bool

	// inReplyTo is the record that triggered an auto-reply.
	inReplyTo *store.Record
}

// send runs the compose pipeline: validate, resolve, authorize, persist,
// then the post-delivery steps (mutual allow, notification, auto-reply,
// event). Post-delivery failures never undo the persisted record.
func (c *userClient) send(ctx context.Context, req *ComposeRequest) (Message, error) {
	if err := c.checkAccess(); err != nil {
		return Message{}, err
	}

	s := c.service

	// Validate before acquiring the semaphore so rejected requests do
	// not occupy a slot.
	if err := validateComposeRequest(req, s.opts); err != nil {
		return Message{}, err
	}

	ctx, endSpan := s.otel.startSpan(ctx, "message.compose",
		attribute.String("user_id", c.userID),
		attribute.String("status", req.Status.String()),
		attribute.Bool("auto_reply", req.autoReply),
	)
	start := time.Now()
	var composeErr error
	defer func() {
		endSpan(composeErr)
		s.otel.recordCompose(ctx, time.Since(start), req.Status.String(), req.autoReply, composeErr)
	}()

	// Auto-reply loop guard. The responder never answers a marked
	// record, so reaching this point with one means the guard upstream
	// was bypassed. Refuse rather than risk a reply storm.
	if req.autoReply && req.inReplyTo != nil && isAutoReply(req.inReplyTo.Params) {
		composeErr = ErrAutoReplyLoop
		return Message{}, composeErr
	}

	// Templates name a recipient but are never delivered, so the
	// delivery gate keys off Special rather than RequiresRecipient.
	deliverable := !req.Status.Special()
	selfSend := deliverable && req.To == c.userID

	// Resolve the recipient.
	var recipient *resolver.User
	if deliverable {
		u, err := s.directory.Resolve(ctx, req.To)
		if err != nil {
			if errors.Is(err, resolver.ErrUnknownUser) {
				composeErr = fmt.Errorf("%w: %s", ErrUnknownRecipient, req.To)
			} else {
				composeErr = wrapDep("resolve recipient", err)
			}
			return Message{}, composeErr
		}
		recipient = u
	}

	// Authorization gate. Self-sends and authoring statuses skip it.
	if deliverable && !selfSend {
		if err := s.canSend(ctx, c.userID, req.To); err != nil {
			composeErr = err
			return Message{}, composeErr
		}
	}

	if err := s.composeSem.Acquire(ctx, 1); err != nil {
		composeErr = err
		return Message{}, composeErr
	}
	defer s.composeSem.Release(1)

	if err := s.plugins.beforeCompose(ctx, req); err != nil {
		composeErr = err
		return Message{}, composeErr
	}

	body := req.Body
	if s.opts.appendSignature && deliverable && !req.autoReply {
		body = c.withSignature(ctx, body)
	}

	rec, err := s.store.Create(ctx, store.Record{
		Hash:             uuid.NewString(),
		From:             c.userID,
		To:               req.To,
		Title:            req.Title,
		Body:             body,
		Context:          req.Context,
		Params:           req.Params,
		Status:           req.Status,
		DocumentID:       req.DocumentID,
		SignatureImageID: req.SignatureImageID,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		composeErr = wrapDep("create record", err)
		return Message{}, composeErr
	}

	msg := newMessage(rec, c)

	// Post-delivery steps. The record is persisted; from here on,
	// failures are reported but never fail the send.
	if deliverable && !selfSend {
		s.recordMutualAllow(ctx, c.userID, req.To)
	}

	if deliverable {
		s.dispatchNotification(ctx, rec, recipient)
	}

	if deliverable && !req.autoReply {
		s.maybeAutoReply(ctx, rec)
	}

	if err := s.plugins.afterCompose(ctx, msg); err != nil {
		composeErr = err
		return msg, composeErr
	}

	// Publish last so subscribers observe the fully delivered message.
	// The event carries the numeric ID, never the record: consumers load
	// it at delivery time.
	if err := s.events.MessageComposed.Publish(ctx, MessageComposedEvent{
		MessageID: rec.ID,
		Hash:      rec.Hash,
		From:      rec.From,
		To:        rec.To,
		Title:     rec.Title,
		Status:    int(rec.Status),
		AutoReply: req.autoReply,
		SentAt:    rec.CreatedAt,
	}); err != nil {
		if s.opts.eventErrorsFatal {
			composeErr = &EventPublishError{
				Event:     EventNameMessageComposed,
				MessageID: rec.ID,
				Err:       err,
			}
			return msg, composeErr
		}
		s.opts.safeEventPublishFailure(EventNameMessageComposed, err)
	}

	return msg, nil
}

// withSignature appends the sender's stored signature body, when one
// exists.
func (c *userClient) withSignature(ctx context.Context, body string) string {
	sig, err := c.newestOwn(ctx, store.StatusIs(store.StatusSignature))
	if err != nil {
		if !IsNotFoundFailure(err) {
			c.service.logger.Warn("load signature failed", "user_id", c.userID, "error", err)
		}
		return body
	}
	if sig.Body() == "" {
		return body
	}
	if body == "" {
		return sig.Body()
	}
	return body + "\n\n" + sig.Body()
}

// canSend enforces the recipient's block list, and in strict mode the
// allow list too. Asked from the recipient's side: has to blocked from?
func (s *service) canSend(ctx context.Context, from, to string) error {
	blocked, err := s.store.IsBlocked(ctx, to, from)
	if err != nil {
		return wrapDep("check block list", err)
	}
	if blocked {
		return ErrRecipientBlocked
	}

	if s.opts.strictAllow {
		allowed, err := s.store.HasAllow(ctx, to, from)
		if err != nil {
			return wrapDep("check allow list", err)
		}
		if !allowed {
			return ErrNotAllowed
		}
	}

	return nil
}

// recordMutualAllow upserts the allow edges in both directions after a
// delivered send. The message is already persisted, so a failure here is
// logged and the edges converge on a later send.
func (s *service) recordMutualAllow(ctx context.Context, a, b string) {
	if err := s.store.UpsertAllow(ctx, a, b); err != nil {
		s.logger.Warn("record allow edge failed", "owner", a, "contact", b, "error", err)
	}
	if err := s.store.UpsertAllow(ctx, b, a); err != nil {
		s.logger.Warn("record allow edge failed", "owner", b, "contact", a, "error", err)
	}
}
