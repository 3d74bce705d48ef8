package message

import (
	"context"
	"time"

	"github.com/rbaliyan/message/store"
)

// maybeAutoReply answers an inbound message on behalf of a recipient
// with an active out-of-office record. It runs after the inbound record
// is persisted and never fails the original send.
//
// Two guards keep the responder from feeding itself: a marked record is
// never answered (the marker travels in params through the reply's own
// compose), and self-sends are never answered. The reply goes through
// the full pipeline, so the recipient's block list still applies to it.
func (s *service) maybeAutoReply(ctx context.Context, inbound *store.Record) {
	if inbound.Status.Special() {
		return
	}
	if inbound.From == inbound.To {
		s.otel.recordAutoReply(ctx, "self")
		return
	}
	if isAutoReply(inbound.Params) {
		s.otel.recordAutoReply(ctx, "marked")
		return
	}

	ooo, err := s.store.Find(ctx,
		[]store.Filter{
			store.FromIs(inbound.To),
			store.StatusIs(store.StatusOutOfOfficeActive),
		},
		store.ListOptions{Limit: 1, SortBy: store.FieldID, SortOrder: store.SortDesc},
	)
	if err != nil {
		s.logger.Warn("out-of-office lookup failed",
			"user_id", inbound.To, "message_id", inbound.ID, "error", err)
		return
	}
	if len(ooo.Records) == 0 {
		return
	}
	tpl := ooo.Records[0]

	responder, ok := s.Client(inbound.To).(*userClient)
	if !ok {
		return
	}
	reply, err := responder.send(ctx, &ComposeRequest{
		To:        inbound.From,
		Title:     tpl.Title,
		Body:      tpl.Body,
		Params:    autoReplyMarker,
		Status:    store.StatusUnread,
		autoReply: true,
		inReplyTo: inbound,
	})
	if err != nil {
		s.logger.Warn("out-of-office reply failed",
			"from", inbound.To, "to", inbound.From,
			"in_reply_to", inbound.ID, "error", err)
		return
	}

	s.otel.recordAutoReply(ctx, "")
	s.logger.Debug("out-of-office reply sent",
		"message_id", reply.ID(), "in_reply_to", inbound.ID)

	if err := s.events.OutOfOfficeReplied.Publish(ctx, OutOfOfficeRepliedEvent{
		MessageID: reply.ID(),
		InReplyTo: inbound.ID,
		From:      inbound.To,
		To:        inbound.From,
		RepliedAt: time.Now().UTC(),
	}); err != nil {
		s.opts.safeEventPublishFailure(EventNameOutOfOfficeReplied, err)
	}
}
