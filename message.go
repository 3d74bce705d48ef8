package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbaliyan/message/store"
	"go.opentelemetry.io/otel/attribute"
)

// autoReplyMarker is stored in a record's params to mark it as generated
// by the out-of-office responder. Marked records never trigger another
// auto-reply.
const autoReplyMarker = "message:auto-reply"

// isAutoReply reports whether params carries the auto-reply marker.
func isAutoReply(params string) bool {
	return strings.Contains(params, autoReplyMarker)
}

// Message is a handle on a stored record, bound to the viewing user.
// Accessors read the snapshot loaded at retrieval time; mutating methods
// go through the store and refresh the snapshot on success.
type Message struct {
	record   *store.Record
	client   *userClient
	sequence int64
}

func newMessage(rec *store.Record, c *userClient) Message {
	return Message{record: rec, client: c}
}

// ID returns the store-assigned numeric identifier.
func (m Message) ID() int64 { return m.record.ID }

// Hash returns the public lookup token.
func (m Message) Hash() string { return m.record.Hash }

// From returns the sender's user ID.
func (m Message) From() string { return m.record.From }

// To returns the recipient's user ID.
func (m Message) To() string { return m.record.To }

// Title returns the subject line.
func (m Message) Title() string { return m.record.Title }

// Body returns the message text.
func (m Message) Body() string { return m.record.Body }

// Context returns the free-form origin reference.
func (m Message) Context() string { return m.record.Context }

// Params returns the serialized auxiliary payload.
func (m Message) Params() string { return m.record.Params }

// Status returns the lifecycle state.
func (m Message) Status() store.Status { return m.record.Status }

// DocumentID returns the attached document reference, if any.
func (m Message) DocumentID() string { return m.record.DocumentID }

// SignatureImageID returns the attached signature image reference.
func (m Message) SignatureImageID() string { return m.record.SignatureImageID }

// CreatedAt returns the creation time.
func (m Message) CreatedAt() time.Time { return m.record.CreatedAt }

// ExpiresAt returns the expiry time, or nil.
func (m Message) ExpiresAt() *time.Time { return m.record.ExpiresAt }

// AckAt returns the time the message was first read, or nil.
func (m Message) AckAt() *time.Time { return m.record.AckAt }

// Deleted reports whether the message is soft-deleted.
func (m Message) Deleted() bool { return m.record.Deleted() }

// AutoReply reports whether the message was generated by the
// out-of-office responder.
func (m Message) AutoReply() bool { return isAutoReply(m.record.Params) }

// Sequence returns the duplicate-title position: how many records share
// this title with an ID at or above this one. Zero when the title is
// unique in the listing, and always zero for non-elevated viewers.
func (m Message) Sequence() int64 { return m.sequence }

// Record returns a copy of the underlying record.
func (m Message) Record() *store.Record { return m.record.Clone() }

// MarkRead transitions the message from unread to read and stamps the
// acknowledgement time. Only the recipient may mark a message read.
// Marking an already-read message is a no-op.
func (m Message) MarkRead(ctx context.Context) error {
	return m.transition(ctx, "mark read", func() error {
		if m.record.To != m.client.userID {
			return ErrUnauthorized
		}
		if m.record.Status == store.StatusRead || m.record.Status == store.StatusAnswered {
			return nil
		}
		if err := m.updateStatus(ctx, store.StatusUnread, store.StatusRead); err != nil {
			return err
		}

		if err := m.client.service.events.MessageRead.Publish(ctx, MessageReadEvent{
			MessageID: m.record.ID,
			UserID:    m.client.userID,
			ReadAt:    time.Now().UTC(),
		}); err != nil {
			if m.client.service.opts.eventErrorsFatal {
				return &EventPublishError{
					Event:     EventNameMessageRead,
					MessageID: m.record.ID,
					Err:       err,
				}
			}
			m.client.service.opts.safeEventPublishFailure(EventNameMessageRead, err)
		}
		return nil
	})
}

// MarkAnswered transitions the message from read to answered. Only the
// recipient may mark a message answered.
func (m Message) MarkAnswered(ctx context.Context) error {
	return m.transition(ctx, "mark answered", func() error {
		if m.record.To != m.client.userID {
			return ErrUnauthorized
		}
		if m.record.Status == store.StatusAnswered {
			return nil
		}
		return m.updateStatus(ctx, store.StatusRead, store.StatusAnswered)
	})
}

// Delete soft-deletes the message. The row is retained and stays visible
// in the sender's sent listing. Either party may delete; deleting an
// already-deleted message is a no-op.
func (m Message) Delete(ctx context.Context) error {
	return m.transition(ctx, "delete", func() error {
		if m.record.From != m.client.userID && m.record.To != m.client.userID {
			return ErrUnauthorized
		}
		if m.record.Deleted() {
			return nil
		}

		err := m.updateStatus(ctx, m.record.Status, store.StatusDeleted)
		if errors.Is(err, ErrStatusConflict) {
			// Lost a race. If the other side deleted first that is fine.
			cur, getErr := m.client.service.store.Get(ctx, m.record.ID)
			if getErr == nil && cur.Deleted() {
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		if err := m.client.service.events.MessageDeleted.Publish(ctx, MessageDeletedEvent{
			MessageID: m.record.ID,
			UserID:    m.client.userID,
			DeletedAt: time.Now().UTC(),
		}); err != nil {
			if m.client.service.opts.eventErrorsFatal {
				return &EventPublishError{
					Event:     EventNameMessageDeleted,
					MessageID: m.record.ID,
					Err:       err,
				}
			}
			m.client.service.opts.safeEventPublishFailure(EventNameMessageDeleted, err)
		}
		return nil
	})
}

// transition wraps a status change with access checks and telemetry.
func (m Message) transition(ctx context.Context, op string, fn func() error) error {
	if m.record == nil || m.client == nil {
		return ErrNotFound
	}
	if err := m.client.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.client.service.otel.startSpan(ctx, "message.transition",
		attribute.String("user_id", m.client.userID),
		attribute.String("operation", op),
	)
	start := time.Now()
	err := fn()
	endSpan(err)
	m.client.service.otel.recordTransition(ctx, time.Since(start), op, err)
	return err
}

// updateStatus runs the compare-and-set and refreshes the local
// snapshot on success.
func (m Message) updateStatus(ctx context.Context, from, to store.Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusConflict, from, to)
	}
	if err := m.client.service.store.UpdateStatus(ctx, m.record.ID, from, to); err != nil {
		switch {
		case store.IsNotFound(err):
			return ErrNotFound
		case store.IsStatusConflict(err):
			return fmt.Errorf("%w: %s -> %s", ErrStatusConflict, from, to)
		}
		return wrapDep("update status", err)
	}

	m.record.Status = to
	if to == store.StatusRead && m.record.AckAt == nil {
		now := time.Now().UTC()
		m.record.AckAt = &now
	}
	return nil
}

// OperationResult is the outcome of one item in a bulk operation.
type OperationResult struct {
	ID      int64
	Success bool
	Error   error
}

// BulkResult aggregates per-item outcomes of a bulk operation.
type BulkResult struct {
	Results []OperationResult
}

// Succeeded returns the number of successful items.
func (r *BulkResult) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failed returns the number of failed items.
func (r *BulkResult) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Err returns an error summarizing the failures, or nil if every item
// succeeded.
func (r *BulkResult) Err() error {
	failed := r.Failed()
	if failed == 0 {
		return nil
	}
	var first error
	for _, res := range r.Results {
		if res.Error != nil {
			first = res.Error
			break
		}
	}
	return fmt.Errorf("message: %d of %d operations failed: %w", failed, len(r.Results), first)
}

// MessageList is a page of messages with pagination state and bulk
// operations.
type MessageList struct {
	messages   []Message
	total      int64
	hasMore    bool
	nextCursor int64
}

func wrapRecordList(list *store.RecordList, total int64, c *userClient) *MessageList {
	msgs := make([]Message, len(list.Records))
	for i, rec := range list.Records {
		msgs[i] = newMessage(rec, c)
	}
	return &MessageList{
		messages:   msgs,
		total:      total,
		hasMore:    list.HasMore,
		nextCursor: list.NextCursor,
	}
}

// All returns the messages in this page.
func (l *MessageList) All() []Message { return l.messages }

// Total returns the total count of messages matching the query, not just
// this page.
func (l *MessageList) Total() int64 { return l.total }

// HasMore reports whether more messages follow this page.
func (l *MessageList) HasMore() bool { return l.hasMore }

// NextCursor returns the keyset cursor for the next page. Pass it as
// ListOptions.StartAfter. Cursors exist only for pages in ascending ID
// order; any other sort reports zero, and callers page those with
// Offset instead.
func (l *MessageList) NextCursor() int64 { return l.nextCursor }

// Hashes returns the public hashes of the messages in this page.
func (l *MessageList) Hashes() []string {
	hashes := make([]string, len(l.messages))
	for i, m := range l.messages {
		hashes[i] = m.Hash()
	}
	return hashes
}

// MarkAllRead marks every message in this page as read. Messages that
// are not addressed to the viewer or not unread are reported in the
// result, not skipped silently.
func (l *MessageList) MarkAllRead(ctx context.Context) (*BulkResult, error) {
	result := &BulkResult{Results: make([]OperationResult, 0, len(l.messages))}
	for _, m := range l.messages {
		res := OperationResult{ID: m.ID()}
		if err := m.MarkRead(ctx); err != nil {
			res.Error = err
		} else {
			res.Success = true
		}
		result.Results = append(result.Results, res)
	}
	return result, result.Err()
}

// DeleteAll soft-deletes every message in this page.
func (l *MessageList) DeleteAll(ctx context.Context) (*BulkResult, error) {
	result := &BulkResult{Results: make([]OperationResult, 0, len(l.messages))}
	for _, m := range l.messages {
		res := OperationResult{ID: m.ID()}
		if err := m.Delete(ctx); err != nil {
			res.Error = err
		} else {
			res.Success = true
		}
		result.Results = append(result.Results, res)
	}
	return result, result.Err()
}
