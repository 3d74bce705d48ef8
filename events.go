package message

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for message lifecycle events.
const (
	EventNameMessageComposed    = "message.composed"
	EventNameMessageRead        = "message.read"
	EventNameMessageDeleted     = "message.deleted"
	EventNameOutOfOfficeReplied = "message.out_of_office.replied"
)

// MessageComposedEvent is published after a message is persisted. It
// carries the stable numeric ID, never the record itself: queued
// notification consumers load the record at delivery time so they see
// its current state, not a stale snapshot.
type MessageComposedEvent struct {
	MessageID int64     `json:"message_id"`
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	AutoReply bool      `json:"auto_reply"`
	SentAt    time.Time `json:"sent_at"`
}

// MessageReadEvent is published when a recipient marks a message read.
type MessageReadEvent struct {
	MessageID int64     `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessageDeletedEvent is published when a message is soft-deleted.
// The record itself is retained.
type MessageDeletedEvent struct {
	MessageID int64     `json:"message_id"`
	UserID    string    `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// OutOfOfficeRepliedEvent is published when the auto-responder answers
// an inbound message.
type OutOfOfficeRepliedEvent struct {
	// MessageID is the auto-reply record.
	MessageID int64 `json:"message_id"`
	// InReplyTo is the inbound record that triggered the reply.
	InReplyTo int64     `json:"in_reply_to"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	RepliedAt time.Time `json:"replied_at"`
}

// ServiceEvents provides per-service event instances. Each service
// binds its events to its own bus, enabling independent routing and
// parallel testing.
//
// Subscribe to events:
//
//	svc.Events().MessageComposed.Subscribe(ctx, handler)
//	svc.Events().MessageRead.Subscribe(ctx, handler)
type ServiceEvents struct {
	// MessageComposed is published after a message is persisted.
	MessageComposed event.Event[MessageComposedEvent]

	// MessageRead is published when a message is marked read.
	MessageRead event.Event[MessageReadEvent]

	// MessageDeleted is published when a message is soft-deleted.
	MessageDeleted event.Event[MessageDeletedEvent]

	// OutOfOfficeReplied is published when the auto-responder fires.
	OutOfOfficeReplied event.Event[OutOfOfficeRepliedEvent]
}

// newServiceEvents creates per-service event instances with a unique
// name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		MessageComposed:    event.New[MessageComposedEvent](namePrefix + "." + EventNameMessageComposed),
		MessageRead:        event.New[MessageReadEvent](namePrefix + "." + EventNameMessageRead),
		MessageDeleted:     event.New[MessageDeletedEvent](namePrefix + "." + EventNameMessageDeleted),
		OutOfOfficeReplied: event.New[OutOfOfficeRepliedEvent](namePrefix + "." + EventNameOutOfOfficeReplied),
	}
}

// registerServiceEvents registers per-service events with the bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.MessageComposed); err != nil {
		return fmt.Errorf("register MessageComposed: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageRead); err != nil {
		return fmt.Errorf("register MessageRead: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDeleted); err != nil {
		return fmt.Errorf("register MessageDeleted: %w", err)
	}
	if err := event.Register(ctx, bus, events.OutOfOfficeReplied); err != nil {
		return fmt.Errorf("register OutOfOfficeReplied: %w", err)
	}
	return nil
}
