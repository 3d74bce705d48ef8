package message

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/event/v3"
	"github.com/redis/go-redis/v9"
)

func TestEventsDefaultTransport(t *testing.T) {
	// Without a transport events go to the noop transport; publishing
	// must never interfere with the operation itself.
	svc := setupTestService(t)
	alice := svc.Client("alice")

	msg := mustSend(t, alice, "bob", "quiet", "")
	if msg.ID() == 0 {
		t.Error("expected a persisted message")
	}
	if svc.Events() == nil {
		t.Error("expected per-service events even on the noop transport")
	}
}

func TestRedisEventTransport(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := setupTestService(t, WithRedisClient(client))
	ctx := context.Background()
	alice := svc.Client("alice")
	bob := svc.Client("bob")

	t.Run("composed event carries the message id", func(t *testing.T) {
		received := make(chan MessageComposedEvent, 1)
		err := svc.Events().MessageComposed.Subscribe(ctx, func(ctx context.Context, _ event.Event[MessageComposedEvent], e MessageComposedEvent) error {
			select {
			case received <- e:
			default:
			}
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		sent := mustSend(t, alice, "bob", "hello", "event payload check")

		select {
		case e := <-received:
			if e.MessageID != sent.ID() {
				t.Errorf("expected message id %d, got %d", sent.ID(), e.MessageID)
			}
			if e.Hash != sent.Hash() {
				t.Errorf("expected hash %q, got %q", sent.Hash(), e.Hash)
			}
			if e.From != "alice" || e.To != "bob" {
				t.Errorf("unexpected endpoints %s -> %s", e.From, e.To)
			}
			if e.Title != "hello" {
				t.Errorf("expected title 'hello', got %q", e.Title)
			}
			if e.AutoReply {
				t.Error("a direct send must not be marked as an auto-reply")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for the composed event")
		}
	})

	t.Run("read event follows the transition", func(t *testing.T) {
		received := make(chan MessageReadEvent, 1)
		err := svc.Events().MessageRead.Subscribe(ctx, func(ctx context.Context, _ event.Event[MessageReadEvent], e MessageReadEvent) error {
			select {
			case received <- e:
			default:
			}
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		sent := mustSend(t, alice, "bob", "read me", "")
		msg, err := bob.Get(ctx, sent.Hash())
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if err := msg.MarkRead(ctx); err != nil {
			t.Fatalf("mark read: %v", err)
		}

		select {
		case e := <-received:
			if e.MessageID != sent.ID() {
				t.Errorf("expected message id %d, got %d", sent.ID(), e.MessageID)
			}
			if e.UserID != "bob" {
				t.Errorf("expected reader 'bob', got %q", e.UserID)
			}
			if e.ReadAt.IsZero() {
				t.Error("expected a read timestamp")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for the read event")
		}
	})
}

func TestEventPublishFailureHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	var failed []string
	svc := setupTestService(t,
		WithRedisClient(client),
		WithEventPublishFailureHandler(func(event string, err error) {
			failed = append(failed, event)
		}),
	)
	alice := svc.Client("alice")

	// Kill the backend so publishing fails after the record persists.
	mr.Close()

	msg := mustSend(t, alice, "bob", "survives", "")
	if msg.ID() == 0 {
		t.Error("expected the record to persist despite the publish failure")
	}
	if len(failed) == 0 {
		t.Error("expected the failure handler to be invoked")
	}
}
