package message

import (
	"context"
	"testing"
	"time"

	"github.com/rbaliyan/message/store"
)

func TestExpireBefore(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := svc.Client("alice")
	bob := svc.Client("bob")

	now := time.Now()
	sendWithExpiry := func(title string, expires time.Time) Message {
		t.Helper()
		comp, err := alice.Compose()
		if err != nil {
			t.Fatalf("compose: %v", err)
		}
		msg, err := comp.To("bob").Title(title).ExpiresAt(expires).Send(ctx)
		if err != nil {
			t.Fatalf("send %q: %v", title, err)
		}
		return msg
	}

	stale := sendWithExpiry("stale", now.Add(-time.Hour))
	fresh := sendWithExpiry("fresh", now.Add(time.Hour))
	mustSend(t, alice, "bob", "forever", "no expiry")

	t.Run("expired records are soft-deleted", func(t *testing.T) {
		result, err := svc.ExpireBefore(ctx, now)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if result.ExpiredCount != 1 {
			t.Errorf("expected 1 expiry, got %d", result.ExpiredCount)
		}

		got, err := bob.Get(ctx, stale.Hash())
		if err != nil {
			t.Fatalf("get after expiry: %v", err)
		}
		if !got.Deleted() {
			t.Errorf("expected deleted status, got %s", got.Status())
		}
	})

	t.Run("unexpired records are untouched", func(t *testing.T) {
		for _, hash := range []string{fresh.Hash()} {
			got, err := bob.Get(ctx, hash)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status() != store.StatusUnread {
				t.Errorf("expected unread, got %s", got.Status())
			}
		}

		inbox, err := bob.Inbox(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.All()) != 2 {
			t.Errorf("expected 2 live messages, got %d", len(inbox.All()))
		}
	})

	t.Run("expired records stay in the sent view", func(t *testing.T) {
		sent, err := alice.Sent(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("sent: %v", err)
		}
		var found bool
		for _, m := range sent.All() {
			if m.Hash() == stale.Hash() {
				found = true
				if !m.Deleted() {
					t.Error("expected deleted status in sent view")
				}
			}
		}
		if !found {
			t.Error("expired record should remain visible to the sender")
		}
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		result, err := svc.ExpireBefore(ctx, now)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if result.ExpiredCount != 0 {
			t.Errorf("expected 0 expiries on repeat, got %d", result.ExpiredCount)
		}
	})

	t.Run("cancelled context interrupts the sweep", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		result, err := svc.ExpireBefore(cancelled, now)
		if err == nil {
			t.Fatal("expected a context error")
		}
		if !result.Interrupted {
			t.Error("expected the sweep to report interruption")
		}
	})
}
