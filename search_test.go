package message

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/message/store"
)

func TestFolders(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := svc.Client("alice")
	bob := svc.Client("bob")

	mustSend(t, alice, "bob", "delivered", "for the inbox")

	compose := func(c Client, build func(*Composition) *Composition) Message {
		t.Helper()
		comp, err := c.Compose()
		if err != nil {
			t.Fatalf("compose: %v", err)
		}
		msg, err := build(comp).Send(ctx)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		return msg
	}
	compose(alice, func(c *Composition) *Composition { return c.Title("my draft").AsDraft() })
	compose(alice, func(c *Composition) *Composition { return c.To("bob").Title("my template").AsTemplate() })
	compose(alice, func(c *Composition) *Composition { return c.Title("my signature").AsSignature() })
	compose(alice, func(c *Composition) *Composition { return c.Title("my ooo").AsOutOfOffice(false) })

	count := func(c Client, folder Folder) int {
		t.Helper()
		list, err := c.Search(ctx, Query{Folder: folder})
		if err != nil {
			t.Fatalf("search %s: %v", folder, err)
		}
		return len(list.All())
	}

	t.Run("folders are scoped by status", func(t *testing.T) {
		if got := count(alice, FolderSent); got != 1 {
			t.Errorf("sent: expected 1, got %d", got)
		}
		if got := count(alice, FolderDrafts); got != 1 {
			t.Errorf("drafts: expected 1, got %d", got)
		}
		if got := count(alice, FolderTemplates); got != 1 {
			t.Errorf("templates: expected 1, got %d", got)
		}
		if got := count(bob, FolderInbox); got != 1 {
			t.Errorf("inbox: expected 1, got %d", got)
		}
	})

	t.Run("signature and out-of-office never list", func(t *testing.T) {
		for _, folder := range []Folder{FolderInbox, FolderSent, FolderDrafts, FolderTemplates} {
			list, err := alice.Search(ctx, Query{Folder: folder})
			if err != nil {
				t.Fatalf("search %s: %v", folder, err)
			}
			for _, m := range list.All() {
				if m.Status() == store.StatusSignature ||
					m.Status() == store.StatusOutOfOfficeInactive ||
					m.Status() == store.StatusOutOfOfficeActive {
					t.Errorf("%s leaked a %s record", folder, m.Status())
				}
			}
		}
	})

	t.Run("profile accessors reach them instead", func(t *testing.T) {
		sig, err := alice.Signature(ctx)
		if err != nil {
			t.Fatalf("signature: %v", err)
		}
		if sig.Title() != "my signature" {
			t.Errorf("unexpected signature %q", sig.Title())
		}

		ooo, err := alice.OutOfOffice(ctx)
		if err != nil {
			t.Fatalf("out of office: %v", err)
		}
		if ooo.Status() != store.StatusOutOfOfficeInactive {
			t.Errorf("unexpected status %s", ooo.Status())
		}

		if _, err := bob.Signature(ctx); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing signature, got %v", err)
		}
	})

	t.Run("unknown folder is rejected", func(t *testing.T) {
		_, err := alice.Search(ctx, Query{Folder: "archive"})
		if !IsValidationFailure(err) {
			t.Errorf("expected a validation failure, got %v", err)
		}
	})
}

func TestDeletedVisibility(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := svc.Client("alice")
	bob := svc.Client("bob")

	msg := mustSend(t, alice, "bob", "ephemeral", "")

	got, err := bob.Get(ctx, msg.Hash())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := got.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}

	t.Run("leaves the recipient inbox", func(t *testing.T) {
		inbox, err := bob.Inbox(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.All()) != 0 {
			t.Errorf("expected empty inbox, got %d", len(inbox.All()))
		}
	})

	t.Run("stays in the sender sent view", func(t *testing.T) {
		sent, err := alice.Sent(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("sent: %v", err)
		}
		if len(sent.All()) != 1 {
			t.Fatalf("expected the deleted message in sent, got %d", len(sent.All()))
		}
		if !sent.All()[0].Deleted() {
			t.Error("expected the sent copy to show as deleted")
		}
	})
}

func TestGetVisibility(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := svc.Client("alice")

	msg := mustSend(t, alice, "bob", "private", "")

	t.Run("sender and recipient see it", func(t *testing.T) {
		if _, err := alice.Get(ctx, msg.Hash()); err != nil {
			t.Errorf("sender get: %v", err)
		}
		if _, err := svc.Client("bob").Get(ctx, msg.Hash()); err != nil {
			t.Errorf("recipient get: %v", err)
		}
	})

	t.Run("third parties get not found", func(t *testing.T) {
		_, err := svc.Client("carol").Get(ctx, msg.Hash())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing hash", func(t *testing.T) {
		_, err := alice.Get(ctx, "no-such-hash")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSequenceAnnotation(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := svc.Client("alice")

	// Three reminders with the same title plus one unique message, all
	// addressed to root so the elevated inbox sees them.
	first := mustSend(t, alice, "root", "reminder", "1")
	second := mustSend(t, alice, "root", "reminder", "2")
	third := mustSend(t, alice, "root", "reminder", "3")
	unique := mustSend(t, alice, "root", "one-off", "")

	t.Run("elevated viewer sees the duplicate window", func(t *testing.T) {
		inbox, err := svc.Client("root").Inbox(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}

		want := map[int64]int64{
			first.ID():  3, // three reminders at or above the first
			second.ID(): 2,
			third.ID():  1,
			unique.ID(): 0, // unique titles stay at zero
		}
		for _, m := range inbox.All() {
			if got := m.Sequence(); got != want[m.ID()] {
				t.Errorf("message %d (%q): expected sequence %d, got %d",
					m.ID(), m.Title(), want[m.ID()], got)
			}
		}
	})

	t.Run("regular viewers always see zero", func(t *testing.T) {
		// Alice sees the same records in her sent folder.
		sent, err := alice.Sent(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("sent: %v", err)
		}
		for _, m := range sent.All() {
			if m.Sequence() != 0 {
				t.Errorf("message %d: expected sequence 0, got %d", m.ID(), m.Sequence())
			}
		}
	})

	t.Run("elevated checker option overrides the directory", func(t *testing.T) {
		override := setupTestService(t, WithElevatedChecker(func(ctx context.Context, userID string) bool {
			return userID == "bob"
		}))
		sender := override.Client("alice")
		mustSend(t, sender, "bob", "dup", "")
		mustSend(t, sender, "bob", "dup", "")

		inbox, err := override.Client("bob").Inbox(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		seen := map[int64]bool{}
		for _, m := range inbox.All() {
			seen[m.Sequence()] = true
		}
		if !seen[1] || !seen[2] {
			t.Errorf("expected sequences {1,2}, got %v", seen)
		}
	})
}

func TestSearchFilters(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := svc.Client("alice")

	mustSend(t, alice, "bob", "quarterly report", "numbers inside")
	mustSend(t, alice, "bob", "lunch", "pizza?")

	t.Run("title contains", func(t *testing.T) {
		list, err := alice.Search(ctx, Query{
			Folder:  FolderSent,
			Filters: []store.Filter{store.TitleContains("report")},
		})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(list.All()) != 1 || list.All()[0].Title() != "quarterly report" {
			t.Errorf("unexpected result %v", list.Hashes())
		}
	})

	t.Run("unsupported filter combinations are rejected", func(t *testing.T) {
		_, err := alice.Search(ctx, Query{
			Folder:  FolderSent,
			Filters: []store.Filter{store.NewFilter(store.FieldFrom, store.OpContains, "ali")},
		})
		if !IsValidationFailure(err) {
			t.Errorf("expected a validation failure, got %v", err)
		}

		_, err = alice.Search(ctx, Query{
			Folder:  FolderSent,
			Filters: []store.Filter{store.NewFilter("owner", store.OpEqual, "x")},
		})
		if !IsValidationFailure(err) {
			t.Errorf("expected a validation failure for unknown field, got %v", err)
		}
	})
}

func TestPagination(t *testing.T) {
	svc := setupTestService(t, WithQueryLimits(3, 5))
	ctx := context.Background()
	alice := svc.Client("alice")

	for i := 0; i < 8; i++ {
		mustSend(t, alice, "bob", "page", "body")
	}

	t.Run("default and max limits apply", func(t *testing.T) {
		list, err := alice.Sent(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("sent: %v", err)
		}
		if len(list.All()) != 3 {
			t.Errorf("expected default limit 3, got %d", len(list.All()))
		}
		if list.Total() != 8 {
			t.Errorf("expected total 8, got %d", list.Total())
		}
		if !list.HasMore() {
			t.Error("expected more pages")
		}

		capped, err := alice.Sent(ctx, store.ListOptions{Limit: 100})
		if err != nil {
			t.Fatalf("sent: %v", err)
		}
		if len(capped.All()) != 5 {
			t.Errorf("expected max limit 5, got %d", len(capped.All()))
		}
	})

	t.Run("newest-first pages expose no cursor", func(t *testing.T) {
		// The default sort is created_at descending, where an ID-keyed
		// cursor is undefined. Following one would repeat or skip rows,
		// so the list must not offer it.
		list, err := alice.Sent(ctx, store.ListOptions{})
		if err != nil {
			t.Fatalf("sent: %v", err)
		}
		if !list.HasMore() {
			t.Fatal("expected more pages")
		}
		if list.NextCursor() != 0 {
			t.Errorf("expected no cursor on a newest-first page, got %d", list.NextCursor())
		}
	})

	t.Run("cursor walk covers records regardless of sort options", func(t *testing.T) {
		// Once a cursor is set the walk is in ascending ID order even if
		// the caller left conflicting sort options in place.
		seen := map[int64]bool{}
		opts := store.ListOptions{Limit: 3, SortBy: store.FieldID, SortOrder: store.SortAsc}
		for {
			list, err := alice.Sent(ctx, opts)
			if err != nil {
				t.Fatalf("sent: %v", err)
			}
			for _, m := range list.All() {
				if seen[m.ID()] {
					t.Fatalf("message %d returned twice", m.ID())
				}
				seen[m.ID()] = true
			}
			if !list.HasMore() {
				break
			}
			opts = store.ListOptions{Limit: 3, StartAfter: list.NextCursor()}
		}
		if len(seen) != 8 {
			t.Errorf("expected 8 distinct messages, got %d", len(seen))
		}
	})

	t.Run("keyset pagination walks every record once", func(t *testing.T) {
		seen := map[int64]bool{}
		opts := store.ListOptions{Limit: 3, SortBy: store.FieldID, SortOrder: store.SortAsc}
		for {
			list, err := alice.Sent(ctx, opts)
			if err != nil {
				t.Fatalf("sent: %v", err)
			}
			for _, m := range list.All() {
				if seen[m.ID()] {
					t.Fatalf("message %d returned twice", m.ID())
				}
				seen[m.ID()] = true
			}
			if !list.HasMore() {
				break
			}
			opts.StartAfter = list.NextCursor()
		}
		if len(seen) != 8 {
			t.Errorf("expected 8 distinct messages, got %d", len(seen))
		}
	})
}

func TestStream(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := svc.Client("alice")

	for i := 0; i < 7; i++ {
		mustSend(t, alice, "bob", "stream", "body")
	}

	iter, err := alice.Stream(ctx, Query{Folder: FolderSent}, StreamOptions{BatchSize: 3})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var count int
	var lastID int64
	for {
		ok, err := iter.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		msg, err := iter.Message()
		if err != nil {
			t.Fatalf("message: %v", err)
		}
		if msg.ID() <= lastID {
			t.Errorf("expected ascending IDs, got %d after %d", msg.ID(), lastID)
		}
		lastID = msg.ID()
		count++
	}
	if count != 7 {
		t.Errorf("expected 7 messages, got %d", count)
	}

	t.Run("message before next is out of bounds", func(t *testing.T) {
		fresh, _ := alice.Stream(ctx, Query{Folder: FolderSent}, StreamOptions{})
		if _, err := fresh.Message(); !errors.Is(err, ErrIteratorOutOfBounds) {
			t.Errorf("expected ErrIteratorOutOfBounds, got %v", err)
		}
	})
}
