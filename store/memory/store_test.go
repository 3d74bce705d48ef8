package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rbaliyan/message/store"
)

func newConnected(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *Store, rec store.Record) *store.Record {
	t.Helper()
	created, err := s.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("create %q: %v", rec.Hash, err)
	}
	return created
}

func TestConnectionState(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Ping(ctx); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("Ping before connect: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.Create(ctx, store.Record{Hash: "h"}); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("Create before connect: expected ErrNotConnected, got %v", err)
	}

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping after connect: %v", err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("Ping after close: expected ErrNotConnected, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	t.Run("assigns increasing ids and stamps creation", func(t *testing.T) {
		first := mustCreate(t, s, store.Record{Hash: "h1", From: "alice"})
		second := mustCreate(t, s, store.Record{Hash: "h2", From: "alice"})

		if first.ID <= 0 {
			t.Errorf("expected a positive id, got %d", first.ID)
		}
		if second.ID <= first.ID {
			t.Errorf("ids must increase: %d then %d", first.ID, second.ID)
		}
		if first.CreatedAt.IsZero() {
			t.Error("expected a creation timestamp")
		}
	})

	t.Run("rejects an empty hash", func(t *testing.T) {
		if _, err := s.Create(ctx, store.Record{}); !errors.Is(err, store.ErrInvalidRecord) {
			t.Errorf("expected ErrInvalidRecord, got %v", err)
		}
	})

	t.Run("rejects a duplicate hash", func(t *testing.T) {
		mustCreate(t, s, store.Record{Hash: "dup"})
		if _, err := s.Create(ctx, store.Record{Hash: "dup"}); !errors.Is(err, store.ErrDuplicateHash) {
			t.Errorf("expected ErrDuplicateHash, got %v", err)
		}
	})

	t.Run("returned record is isolated from the store", func(t *testing.T) {
		created := mustCreate(t, s, store.Record{Hash: "iso", Title: "original"})
		created.Title = "mutated"

		got, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "original" {
			t.Errorf("store record was mutated through the returned copy: %q", got.Title)
		}
	})
}

func TestGet(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	created := mustCreate(t, s, store.Record{Hash: "lookup", From: "alice", To: "bob"})

	t.Run("by id", func(t *testing.T) {
		got, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Hash != "lookup" {
			t.Errorf("expected hash 'lookup', got %q", got.Hash)
		}
	})

	t.Run("by hash", func(t *testing.T) {
		got, err := s.GetByHash(ctx, "lookup")
		if err != nil {
			t.Fatalf("get by hash: %v", err)
		}
		if got.ID != created.ID {
			t.Errorf("expected id %d, got %d", created.ID, got.ID)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		if _, err := s.Get(ctx, 999999); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing hash", func(t *testing.T) {
		if _, err := s.GetByHash(ctx, "no-such"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUpdateStatus(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	t.Run("compare-and-set succeeds on matching status", func(t *testing.T) {
		rec := mustCreate(t, s, store.Record{Hash: "cas-1", Status: store.StatusUnread})
		if err := s.UpdateStatus(ctx, rec.ID, store.StatusUnread, store.StatusRead); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ := s.Get(ctx, rec.ID)
		if got.Status != store.StatusRead {
			t.Errorf("expected read, got %s", got.Status)
		}
	})

	t.Run("stamps ack time on first read", func(t *testing.T) {
		rec := mustCreate(t, s, store.Record{Hash: "cas-ack", Status: store.StatusUnread})
		if err := s.UpdateStatus(ctx, rec.ID, store.StatusUnread, store.StatusRead); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ := s.Get(ctx, rec.ID)
		if got.AckAt == nil {
			t.Fatal("expected ack timestamp")
		}
		// Further transitions keep the original stamp.
		stamp := *got.AckAt
		if err := s.UpdateStatus(ctx, rec.ID, store.StatusRead, store.StatusAnswered); err != nil {
			t.Fatalf("second update: %v", err)
		}
		got, _ = s.Get(ctx, rec.ID)
		if got.AckAt == nil || !got.AckAt.Equal(stamp) {
			t.Error("ack timestamp must not change after the first read")
		}
	})

	t.Run("stale expectation conflicts", func(t *testing.T) {
		rec := mustCreate(t, s, store.Record{Hash: "cas-2", Status: store.StatusRead})
		err := s.UpdateStatus(ctx, rec.ID, store.StatusUnread, store.StatusRead)
		if !errors.Is(err, store.ErrStatusConflict) {
			t.Errorf("expected ErrStatusConflict, got %v", err)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		err := s.UpdateStatus(ctx, 999999, store.StatusUnread, store.StatusRead)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFind(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mustCreate(t, s, store.Record{
			Hash: fmt.Sprintf("alice-%d", i), From: "alice", To: "bob",
			Title: fmt.Sprintf("Report %d", i), Status: store.StatusUnread,
		})
	}
	mustCreate(t, s, store.Record{
		Hash: "bob-1", From: "bob", To: "alice",
		Title: "Reply", Status: store.StatusRead,
	})

	t.Run("filters combine with and", func(t *testing.T) {
		list, err := s.Find(ctx, []store.Filter{
			store.FromIs("alice"),
			store.StatusIn(store.StatusUnread, store.StatusRead),
		}, store.ListOptions{})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(list.Records) != 5 {
			t.Errorf("expected 5 records, got %d", len(list.Records))
		}
	})

	t.Run("contains is case-insensitive", func(t *testing.T) {
		list, err := s.Find(ctx, []store.Filter{store.TitleContains("report")}, store.ListOptions{})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(list.Records) != 5 {
			t.Errorf("expected 5 records, got %d", len(list.Records))
		}
	})

	t.Run("limit with has-more and cursor", func(t *testing.T) {
		list, err := s.Find(ctx, []store.Filter{store.FromIs("alice")}, store.ListOptions{
			Limit:  2,
			SortBy: store.FieldID,
		})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(list.Records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(list.Records))
		}
		if !list.HasMore {
			t.Error("expected more records")
		}
		if list.Total != 5 {
			t.Errorf("expected total 5, got %d", list.Total)
		}
		if list.NextCursor != list.Records[1].ID {
			t.Errorf("cursor should be the last returned id, got %d", list.NextCursor)
		}
	})

	t.Run("keyset pagination walks every record once", func(t *testing.T) {
		seen := map[int64]bool{}
		var cursor int64
		for {
			list, err := s.Find(ctx, []store.Filter{store.FromIs("alice")}, store.ListOptions{
				Limit:      2,
				SortBy:     store.FieldID,
				StartAfter: cursor,
			})
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			for _, rec := range list.Records {
				if seen[rec.ID] {
					t.Fatalf("record %d returned twice", rec.ID)
				}
				seen[rec.ID] = true
			}
			if !list.HasMore {
				break
			}
			cursor = list.NextCursor
		}
		if len(seen) != 5 {
			t.Errorf("expected 5 distinct records, got %d", len(seen))
		}
	})

	t.Run("start-after overrides conflicting sort options", func(t *testing.T) {
		first, err := s.Find(ctx, []store.Filter{store.FromIs("alice")}, store.ListOptions{
			Limit:  1,
			SortBy: store.FieldID,
		})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		after := first.Records[0].ID

		list, err := s.Find(ctx, []store.Filter{store.FromIs("alice")}, store.ListOptions{
			Limit:      10,
			SortBy:     store.FieldCreatedAt,
			SortOrder:  store.SortDesc,
			StartAfter: after,
		})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(list.Records) != 4 {
			t.Fatalf("expected 4 records after the cursor, got %d", len(list.Records))
		}
		for i, rec := range list.Records {
			if rec.ID <= after {
				t.Fatalf("record %d is not past the cursor %d", rec.ID, after)
			}
			if i > 0 && rec.ID <= list.Records[i-1].ID {
				t.Fatal("expected ascending ids after the cursor")
			}
		}
	})

	t.Run("no cursor without id order", func(t *testing.T) {
		list, err := s.Find(ctx, []store.Filter{store.FromIs("alice")}, store.ListOptions{Limit: 2})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if !list.HasMore {
			t.Fatal("expected more records")
		}
		if list.NextCursor != 0 {
			t.Errorf("newest-first pages have no cursor, got %d", list.NextCursor)
		}
	})

	t.Run("offset skips records", func(t *testing.T) {
		list, err := s.Find(ctx, []store.Filter{store.FromIs("alice")}, store.ListOptions{
			SortBy: store.FieldID,
			Offset: 3,
		})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(list.Records) != 2 {
			t.Errorf("expected 2 records after offset, got %d", len(list.Records))
		}
	})

	t.Run("descending id sort", func(t *testing.T) {
		list, err := s.Find(ctx, []store.Filter{store.FromIs("alice")}, store.ListOptions{
			SortBy:    store.FieldID,
			SortOrder: store.SortDesc,
		})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		for i := 1; i < len(list.Records); i++ {
			if list.Records[i].ID > list.Records[i-1].ID {
				t.Fatal("expected descending ids")
			}
		}
	})

	t.Run("invalid filter is rejected", func(t *testing.T) {
		bad := store.NewFilter("nope", store.OpEqual, "x")
		if _, err := s.Find(ctx, []store.Filter{bad}, store.ListOptions{}); !errors.Is(err, store.ErrInvalidFilter) {
			t.Errorf("expected ErrInvalidFilter, got %v", err)
		}
	})

	t.Run("count matches find totals", func(t *testing.T) {
		n, err := s.Count(ctx, []store.Filter{store.FromIs("alice")})
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 5 {
			t.Errorf("expected 5, got %d", n)
		}
	})
}

func TestBlockList(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	t.Run("block is directional", func(t *testing.T) {
		if err := s.Block(ctx, "alice", "bob"); err != nil {
			t.Fatalf("block: %v", err)
		}
		blocked, err := s.IsBlocked(ctx, "alice", "bob")
		if err != nil {
			t.Fatalf("is blocked: %v", err)
		}
		if !blocked {
			t.Error("expected alice -> bob to be blocked")
		}
		reverse, _ := s.IsBlocked(ctx, "bob", "alice")
		if reverse {
			t.Error("the reverse direction must not be blocked")
		}
	})

	t.Run("block is idempotent", func(t *testing.T) {
		if err := s.Block(ctx, "alice", "bob"); err != nil {
			t.Errorf("repeat block: %v", err)
		}
		entries, err := s.ListBlocked(ctx, "alice")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("expected 1 entry, got %d", len(entries))
		}
	})

	t.Run("unblock removes and tolerates absence", func(t *testing.T) {
		if err := s.Unblock(ctx, "alice", "bob"); err != nil {
			t.Fatalf("unblock: %v", err)
		}
		blocked, _ := s.IsBlocked(ctx, "alice", "bob")
		if blocked {
			t.Error("expected the entry to be gone")
		}
		if err := s.Unblock(ctx, "alice", "bob"); err != nil {
			t.Errorf("unblocking an absent entry: %v", err)
		}
	})
}

func TestAllowList(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	t.Run("upsert creates then refreshes", func(t *testing.T) {
		if err := s.UpsertAllow(ctx, "alice", "bob"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		entries, err := s.ListAllowed(ctx, "alice")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
		created := entries[0].CreatedAt

		time.Sleep(2 * time.Millisecond)
		if err := s.UpsertAllow(ctx, "alice", "bob"); err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		entries, _ = s.ListAllowed(ctx, "alice")
		if len(entries) != 1 {
			t.Fatalf("expected the edge to converge on 1 entry, got %d", len(entries))
		}
		if !entries[0].CreatedAt.Equal(created) {
			t.Error("creation timestamp must be preserved across upserts")
		}
		if !entries[0].UpdatedAt.After(created) {
			t.Error("updated timestamp should move forward")
		}
	})

	t.Run("edges are directional", func(t *testing.T) {
		ok, err := s.HasAllow(ctx, "alice", "bob")
		if err != nil {
			t.Fatalf("has allow: %v", err)
		}
		if !ok {
			t.Error("expected alice -> bob edge")
		}
		reverse, _ := s.HasAllow(ctx, "bob", "alice")
		if reverse {
			t.Error("the reverse edge must not exist")
		}
	})
}
