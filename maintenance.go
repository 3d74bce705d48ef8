package message

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/message/store"
)

// ExpireResult contains the result of an expiry sweep.
type ExpireResult struct {
	// ExpiredCount is the number of records soft-deleted.
	ExpiredCount int
	// Interrupted indicates the sweep stopped early (context cancelled).
	Interrupted bool
}

// ExpireBefore soft-deletes records whose expiry time is at or before
// cutoff. Rows are never physically removed; expiry is the same status
// transition as a user-initiated delete, so expired messages stay
// visible in the sender's sent listing.
//
// The sweep processes records in batches until done or the context is
// cancelled. Call it periodically from your application's scheduler:
//
//	ticker := time.NewTicker(time.Hour)
//	defer ticker.Stop()
//	for range ticker.C {
//		if _, err := svc.ExpireBefore(ctx, time.Now()); err != nil {
//			log.Printf("expiry sweep: %v", err)
//		}
//	}
func (s *service) ExpireBefore(ctx context.Context, cutoff time.Time) (*ExpireResult, error) {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return nil, ErrNotConnected
	}

	result := &ExpireResult{}
	filters := []store.Filter{
		store.ExpiredBefore(cutoff),
		store.NotDeleted(),
	}

	const batchSize = 100
	opts := store.ListOptions{
		Limit:     batchSize,
		SortBy:    store.FieldID,
		SortOrder: store.SortAsc,
	}

	for {
		if ctx.Err() != nil {
			result.Interrupted = true
			return result, ctx.Err()
		}

		list, err := s.store.Find(ctx, filters, opts)
		if err != nil {
			return result, fmt.Errorf("find expired records: %w", err)
		}
		if len(list.Records) == 0 {
			break
		}

		for _, rec := range list.Records {
			err := s.store.UpdateStatus(ctx, rec.ID, rec.Status, store.StatusDeleted)
			switch {
			case err == nil:
				result.ExpiredCount++
			case errors.Is(err, store.ErrStatusConflict), errors.Is(err, store.ErrNotFound):
				// Raced with a user delete or another sweep; the record
				// is gone from the unexpired set either way.
			default:
				return result, fmt.Errorf("expire record %d: %w", rec.ID, err)
			}
		}

		s.logger.Debug("expired record batch", "count", len(list.Records))

		if len(list.Records) < batchSize {
			break
		}
		// Everything matched so far is now deleted and out of the filter
		// set, so the next Find starts from the front again.
	}

	return result, nil
}
