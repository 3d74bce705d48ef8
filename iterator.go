package message

import (
	"context"
	"errors"

	"github.com/rbaliyan/message/store"
)

// ErrIteratorOutOfBounds is returned when Message() is called without a
// successful Next().
var ErrIteratorOutOfBounds = errors.New("message: iterator out of bounds - call Next() first")

// StreamOptions configures streaming behavior.
type StreamOptions struct {
	// BatchSize is the number of messages fetched per batch. Larger
	// batches reduce round-trips but use more memory. Default: 100.
	BatchSize int
}

// Iterator provides streaming access to a folder, one batch at a time.
// It uses keyset pagination under the hood, so rows created or deleted
// mid-iteration do not shift the window the way offsets would.
//
// Use Stream for exports and other large scans; use Search for
// paginated UIs that need total counts and bulk operations.
//
// The iterator holds no resources requiring cleanup; simply stop
// calling Next when done. It is not safe for concurrent use.
//
//	iter, _ := client.Stream(ctx, message.Query{Folder: message.FolderSent}, message.StreamOptions{BatchSize: 100})
//	for {
//		ok, err := iter.Next(ctx)
//		if err != nil || !ok {
//			break
//		}
//		msg, _ := iter.Message()
//		// process msg
//	}
type Iterator struct {
	client    *userClient
	filters   []store.Filter
	opts      store.ListOptions
	batchSize int
	batch     []*store.Record
	batchIdx  int
	done      bool
	fetched   bool
}

// Next advances to the next message. It returns (true, nil) when a
// message is available, (false, nil) when iteration is done, and
// (false, err) on failure.
func (it *Iterator) Next(ctx context.Context) (bool, error) {
	if it.done {
		return false, nil
	}

	// The service may disconnect mid-iteration.
	if err := it.client.checkAccess(); err != nil {
		it.done = true
		return false, err
	}

	if it.batchIdx >= len(it.batch) {
		if it.fetched && len(it.batch) < it.batchSize {
			it.done = true
			return false, nil
		}

		list, err := it.client.service.store.Find(ctx, it.filters, it.opts)
		if err != nil {
			it.done = true
			return false, wrapDep("find records", err)
		}

		it.batch = list.Records
		it.batchIdx = 0
		it.fetched = true

		if len(it.batch) > 0 {
			it.opts.StartAfter = it.batch[len(it.batch)-1].ID
		}
		if len(it.batch) == 0 {
			it.done = true
			return false, nil
		}
	}

	it.batchIdx++
	return true, nil
}

// Message returns the current message. It must be called after a Next
// call that returned (true, nil).
func (it *Iterator) Message() (Message, error) {
	if it.batchIdx <= 0 || it.batchIdx > len(it.batch) {
		return Message{}, ErrIteratorOutOfBounds
	}
	return newMessage(it.batch[it.batchIdx-1], it.client), nil
}

// Stream returns an iterator over a folder. Caller-supplied filters are
// validated the same way Search validates them. The query's pagination
// options are ignored; the iterator manages its own cursor in ID order.
func (c *userClient) Stream(ctx context.Context, query Query, opts StreamOptions) (*Iterator, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}

	filters, err := folderFilters(c.userID, query.Folder)
	if err != nil {
		return nil, err
	}
	for _, f := range query.Filters {
		if err := searchableFilter(f); err != nil {
			return nil, err
		}
	}
	filters = append(filters, query.Filters...)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Iterator{
		client:    c,
		filters:   filters,
		batchSize: batchSize,
		opts: store.ListOptions{
			Limit:     batchSize,
			SortBy:    store.FieldID,
			SortOrder: store.SortAsc,
		},
	}, nil
}
