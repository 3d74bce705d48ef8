package message

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/message/store"
	"go.opentelemetry.io/otel/attribute"
)

// Folder names a view over a user's messages. Folders are derived from
// the sender, recipient and status columns; there is no folder column in
// the store.
type Folder string

const (
	// FolderInbox holds messages addressed to the viewer that are
	// unread, read or answered. Deleted messages leave the inbox.
	FolderInbox Folder = "inbox"

	// FolderSent holds messages the viewer sent, including soft-deleted
	// ones: a recipient deleting a message does not erase it from the
	// sender's view.
	FolderSent Folder = "sent"

	// FolderDrafts holds the viewer's unsent drafts.
	FolderDrafts Folder = "drafts"

	// FolderTemplates holds the viewer's reusable templates.
	FolderTemplates Folder = "templates"
)

// Query selects messages within one of the viewer's folders. Filters
// are combined with AND on top of the folder's own constraints.
type Query struct {
	// Folder to search. Empty means inbox.
	Folder Folder

	// Filters narrow the folder contents.
	Filters []store.Filter

	// Options controls pagination and ordering.
	Options store.ListOptions
}

// folderFilters returns the filter set that defines a folder for a
// viewer. Signature and out-of-office records never appear in any
// folder; they are reachable only through the profile accessors.
func folderFilters(viewer string, folder Folder) ([]store.Filter, error) {
	switch folder {
	case FolderInbox, "":
		return []store.Filter{
			store.ToIs(viewer),
			store.StatusIn(store.StatusUnread, store.StatusRead, store.StatusAnswered),
		}, nil
	case FolderSent:
		return []store.Filter{
			store.FromIs(viewer),
			store.StatusIn(store.StatusUnread, store.StatusRead, store.StatusAnswered, store.StatusDeleted),
		}, nil
	case FolderDrafts:
		return []store.Filter{
			store.FromIs(viewer),
			store.StatusIs(store.StatusDraft),
		}, nil
	case FolderTemplates:
		return []store.Filter{
			store.FromIs(viewer),
			store.StatusIs(store.StatusTemplate),
		}, nil
	}
	return nil, &ValidationError{Field: "folder", Message: fmt.Sprintf("unknown folder %q", folder)}
}

// searchableFilter restricts caller-supplied filters to the supported
// field and operator combinations: exact matches on id, from, to,
// status and created_at, substring matches on hash, title and body.
func searchableFilter(f store.Filter) error {
	if err := f.Validate(); err != nil {
		return &ValidationError{Field: f.Key(), Message: err.Error()}
	}

	allowed := false
	switch f.Key() {
	case store.FieldID, store.FieldFrom, store.FieldTo:
		allowed = f.Operator() == store.OpEqual
	case store.FieldStatus:
		allowed = f.Operator() == store.OpEqual || f.Operator() == store.OpIn
	case store.FieldCreatedAt:
		allowed = f.Operator() != store.OpContains
	case store.FieldHash, store.FieldTitle, store.FieldBody:
		allowed = f.Operator() == store.OpEqual || f.Operator() == store.OpContains
	}
	if !allowed {
		return &ValidationError{
			Field:   f.Key(),
			Message: fmt.Sprintf("operator %q is not searchable on this field", f.Operator()),
		}
	}
	return nil
}

// Search returns messages in one of the viewer's folders.
func (c *userClient) Search(ctx context.Context, query Query) (*MessageList, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := c.service.otel.startSpan(ctx, "message.list",
		attribute.String("user_id", c.userID),
		attribute.String("folder", string(query.Folder)),
	)
	start := time.Now()
	var listErr error
	var resultCount int
	defer func() {
		endSpan(listErr)
		c.service.otel.recordList(ctx, time.Since(start), string(query.Folder), resultCount, listErr)
	}()

	filters, err := folderFilters(c.userID, query.Folder)
	if err != nil {
		listErr = err
		return nil, listErr
	}
	for _, f := range query.Filters {
		if err := searchableFilter(f); err != nil {
			listErr = err
			return nil, listErr
		}
	}
	filters = append(filters, query.Filters...)

	opts := query.Options
	if opts.Limit == 0 {
		opts.Limit = c.service.opts.defaultQueryLimit
	}
	if opts.Limit > c.service.opts.maxQueryLimit {
		opts.Limit = c.service.opts.maxQueryLimit
	}

	list, total, err := c.findWithCount(ctx, filters, opts)
	if err != nil {
		listErr = wrapDep("find records", err)
		return nil, listErr
	}
	resultCount = len(list.Records)

	result := wrapRecordList(list, total, c)

	if c.isElevated(ctx) {
		if err := c.annotateSequences(ctx, filters, result); err != nil {
			// The listing itself is fine; the annotation is best effort.
			c.service.logger.Warn("sequence annotation failed",
				"user_id", c.userID, "error", err)
		}
	}

	return result, nil
}

// findWithCount uses the store's combined find+count capability when it
// has one, and falls back to two queries otherwise.
func (c *userClient) findWithCount(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.RecordList, int64, error) {
	if fc, ok := c.service.store.(store.FindWithCounter); ok {
		return fc.FindWithCount(ctx, filters, opts)
	}

	list, err := c.service.store.Find(ctx, filters, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := c.service.store.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// isElevated reports whether the viewer holds the role that unlocks the
// duplicate-title sequence annotation.
func (c *userClient) isElevated(ctx context.Context) bool {
	if c.service.opts.elevated != nil {
		return c.service.opts.elevated(ctx, c.userID)
	}
	u, err := c.service.directory.Resolve(ctx, c.userID)
	if err != nil {
		return false
	}
	return u.Elevated
}

// annotateSequences fills in the duplicate-title sequence for a page.
// A row's sequence is the count of records sharing its title with an ID
// at or above its own, and zero when the title occurs only once within
// the search scope. Counts run against the same filters as the listing,
// so the window matches what the viewer can see.
func (c *userClient) annotateSequences(ctx context.Context, filters []store.Filter, list *MessageList) error {
	// One count per distinct title decides whether the title is
	// duplicated at all; unique titles stay at zero.
	titleTotals := make(map[string]int64)
	for _, m := range list.messages {
		if _, ok := titleTotals[m.Title()]; ok {
			continue
		}
		total, err := c.service.store.Count(ctx,
			append(filters[:len(filters):len(filters)], store.TitleIs(m.Title())))
		if err != nil {
			return err
		}
		titleTotals[m.Title()] = total
	}

	for i, m := range list.messages {
		if titleTotals[m.Title()] <= 1 {
			continue
		}
		seq, err := c.service.store.Count(ctx,
			append(filters[:len(filters):len(filters)],
				store.TitleIs(m.Title()),
				store.IDGreaterOrEqual(m.ID())))
		if err != nil {
			return err
		}
		list.messages[i].sequence = seq
	}
	return nil
}

// Inbox returns messages addressed to the user.
func (c *userClient) Inbox(ctx context.Context, opts store.ListOptions) (*MessageList, error) {
	return c.Search(ctx, Query{Folder: FolderInbox, Options: opts})
}

// Sent returns messages the user sent, including soft-deleted ones.
func (c *userClient) Sent(ctx context.Context, opts store.ListOptions) (*MessageList, error) {
	return c.Search(ctx, Query{Folder: FolderSent, Options: opts})
}

// Drafts returns the user's unsent drafts.
func (c *userClient) Drafts(ctx context.Context, opts store.ListOptions) (*MessageList, error) {
	return c.Search(ctx, Query{Folder: FolderDrafts, Options: opts})
}

// Templates returns the user's reusable templates.
func (c *userClient) Templates(ctx context.Context, opts store.ListOptions) (*MessageList, error) {
	return c.Search(ctx, Query{Folder: FolderTemplates, Options: opts})
}
