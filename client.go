package message

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/message/store"
	"go.opentelemetry.io/otel/attribute"
)

// MessageReader provides single message retrieval.
type MessageReader interface {
	// Get retrieves a message by its public hash. The viewer must be the
	// sender or the recipient; for anyone else the message does not exist.
	Get(ctx context.Context, hash string) (Message, error)
}

// MessageLister provides folder listings.
type MessageLister interface {
	Inbox(ctx context.Context, opts store.ListOptions) (*MessageList, error)
	Sent(ctx context.Context, opts store.ListOptions) (*MessageList, error)
	Drafts(ctx context.Context, opts store.ListOptions) (*MessageList, error)
	Templates(ctx context.Context, opts store.ListOptions) (*MessageList, error)
}

// MessageSearcher provides filtered search within a folder.
type MessageSearcher interface {
	Search(ctx context.Context, query Query) (*MessageList, error)
}

// MessageStreamer provides streaming access to messages. Use streaming
// for memory-efficient processing of large result sets; for paginated
// UI with bulk operations, use MessageLister instead.
type MessageStreamer interface {
	Stream(ctx context.Context, query Query, opts StreamOptions) (*Iterator, error)
}

// MessageComposer starts new compositions.
type MessageComposer interface {
	Compose() (*Composition, error)
}

// ProfileReader provides access to the user's authoring records.
type ProfileReader interface {
	// Signature returns the user's newest signature record.
	Signature(ctx context.Context) (Message, error)
	// OutOfOffice returns the user's newest out-of-office record, active
	// or not.
	OutOfOffice(ctx context.Context) (Message, error)
}

// ContactManager manages the user's block list and exposes the
// automatically maintained allowed-contacts list.
type ContactManager interface {
	// Block refuses future messages from other.
	Block(ctx context.Context, other string) error
	// Unblock lifts a block. Unblocking a user who was not blocked is
	// not an error.
	Unblock(ctx context.Context, other string) error
	// Blocked returns the user IDs this user has blocked.
	Blocked(ctx context.Context) ([]string, error)
	// AllowedContacts returns the user IDs this user has exchanged
	// messages with.
	AllowedContacts(ctx context.Context) ([]string, error)
}

// OutOfOfficeToggler switches the auto-responder on and off.
type OutOfOfficeToggler interface {
	// SetOutOfOfficeActive toggles the newest out-of-office record.
	// Setting the state it is already in is a no-op.
	SetOutOfOfficeActive(ctx context.Context, active bool) error
}

// Client provides messaging functionality for a single user.
//
// Composed of focused interfaces:
//   - MessageReader / MessageLister / MessageSearcher / MessageStreamer: reads
//   - MessageComposer: sending and authoring
//   - ProfileReader / OutOfOfficeToggler: signature and out-of-office records
//   - ContactManager: block list and allowed contacts
//
// For single message operations use the methods on the Message handle
// returned by Get. For bulk operations on listed messages use the
// methods on MessageList:
//
//	inbox, _ := client.Inbox(ctx, opts)
//	inbox.MarkAllRead(ctx)
//	inbox.DeleteAll(ctx)
type Client interface {
	UserID() string
	MessageReader
	MessageLister
	MessageSearcher
	MessageStreamer
	MessageComposer
	ProfileReader
	ContactManager
	OutOfOfficeToggler
}

// userClient is the default implementation of Client.
type userClient struct {
	userID      string
	service     *service
	validUserID bool // set by Client() after validation
}

// UserID returns the user ID of this client.
func (c *userClient) UserID() string {
	return c.userID
}

func (c *userClient) isConnected() bool {
	return atomic.LoadInt32(&c.service.state) == stateConnected
}

// checkAccess verifies the client is ready for operations.
func (c *userClient) checkAccess() error {
	if !c.isConnected() {
		return ErrNotConnected
	}
	if !c.validUserID {
		return ErrInvalidUserID
	}
	return nil
}

// Compose starts a new composition.
func (c *userClient) Compose() (*Composition, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}
	return newComposition(c), nil
}

// Get retrieves a message by its public hash.
func (c *userClient) Get(ctx context.Context, hash string) (Message, error) {
	if err := c.checkAccess(); err != nil {
		return Message{}, err
	}

	ctx, endSpan := c.service.otel.startSpan(ctx, "message.get",
		attribute.String("user_id", c.userID),
	)
	start := time.Now()
	var getErr error
	defer func() {
		endSpan(getErr)
		c.service.otel.recordGet(ctx, time.Since(start), getErr)
	}()

	if hash == "" {
		getErr = ErrNotFound
		return Message{}, getErr
	}

	rec, err := c.service.store.GetByHash(ctx, hash)
	if err != nil {
		if store.IsNotFound(err) {
			getErr = ErrNotFound
		} else {
			getErr = wrapDep("get message", err)
		}
		return Message{}, getErr
	}

	// Existence is not revealed to third parties.
	if rec.From != c.userID && rec.To != c.userID {
		getErr = ErrNotFound
		return Message{}, getErr
	}

	return newMessage(rec, c), nil
}

// Signature returns the user's newest signature record.
func (c *userClient) Signature(ctx context.Context) (Message, error) {
	return c.newestOwn(ctx, store.StatusIs(store.StatusSignature))
}

// OutOfOffice returns the user's newest out-of-office record.
func (c *userClient) OutOfOffice(ctx context.Context) (Message, error) {
	return c.newestOwn(ctx, store.StatusIn(
		store.StatusOutOfOfficeInactive, store.StatusOutOfOfficeActive))
}

// newestOwn returns the user's most recently created record matching the
// status filter.
func (c *userClient) newestOwn(ctx context.Context, statusFilter store.Filter) (Message, error) {
	if err := c.checkAccess(); err != nil {
		return Message{}, err
	}

	list, err := c.service.store.Find(ctx,
		[]store.Filter{store.FromIs(c.userID), statusFilter},
		store.ListOptions{Limit: 1, SortBy: store.FieldID, SortOrder: store.SortDesc},
	)
	if err != nil {
		return Message{}, wrapDep("find record", err)
	}
	if len(list.Records) == 0 {
		return Message{}, ErrNotFound
	}
	return newMessage(list.Records[0], c), nil
}

// SetOutOfOfficeActive toggles the newest out-of-office record.
func (c *userClient) SetOutOfOfficeActive(ctx context.Context, active bool) error {
	msg, err := c.OutOfOffice(ctx)
	if err != nil {
		return err
	}

	from := store.StatusOutOfOfficeInactive
	to := store.StatusOutOfOfficeActive
	if !active {
		from, to = to, from
	}
	if msg.Status() == to {
		return nil
	}

	if err := c.service.store.UpdateStatus(ctx, msg.ID(), from, to); err != nil {
		switch {
		case store.IsNotFound(err):
			return ErrNotFound
		case store.IsStatusConflict(err):
			return fmt.Errorf("%w: out-of-office is %s", ErrStatusConflict, msg.Status())
		}
		return wrapDep("update status", err)
	}
	return nil
}

// Block refuses future messages from other.
func (c *userClient) Block(ctx context.Context, other string) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if !isValidUserID(other) {
		return &ValidationError{Field: "user", Message: "invalid user id"}
	}
	if err := c.service.store.Block(ctx, c.userID, other); err != nil {
		return wrapDep("block user", err)
	}
	return nil
}

// Unblock lifts a block.
func (c *userClient) Unblock(ctx context.Context, other string) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if !isValidUserID(other) {
		return &ValidationError{Field: "user", Message: "invalid user id"}
	}
	if err := c.service.store.Unblock(ctx, c.userID, other); err != nil {
		return wrapDep("unblock user", err)
	}
	return nil
}

// Blocked returns the user IDs this user has blocked.
func (c *userClient) Blocked(ctx context.Context) ([]string, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}
	entries, err := c.service.store.ListBlocked(ctx, c.userID)
	if err != nil {
		return nil, wrapDep("list blocked", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Blocked
	}
	return ids, nil
}

// AllowedContacts returns the user IDs this user has exchanged messages
// with.
func (c *userClient) AllowedContacts(ctx context.Context) ([]string, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}
	entries, err := c.service.store.ListAllowed(ctx, c.userID)
	if err != nil {
		return nil, wrapDep("list allowed", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Contact
	}
	return ids, nil
}
