// Package message provides a private internal-messaging library for Go.
//
// It supports sending messages between users (identified by user IDs),
// per-user block lists with an automatically maintained mutual
// allow-list, out-of-office auto-replies with loop protection, drafts,
// templates, signatures, and folder-scoped listing. Storage backends
// are pluggable (MongoDB, PostgreSQL, in-memory).
//
// Messages are soft-deleted only: a deleted message leaves the
// recipient's inbox but remains visible in the sender's sent listing,
// and no operation in this library ever removes a row.
//
// # Basic Usage
//
//	// Create in-memory store for testing
//	store := memory.New()
//
//	// The directory resolves user IDs; production systems implement
//	// resolver.Directory against their account service.
//	users := resolver.NewStatic(
//	    resolver.User{ID: "alice", Email: "alice@example.com"},
//	    resolver.User{ID: "bob", Email: "bob@example.com"},
//	)
//
//	svc, err := message.NewService(
//	    message.WithStore(store),
//	    message.WithDirectory(users),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Connect initializes indexes/schema
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	// Get a client for a user
//	alice := svc.Client("alice")
//
//	// Send a message
//	msg, err := alice.Compose().
//	    To("bob").
//	    Title("Hello").
//	    Body("World").
//	    Send(ctx)
//
//	// The recipient reads it
//	bob := svc.Client("bob")
//	got, _ := bob.Get(ctx, msg.Hash())
//	_ = got.MarkRead(ctx)
//
// # Client Operations
//
//   - Compose: create and send messages, drafts, templates, signatures
//     and out-of-office replies
//   - Get: retrieve a message by its public hash
//   - Inbox/Sent/Drafts/Templates: folder listings
//   - Search: filtered listing within a folder
//   - Stream: iterator-based streaming for large scans
//   - Block/Unblock/Blocked, AllowedContacts: contact management
//
// # Storage Backends
//
// The store package provides implementations for:
//   - MongoDB (store/mongo) - accepts *mongo.Client
//   - PostgreSQL (store/postgres) - accepts *sql.DB
//   - In-memory (store/memory) - for testing
//
// Attachment files (documents and signature images) are stored through
// store/upload with S3 and Google Cloud Storage backends.
//
// # Events
//
// The library publishes typed events for message lifecycle
// notifications. Events use the github.com/rbaliyan/event/v3 library
// which supports multiple transports (Redis Streams, NATS, Kafka,
// in-memory channel).
//
// To enable events, pass WithRedisClient or WithEventTransport when
// creating the service:
//
//	svc, err := message.NewService(
//	    message.WithStore(store),
//	    message.WithDirectory(users),
//	    message.WithRedisClient(redisClient),
//	)
//
// Events are automatically registered during Connect(). Access
// per-service events via the Events() method:
//
//	events := svc.Events()
//	events.MessageComposed.Subscribe(ctx, handler)
//	events.MessageRead.Subscribe(ctx, handler)
//
// Available events:
//   - MessageComposed - when a message is persisted; carries the
//     numeric message ID, never the record itself
//   - MessageRead - when a message is marked as read
//   - MessageDeleted - when a message is soft-deleted
//   - OutOfOfficeReplied - when the auto-responder answers a message
package message
