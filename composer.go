package message

import (
	"context"
	"time"

	"github.com/rbaliyan/message/store"
)

// Composition is a fluent builder for new messages.
//
//	msg, err := client.Compose().
//		To("bob").
//		Title("weekly report").
//		Body("attached").
//		Document("reports/week-35.pdf").
//		Send(ctx)
//
// Authoring records skip delivery:
//
//	client.Compose().Title("ooo").Body("back monday").AsOutOfOffice(true).Send(ctx)
type Composition struct {
	client *userClient
	req    ComposeRequest
}

func newComposition(c *userClient) *Composition {
	return &Composition{
		client: c,
		req:    ComposeRequest{Status: store.StatusUnread},
	}
}

// To sets the recipient.
func (b *Composition) To(userID string) *Composition {
	b.req.To = userID
	return b
}

// Title sets the subject line.
func (b *Composition) Title(title string) *Composition {
	b.req.Title = title
	return b
}

// Body sets the message text.
func (b *Composition) Body(body string) *Composition {
	b.req.Body = body
	return b
}

// Context sets the free-form origin reference.
func (b *Composition) Context(context string) *Composition {
	b.req.Context = context
	return b
}

// Params sets the serialized auxiliary payload.
func (b *Composition) Params(params string) *Composition {
	b.req.Params = params
	return b
}

// Document attaches an uploaded document reference (.pdf).
func (b *Composition) Document(id string) *Composition {
	b.req.DocumentID = id
	return b
}

// SignatureImage attaches an uploaded signature image reference.
func (b *Composition) SignatureImage(id string) *Composition {
	b.req.SignatureImageID = id
	return b
}

// ExpiresAt schedules the record for soft deletion after t.
func (b *Composition) ExpiresAt(t time.Time) *Composition {
	b.req.ExpiresAt = &t
	return b
}

// AsDraft stores the message as an unsent draft. No recipient is
// required and nothing is delivered.
func (b *Composition) AsDraft() *Composition {
	b.req.Status = store.StatusDraft
	return b
}

// AsTemplate stores the message as a reusable template.
func (b *Composition) AsTemplate() *Composition {
	b.req.Status = store.StatusTemplate
	return b
}

// AsSignature stores the message as the user's signature.
func (b *Composition) AsSignature() *Composition {
	b.req.Status = store.StatusSignature
	return b
}

// AsOutOfOffice stores the message as the user's out-of-office reply,
// active or not.
func (b *Composition) AsOutOfOffice(active bool) *Composition {
	if active {
		b.req.Status = store.StatusOutOfOfficeActive
	} else {
		b.req.Status = store.StatusOutOfOfficeInactive
	}
	return b
}

// Send runs the compose pipeline and returns the persisted message.
func (b *Composition) Send(ctx context.Context) (Message, error) {
	req := b.req
	return b.client.send(ctx, &req)
}
