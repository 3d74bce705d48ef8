package message

import (
	"fmt"
	"unicode/utf8"

	"github.com/rbaliyan/message/store"
	"github.com/rbaliyan/message/store/upload"
)

// composableStatuses are the statuses a record may be created with.
// Delivered messages start unread; everything else is an authoring
// status. Read, answered and deleted are only ever reached by
// transition.
var composableStatuses = map[store.Status]bool{
	store.StatusUnread:              true,
	store.StatusDraft:               true,
	store.StatusTemplate:            true,
	store.StatusSignature:           true,
	store.StatusOutOfOfficeInactive: true,
	store.StatusOutOfOfficeActive:   true,
}

// validateComposeRequest checks a compose request against the configured
// limits. It does not touch the store or the directory; those checks
// happen later in the pipeline.
func validateComposeRequest(req *ComposeRequest, opts *options) error {
	if !composableStatuses[req.Status] {
		return fmt.Errorf("%w: cannot create a message with status %s", ErrInvalidStatus, req.Status)
	}

	if req.Title == "" {
		return ErrMissingTitle
	}
	if utf8.RuneCountInString(req.Title) > opts.maxTitleLength {
		return &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("exceeds maximum length of %d", opts.maxTitleLength),
		}
	}

	if len(req.Body) > opts.maxBodySize {
		return &ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("exceeds maximum size of %d bytes", opts.maxBodySize),
		}
	}

	if req.Status.RequiresRecipient() {
		if req.To == "" {
			return ErrMissingRecipient
		}
		if !isValidUserID(req.To) {
			return &ValidationError{Field: "to", Message: "invalid user id"}
		}
	}

	if req.DocumentID != "" {
		if err := upload.CheckExtension(upload.KindDocument, req.DocumentID); err != nil {
			return fmt.Errorf("%w: document %q: %v", ErrInvalidAttachment, req.DocumentID, err)
		}
	}
	if req.SignatureImageID != "" {
		if err := upload.CheckExtension(upload.KindSignatureImage, req.SignatureImageID); err != nil {
			return fmt.Errorf("%w: signature image %q: %v", ErrInvalidAttachment, req.SignatureImageID, err)
		}
	}

	return nil
}
