// Package upload defines file storage for message attachments.
//
// Two kinds of files are supported: documents attached to messages
// (PDF only) and signature images (PNG, JPEG or WebP). Backends are
// provided for S3 and Google Cloud Storage, plus a local read-through
// cache wrapper.
package upload

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// Kind classifies an uploaded file.
type Kind string

const (
	// KindDocument is a document attached to a message.
	KindDocument Kind = "document"
	// KindSignatureImage is an image embedded in a signature.
	KindSignatureImage Kind = "signature"
)

// ErrUnsupportedExtension indicates a filename whose extension is not
// allowed for its kind.
var ErrUnsupportedExtension = errors.New("upload: unsupported file extension")

var allowedExtensions = map[Kind]map[string]bool{
	KindDocument: {
		".pdf": true,
	},
	KindSignatureImage: {
		".png": true,
		// .jpeg is the long form of .jpg; both spellings are common
		// in uploaded filenames.
		".jpg":  true,
		".jpeg": true,
		".webp": true,
	},
}

// AllowedExtension reports whether filename carries an extension that is
// permitted for the given kind. Matching is case-insensitive.
func AllowedExtension(kind Kind, filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	return allowedExtensions[kind][ext]
}

// CheckExtension returns ErrUnsupportedExtension when the filename is
// not permitted for the kind. Backends call this before storing.
func CheckExtension(kind Kind, filename string) error {
	if !AllowedExtension(kind, filename) {
		return ErrUnsupportedExtension
	}
	return nil
}

// FileStore stores and retrieves uploaded files. Implementations must
// reject filenames whose extension is not allowed for the kind.
type FileStore interface {
	// Upload stores content and returns a URI for later retrieval.
	Upload(ctx context.Context, kind Kind, filename, contentType string, content io.Reader) (uri string, err error)

	// Load returns a reader for the file content. The caller closes it.
	Load(ctx context.Context, uri string) (io.ReadCloser, error)

	// Delete removes the file from storage.
	Delete(ctx context.Context, uri string) error
}
