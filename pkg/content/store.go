package content

import (
	"context"
	"io"
)

// ContentID names a resource inside a content store.
//
// The handler builds it by concatenating the configured root with the request
// path, so the format depends on the backend:
//   - Filesystem: a path such as "/srv/www/index.html"
//   - S3: an object key such as "site/index.html"
//   - Badger: a key such as "/index.html"
type ContentID string

// ContentStore is the read side of a static content backend.
//
// The server only ever reads content: it asks for the size to build the
// Content-Length header and then streams the bytes. Anything that is not a
// regular resource (directories, prefixes) is reported as ErrContentNotFound.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type ContentStore interface {
	// ReadContent returns a reader positioned at the start of the content.
	// The caller must close it.
	//
	// Returns ErrContentNotFound if the resource does not exist.
	ReadContent(ctx context.Context, id ContentID) (io.ReadCloser, error)

	// GetContentSize returns the size of the content in bytes.
	//
	// Returns ErrContentNotFound if the resource does not exist or is not a
	// regular file.
	GetContentSize(ctx context.Context, id ContentID) (uint64, error)

	// ContentExists reports whether a regular resource exists. A missing
	// resource is (false, nil), not an error.
	ContentExists(ctx context.Context, id ContentID) (bool, error)

	// Close releases backend resources. The store must not be used afterwards.
	Close() error
}

// WritableContentStore is implemented by backends that can be seeded by the
// server itself, such as the embedded badger store.
type WritableContentStore interface {
	ContentStore

	// WriteContent stores data under id, replacing any previous value.
	WriteContent(ctx context.Context, id ContentID, data []byte) error
}
