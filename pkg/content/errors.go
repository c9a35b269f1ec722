package content

import "errors"

// Standard content store errors.
//
// Implementations wrap these with the resource name so callers can match them
// with errors.Is:
//
//	if !exists {
//	    return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
//	}
var (
	// ErrContentNotFound indicates the requested resource does not exist or is
	// not a regular file (for example a directory).
	//
	// Protocol mapping:
	//   - HTTP: 404 Not Found
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidContentID indicates the identifier cannot name any resource,
	// for example an empty object key.
	ErrInvalidContentID = errors.New("invalid content ID")

	// ErrReadOnly indicates a write was attempted on a store opened read-only.
	ErrReadOnly = errors.New("content store is read-only")
)
