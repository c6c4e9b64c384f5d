// Package attachments stores note bodies and canvas drawings outside the
// document database, addressed by kind, document id and attachment id.
package attachments

import "context"

// Store is a blob store. There is no relationship with document records: a
// blob may outlive its document, and a document may reference a blob that was
// never written.
type Store interface {
	// WriteBlob creates or fully replaces the blob. An empty payload is a
	// successful no-op that leaves any existing blob untouched.
	WriteBlob(ctx context.Context, key Key, payload []byte) error
	// ReadBlob returns the blob contents or ErrBlobNotFound.
	ReadBlob(ctx context.Context, key Key) ([]byte, error)
	// DeleteBlob removes the blob if it can. Failures are never reported.
	DeleteBlob(ctx context.Context, key Key)
}
