package attachments

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidKey indicates an unknown kind or an id that cannot be used as a blob name.
	ErrInvalidKey = errors.New("attachments: invalid key")
	// ErrIOFailure indicates that a blob could not be written or read.
	ErrIOFailure = errors.New("attachments: io failure")
	// ErrBlobNotFound indicates that no blob exists at the key.
	ErrBlobNotFound = errors.New("attachments: blob not found")
)

// Kind partitions the blob key space. The same ids under different kinds
// address different blobs.
type Kind string

const (
	KindCanvases Kind = "canvases"
	KindNotes    Kind = "notes"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindCanvases, KindNotes}
}

// ParseKind validates a raw kind name.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindCanvases:
		return KindCanvases, nil
	case KindNotes:
		return KindNotes, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, raw)
	}
}

// Key addresses a single blob.
type Key struct {
	Kind         Kind
	DocumentID   string
	AttachmentID string
}

// NewKey validates the parts of a blob key.
func NewKey(kind Kind, documentID, attachmentID string) (Key, error) {
	if kind != KindCanvases && kind != KindNotes {
		return Key{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, kind)
	}
	documentID, err := canonicalDocumentID(documentID)
	if err != nil {
		return Key{}, err
	}
	attachmentID = strings.TrimSpace(attachmentID)
	if err := validateSegment("attachment id", attachmentID); err != nil {
		return Key{}, err
	}
	return Key{Kind: kind, DocumentID: documentID, AttachmentID: attachmentID}, nil
}

// canonicalDocumentID requires a UUID. A fixed-width prefix is what keeps
// "{documentId}-{attachmentId}" names of different documents from colliding.
func canonicalDocumentID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty document id", ErrInvalidKey)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: document id is not a uuid: %v", ErrInvalidKey, err)
	}
	return parsed.String(), nil
}

// Name is the blob file name.
func (k Key) Name() string {
	return k.DocumentID + "-" + k.AttachmentID
}

// Path is the slash-separated location relative to the store root.
func (k Key) Path() string {
	return path.Join(string(k.Kind), k.Name())
}

func validateSegment(label, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: empty %s", ErrInvalidKey, label)
	case len(value) > maxIdentifierLength:
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidKey, label, maxIdentifierLength)
	case strings.ContainsAny(value, `/\`), strings.Contains(value, ".."):
		return fmt.Errorf("%w: %s contains a path separator", ErrInvalidKey, label)
	}
	return nil
}
