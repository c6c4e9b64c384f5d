package documents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxIdentifierLength = 190

	// DefaultTitle is applied when a document is created without a title.
	DefaultTitle = "Unnamed document"
	// DefaultDescription is applied when a document is created without a description.
	DefaultDescription = "No description provided"
)

var (
	// ErrInvalidDocumentID indicates that a document identifier is not a UUID.
	ErrInvalidDocumentID = errors.New("documents: invalid document id")
	// ErrInvalidOwner indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwner = errors.New("documents: invalid owner")
)

// DocumentID represents a validated document identifier in canonical UUID form.
// Blob names are "{documentId}-{attachmentId}", so the fixed width of the id
// keeps names of different documents apart.
type DocumentID string

// NewDocumentID parses raw input as a UUID and returns its canonical lowercase form.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocumentID, err)
	}
	return DocumentID(parsed.String()), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// Owner represents a validated owner identity (the suid issued by the identity service).
type Owner string

// NewOwner validates raw input and returns an Owner.
func NewOwner(rawInput string) (Owner, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwner)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwner, maxIdentifierLength)
	}
	return Owner(trimmed), nil
}

// String returns the underlying string identifier.
func (o Owner) String() string {
	return string(o)
}

// Position places an attachment on the document surface.
type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// TextSize is the box and font size of an inline text fragment.
type TextSize struct {
	Width    uint32 `json:"width"`
	Height   uint32 `json:"height"`
	FontSize uint32 `json:"font_size"`
}

// Size is the box of a sticky note.
type Size struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Text is an inline fragment whose payload lives inside the document record.
type Text struct {
	Position Position `json:"position"`
	Size     TextSize `json:"size"`
	Content  []byte   `json:"content"`
}

// Note is a sticky note. Content is only the initial value; the body written
// through the note blob endpoint is authoritative.
type Note struct {
	Position Position `json:"position"`
	Size     Size     `json:"size"`
	Content  []byte   `json:"content"`
}

// Canvas references a drawing stored as a blob under the canvas id.
type Canvas struct {
	Position Position `json:"position"`
	ID       string   `json:"id"`
}

// Document is the top-level container owned by exactly one identity.
type Document struct {
	ID               string            `json:"id"`
	Owner            string            `json:"owner"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	CreatedAtSeconds int64             `json:"created_at_s"`
	Texts            map[string]Text   `json:"texts"`
	Notes            map[string]Note   `json:"notes"`
	Canvases         map[string]Canvas `json:"canvases"`
}

// normalized returns a copy whose attachment maps are never nil.
func (d Document) normalized() Document {
	if d.Texts == nil {
		d.Texts = map[string]Text{}
	}
	if d.Notes == nil {
		d.Notes = map[string]Note{}
	}
	if d.Canvases == nil {
		d.Canvases = map[string]Canvas{}
	}
	return d
}

// CreateRequest carries the optional metadata supplied when creating a document.
type CreateRequest struct {
	Title       string
	Description string
}

// ListEntry is a single outcome of a list scan. Err is set when the stored
// record could not be decoded; Document is then only partially populated.
type ListEntry struct {
	Document Document
	Err      error
}
