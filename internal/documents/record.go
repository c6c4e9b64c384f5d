package documents

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
)

// ErrDecodeFailed indicates that a stored record could not be turned back into a Document.
var ErrDecodeFailed = errors.New("documents: record decode failed")

// Record is the persisted row backing a Document. Attachment maps are stored
// as JSON columns so the whole document is replaced in a single write.
type Record struct {
	ID               string         `gorm:"column:id;primaryKey;size:190;not null;index:idx_documents_owner_id,priority:2"`
	Owner            string         `gorm:"column:owner;size:190;not null;index:idx_documents_owner_id,priority:1"`
	Title            string         `gorm:"column:title;type:text;not null"`
	Description      string         `gorm:"column:description;type:text;not null"`
	CreatedAtSeconds int64          `gorm:"column:created_at_s;not null"`
	Texts            datatypes.JSON `gorm:"column:texts;not null"`
	Notes            datatypes.JSON `gorm:"column:notes;not null"`
	Canvases         datatypes.JSON `gorm:"column:canvases;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "documents"
}

// replaceableColumns lists every column an upsert overwrites. id and owner are
// the conflict key and never change.
var replaceableColumns = []string{"title", "description", "created_at_s", "texts", "notes", "canvases"}

func newRecord(document Document) (Record, error) {
	document = document.normalized()

	texts, err := json.Marshal(document.Texts)
	if err != nil {
		return Record{}, fmt.Errorf("encode texts: %w", err)
	}
	notes, err := json.Marshal(document.Notes)
	if err != nil {
		return Record{}, fmt.Errorf("encode notes: %w", err)
	}
	canvases, err := json.Marshal(document.Canvases)
	if err != nil {
		return Record{}, fmt.Errorf("encode canvases: %w", err)
	}

	return Record{
		ID:               document.ID,
		Owner:            document.Owner,
		Title:            document.Title,
		Description:      document.Description,
		CreatedAtSeconds: document.CreatedAtSeconds,
		Texts:            datatypes.JSON(texts),
		Notes:            datatypes.JSON(notes),
		Canvases:         datatypes.JSON(canvases),
	}, nil
}

// toDocument decodes the JSON columns. Every column is attempted so a broken
// column does not hide the others; on failure the returned Document carries
// the scalar columns and whatever decoded.
func (r Record) toDocument() (Document, error) {
	document := Document{
		ID:               r.ID,
		Owner:            r.Owner,
		Title:            r.Title,
		Description:      r.Description,
		CreatedAtSeconds: r.CreatedAtSeconds,
	}

	err := errors.Join(
		decodeColumn("texts", r.Texts, &document.Texts),
		decodeColumn("notes", r.Notes, &document.Notes),
		decodeColumn("canvases", r.Canvases, &document.Canvases),
	)
	return document.normalized(), err
}

func decodeColumn(column string, raw datatypes.JSON, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: column %s: %v", ErrDecodeFailed, column, err)
	}
	return nil
}
