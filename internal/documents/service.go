package documents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	"go.uber.org/zap"
)

// AttachmentStore is the blob capability the service needs.
type AttachmentStore interface {
	WriteBlob(ctx context.Context, key attachments.Key, payload []byte) error
	ReadBlob(ctx context.Context, key attachments.Key) ([]byte, error)
	DeleteBlob(ctx context.Context, key attachments.Key)
}

// IDProvider issues identifiers for new documents.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the document lifecycle service.
type ServiceConfig struct {
	Repository  *Repository
	Attachments AttachmentStore
	IDProvider  IDProvider
	Clock       func() time.Time
	Logger      *zap.Logger
	// RequireOwnedDocument makes blob writes fail with ErrNotFound unless the
	// document exists and belongs to the caller.
	RequireOwnedDocument bool
}

// Service composes the repository and the attachment store into the
// operations exposed over HTTP.
type Service struct {
	repository           *Repository
	attachments          AttachmentStore
	idProvider           IDProvider
	clock                func() time.Time
	logger               *zap.Logger
	requireOwnedDocument bool
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository, nil)
	}
	if cfg.Attachments == nil {
		return nil, newServiceError(opServiceNew, "missing_attachment_store", errMissingStore, nil)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider, nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		repository:           cfg.Repository,
		attachments:          cfg.Attachments,
		idProvider:           cfg.IDProvider,
		clock:                clock,
		logger:               logger,
		requireOwnedDocument: cfg.RequireOwnedDocument,
	}, nil
}

// List returns every document of owner, with per-record decode outcomes.
func (s *Service) List(ctx context.Context, owner Owner) ([]ListEntry, error) {
	if s == nil || s.repository == nil {
		return nil, newServiceError(opList, "missing_repository", errMissingRepository, nil)
	}
	return s.repository.ListByOwner(ctx, owner)
}

// Get returns a single document of owner.
func (s *Service) Get(ctx context.Context, owner Owner, id DocumentID) (Document, error) {
	if s == nil || s.repository == nil {
		return Document{}, newServiceError(opGet, "missing_repository", errMissingRepository, nil)
	}
	return s.repository.GetByOwnerAndID(ctx, owner, id)
}

// Create stores a new empty document for owner, applying default metadata.
func (s *Service) Create(ctx context.Context, owner Owner, request CreateRequest) (Document, error) {
	if s == nil || s.repository == nil {
		return Document{}, newServiceError(opCreate, "missing_repository", errMissingRepository, nil)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("owner", owner.String()))
		return Document{}, newServiceError(opCreate, "id_generation_failed", nil, err)
	}
	documentID, err := NewDocumentID(id)
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("owner", owner.String()))
		return Document{}, newServiceError(opCreate, "id_generation_failed", nil, err)
	}

	title := strings.TrimSpace(request.Title)
	if title == "" {
		title = DefaultTitle
	}
	description := strings.TrimSpace(request.Description)
	if description == "" {
		description = DefaultDescription
	}

	document := Document{
		ID:               documentID.String(),
		Owner:            owner.String(),
		Title:            title,
		Description:      description,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}.normalized()

	if err := s.repository.Create(ctx, document); err != nil {
		return Document{}, err
	}
	return document, nil
}

// Upsert replaces or inserts the whole document. The id must be a UUID and is
// stored in canonical form. The stored owner is always the caller; an owner
// supplied in the document is ignored. A missing creation time keeps the stored
// value, or the current time for a new document.
func (s *Service) Upsert(ctx context.Context, owner Owner, document Document) (Document, error) {
	if s == nil || s.repository == nil {
		return Document{}, newServiceError(opUpsert, "missing_repository", errMissingRepository, nil)
	}
	id, err := NewDocumentID(document.ID)
	if err != nil {
		return Document{}, newServiceError(opUpsert, "invalid_document_id", ErrInvalidDocumentID, err)
	}

	document.ID = id.String()
	document.Owner = owner.String()
	if document.CreatedAtSeconds <= 0 {
		document.CreatedAtSeconds = s.clock().UTC().Unix()
		existing, err := s.repository.GetByOwnerAndID(ctx, owner, id)
		switch {
		case err == nil && existing.CreatedAtSeconds > 0:
			document.CreatedAtSeconds = existing.CreatedAtSeconds
		case err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDecodeFailed):
			return Document{}, err
		}
	}
	document = document.normalized()

	if err := s.repository.Upsert(ctx, document); err != nil {
		return Document{}, err
	}
	return document, nil
}

// Delete removes the document and then makes a best-effort attempt to remove
// the blob of every canvas and note the record referenced. Cleanup never
// changes the outcome.
func (s *Service) Delete(ctx context.Context, owner Owner, id DocumentID) error {
	if s == nil || s.repository == nil {
		return newServiceError(opDelete, "missing_repository", errMissingRepository, nil)
	}
	deleted, err := s.repository.Delete(ctx, owner, id)
	if err != nil {
		return err
	}
	for _, key := range attachmentKeys(deleted) {
		s.attachments.DeleteBlob(ctx, key)
	}
	return nil
}

// WriteAttachment stores the blob for one canvas or note.
func (s *Service) WriteAttachment(ctx context.Context, owner Owner, kind attachments.Kind, documentID DocumentID, attachmentID string, payload []byte) error {
	if s == nil || s.attachments == nil {
		return newServiceError(opWriteBlob, "missing_attachment_store", errMissingStore, nil)
	}
	key, err := attachments.NewKey(kind, documentID.String(), attachmentID)
	if err != nil {
		return newServiceError(opWriteBlob, "invalid_key", nil, err)
	}
	if s.requireOwnedDocument {
		if _, err := s.repository.GetByOwnerAndID(ctx, owner, documentID); err != nil {
			return err
		}
	}
	if err := s.attachments.WriteBlob(ctx, key, payload); err != nil {
		s.logError(opWriteBlob, "write_failed", err,
			zap.String("owner", owner.String()),
			zap.String("blob", key.Path()))
		return newServiceError(opWriteBlob, "write_failed", nil, err)
	}
	return nil
}

// ReadAttachment returns the blob for one canvas or note of a document owned by the caller.
func (s *Service) ReadAttachment(ctx context.Context, owner Owner, kind attachments.Kind, documentID DocumentID, attachmentID string) ([]byte, error) {
	if s == nil || s.attachments == nil {
		return nil, newServiceError(opReadBlob, "missing_attachment_store", errMissingStore, nil)
	}
	key, err := attachments.NewKey(kind, documentID.String(), attachmentID)
	if err != nil {
		return nil, newServiceError(opReadBlob, "invalid_key", nil, err)
	}
	if _, err := s.repository.GetByOwnerAndID(ctx, owner, documentID); err != nil {
		return nil, err
	}
	payload, err := s.attachments.ReadBlob(ctx, key)
	if errors.Is(err, attachments.ErrBlobNotFound) {
		return nil, newServiceError(opReadBlob, "blob_not_found", ErrNotFound, err)
	}
	if err != nil {
		s.logError(opReadBlob, "read_failed", err,
			zap.String("owner", owner.String()),
			zap.String("blob", key.Path()))
		return nil, newServiceError(opReadBlob, "read_failed", nil, err)
	}
	return payload, nil
}

// attachmentKeys lists the blob keys referenced by a document. A canvas is
// addressed by its map key and, when it differs, by its own id field. Ids that
// cannot form a key are skipped.
func attachmentKeys(document Document) []attachments.Key {
	seen := make(map[attachments.Key]struct{}, len(document.Canvases)+len(document.Notes))
	keys := make([]attachments.Key, 0, len(document.Canvases)+len(document.Notes))
	add := func(kind attachments.Kind, attachmentID string) {
		key, err := attachments.NewKey(kind, document.ID, attachmentID)
		if err != nil {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for canvasID, canvas := range document.Canvases {
		add(attachments.KindCanvases, canvasID)
		if canvas.ID != "" {
			add(attachments.KindCanvases, canvas.ID)
		}
	}
	for noteID := range document.Notes {
		add(attachments.KindNotes, noteID)
	}
	return keys
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	logger.Error("documents service error", attrs...)
}
