package documents

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultOperationTimeout = 5 * time.Second

var noOpLogger = zap.NewNop()

// RepositoryConfig describes the dependencies of a Repository.
type RepositoryConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
	// Timeout bounds every database round trip. Zero selects the default.
	Timeout time.Duration
}

// Repository performs owner-scoped CRUD over document records. Every query
// filters on owner, so a caller can never observe or mutate another owner's row.
type Repository struct {
	db      *gorm.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewRepository validates the configuration and returns a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opRepositoryNew, "missing_database", errMissingDatabase, nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &Repository{
		db:      cfg.Database,
		logger:  logger,
		timeout: timeout,
	}, nil
}

// ListByOwner returns one entry per stored record of owner. Records that fail
// to decode are reported through ListEntry.Err instead of aborting the scan.
func (r *Repository) ListByOwner(ctx context.Context, owner Owner) ([]ListEntry, error) {
	if r == nil || r.db == nil {
		return nil, newServiceError(opList, "missing_database", errMissingDatabase, nil)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var records []Record
	if err := r.db.WithContext(ctx).
		Where("owner = ?", owner.String()).
		Order("created_at_s DESC").
		Order("id").
		Find(&records).Error; err != nil {
		r.logError(opList, "query_failed", err, zap.String("owner", owner.String()))
		return nil, newServiceError(opList, "query_failed", ErrStoreUnavailable, err)
	}

	entries := make([]ListEntry, 0, len(records))
	for _, record := range records {
		document, err := record.toDocument()
		entries = append(entries, ListEntry{Document: document, Err: err})
	}
	return entries, nil
}

// GetByOwnerAndID loads a single document matching both owner and id.
func (r *Repository) GetByOwnerAndID(ctx context.Context, owner Owner, id DocumentID) (Document, error) {
	if r == nil || r.db == nil {
		return Document{}, newServiceError(opGet, "missing_database", errMissingDatabase, nil)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var record Record
	err := r.db.WithContext(ctx).
		Where("owner = ? AND id = ?", owner.String(), id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, newServiceError(opGet, "not_found", ErrNotFound, nil)
	}
	if err != nil {
		r.logError(opGet, "query_failed", err,
			zap.String("owner", owner.String()),
			zap.String("document_id", id.String()))
		return Document{}, newServiceError(opGet, "query_failed", ErrStoreUnavailable, err)
	}

	document, err := record.toDocument()
	if err != nil {
		r.logError(opGet, "decode_failed", err,
			zap.String("owner", owner.String()),
			zap.String("document_id", id.String()))
		return Document{}, newServiceError(opGet, "decode_failed", ErrDecodeFailed, err)
	}
	return document, nil
}

// Create inserts a new record. An existing row with the same id, regardless of
// owner, is left untouched and reported as ErrWriteConflict.
func (r *Repository) Create(ctx context.Context, document Document) error {
	if r == nil || r.db == nil {
		return newServiceError(opCreate, "missing_database", errMissingDatabase, nil)
	}
	record, err := newRecord(document)
	if err != nil {
		return newServiceError(opCreate, "encode_failed", nil, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		r.logError(opCreate, "insert_failed", result.Error,
			zap.String("owner", record.Owner),
			zap.String("document_id", record.ID))
		return newServiceError(opCreate, "insert_failed", ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opCreate, "duplicate_id", ErrWriteConflict, nil)
	}
	return nil
}

// Upsert inserts the document or replaces every mutable column of the existing
// row with the same id. The replace only applies when the stored owner equals
// document.Owner; otherwise nothing is written and ErrWriteConflict is
// returned. The whole decision is one statement, so concurrent upserts of the
// same (owner, id) cannot produce duplicate rows.
func (r *Repository) Upsert(ctx context.Context, document Document) error {
	if r == nil || r.db == nil {
		return newServiceError(opUpsert, "missing_database", errMissingDatabase, nil)
	}
	record, err := newRecord(document)
	if err != nil {
		return newServiceError(opUpsert, "encode_failed", nil, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(replaceableColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "documents.owner = excluded.owner"},
			}},
		}).
		Create(&record)
	if result.Error != nil {
		r.logError(opUpsert, "write_failed", result.Error,
			zap.String("owner", record.Owner),
			zap.String("document_id", record.ID))
		return newServiceError(opUpsert, "write_failed", ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		r.loggerOrDefault().Warn("document upsert rejected",
			zap.String("owner", record.Owner),
			zap.String("document_id", record.ID))
		return newServiceError(opUpsert, "owned_elsewhere", ErrWriteConflict, nil)
	}
	return nil
}

// Delete removes the matching record and returns it as it was stored, so the
// caller can clean up the attachments it referenced.
func (r *Repository) Delete(ctx context.Context, owner Owner, id DocumentID) (Document, error) {
	if r == nil || r.db == nil {
		return Document{}, newServiceError(opDelete, "missing_database", errMissingDatabase, nil)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var deleted Record
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner = ? AND id = ?", owner.String(), id.String()).
			Take(&deleted).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDelete, "not_found", ErrNotFound, nil)
		}
		if err != nil {
			r.logError(opDelete, "select_failed", err,
				zap.String("owner", owner.String()),
				zap.String("document_id", id.String()))
			return newServiceError(opDelete, "select_failed", ErrStoreUnavailable, err)
		}

		result := tx.Where("owner = ? AND id = ?", owner.String(), id.String()).Delete(&Record{})
		if result.Error != nil {
			r.logError(opDelete, "delete_failed", result.Error,
				zap.String("owner", owner.String()),
				zap.String("document_id", id.String()))
			return newServiceError(opDelete, "delete_failed", ErrStoreUnavailable, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opDelete, "not_found", ErrNotFound, nil)
		}
		return nil
	})
	if txErr != nil {
		return Document{}, txErr
	}

	document, err := deleted.toDocument()
	if err != nil {
		// The row is gone either way; report what could be decoded.
		r.loggerOrDefault().Warn("deleted document could not be decoded",
			zap.String("owner", owner.String()),
			zap.String("document_id", id.String()),
			zap.Error(err))
	}
	return document, nil
}

func (r *Repository) loggerOrDefault() *zap.Logger {
	if r == nil || r.logger == nil {
		return noOpLogger
	}
	return r.logger
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.loggerOrDefault().Error("documents repository error", attrs...)
}
