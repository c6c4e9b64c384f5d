package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no document matched both owner and id.
	ErrNotFound = errors.New("documents: not found")
	// ErrStoreUnavailable indicates that the database could not serve the query.
	ErrStoreUnavailable = errors.New("documents: store unavailable")
	// ErrWriteConflict indicates that a write collided with an existing record
	// the caller does not own, or with a concurrent insert of the same id.
	ErrWriteConflict = errors.New("documents: write conflict")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingRepository = errors.New("repository is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingStore      = errors.New("attachment store is required")
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opRepositoryNew = "documents.repository.new"
	opServiceNew    = "documents.service.new"
	opList          = "documents.list"
	opGet           = "documents.get"
	opCreate        = "documents.create"
	opUpsert        = "documents.upsert"
	opDelete        = "documents.delete"
	opWriteBlob     = "documents.write_attachment"
	opReadBlob      = "documents.read_attachment"
)

// newServiceError builds a coded error that matches kind with errors.Is and
// keeps cause in the chain.
func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	var err error
	switch {
	case kind != nil && cause != nil && !errors.Is(cause, kind):
		err = fmt.Errorf("%w: %w", kind, cause)
	case cause != nil:
		err = cause
	default:
		err = kind
	}
	return &ServiceError{code: code, err: err}
}
