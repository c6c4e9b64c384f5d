package attachments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

var errMissingRoot = errors.New("attachments: root directory required")

// FilesystemStoreConfig configures a FilesystemStore. When Fs is nil the store
// is rooted at Root on the host filesystem.
type FilesystemStoreConfig struct {
	Fs     afero.Fs
	Root   string
	Logger *zap.Logger
}

// FilesystemStore keeps each blob in its own file at {kind}/{documentId}-{attachmentId}.
type FilesystemStore struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewFilesystemStore builds the store and makes sure every kind directory exists.
func NewFilesystemStore(cfg FilesystemStoreConfig) (*FilesystemStore, error) {
	fs := cfg.Fs
	if fs == nil {
		root := strings.TrimSpace(cfg.Root)
		if root == "" {
			return nil, errMissingRoot
		}
		if err := os.MkdirAll(root, dirPermissions); err != nil {
			return nil, fmt.Errorf("%w: create root: %v", ErrIOFailure, err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), root)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, kind := range Kinds() {
		if err := fs.MkdirAll(string(kind), dirPermissions); err != nil {
			return nil, fmt.Errorf("%w: create %s directory: %v", ErrIOFailure, kind, err)
		}
	}
	return &FilesystemStore{fs: fs, logger: logger}, nil
}

// WriteBlob writes to a temporary file beside the target and renames it into
// place, so readers see either the old or the new blob.
func (s *FilesystemStore) WriteBlob(_ context.Context, key Key, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	dir := string(key.Kind)
	if err := s.fs.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	temp, err := afero.TempFile(s.fs, dir, "."+key.Name()+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	tempName := temp.Name()
	if _, err := temp.Write(payload); err != nil {
		_ = temp.Close()
		_ = s.fs.Remove(tempName)
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := temp.Close(); err != nil {
		_ = s.fs.Remove(tempName)
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := s.fs.Chmod(tempName, filePermissions); err != nil {
		s.logger.Debug("blob chmod failed", zap.String("path", tempName), zap.Error(err))
	}
	if err := s.fs.Rename(tempName, key.Path()); err != nil {
		_ = s.fs.Remove(tempName)
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return nil
}

// ReadBlob returns the stored bytes.
func (s *FilesystemStore) ReadBlob(_ context.Context, key Key) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, key.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key.Path())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return data, nil
}

// DeleteBlob removes the blob file, ignoring any failure.
func (s *FilesystemStore) DeleteBlob(_ context.Context, key Key) {
	if err := s.fs.Remove(key.Path()); err != nil {
		s.logger.Debug("blob delete skipped", zap.String("path", key.Path()), zap.Error(err))
	}
}
