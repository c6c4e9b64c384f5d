package documents

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const firstDocumentID = "11111111-1111-4111-8111-111111111111"

var errExhaustedIDs = errors.New("exhausted ids")

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "documents.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// newPooledTestRepository opens a database that allows several connections at
// once so concurrent writers really contend on the file.
func newPooledTestRepository(t *testing.T, connections int) (*Repository, *gorm.DB) {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "documents.db")
	dsn := databasePath + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(connections)
	sqlDB.SetMaxIdleConns(connections)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	repository, err := NewRepository(RepositoryConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	return repository, db
}

func newTestRepository(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db := newTestDatabase(t)
	repository, err := NewRepository(RepositoryConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	return repository, db
}

func mustOwner(t *testing.T, value string) Owner {
	t.Helper()
	owner, err := NewOwner(value)
	if err != nil {
		t.Fatalf("unexpected owner error: %v", err)
	}
	return owner
}

func mustDocumentID(t *testing.T, value string) DocumentID {
	t.Helper()
	id, err := NewDocumentID(value)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func sampleDocument(id, owner string) Document {
	return Document{
		ID:               id,
		Owner:            owner,
		Title:            "Plan",
		Description:      "Quarterly plan",
		CreatedAtSeconds: 1700000000,
		Texts: map[string]Text{
			"text-1": {
				Position: Position{X: 10, Y: -4},
				Size:     TextSize{Width: 200, Height: 40, FontSize: 14},
				Content:  []byte("hello"),
			},
		},
		Notes: map[string]Note{
			"note-1": {
				Position: Position{X: 1, Y: 2},
				Size:     Size{Width: 120, Height: 120},
				Content:  []byte("initial"),
			},
		},
		Canvases: map[string]Canvas{
			"canvas-1": {Position: Position{X: 5, Y: 5}, ID: "canvas-1"},
		},
	}
}

type staticIDProvider struct {
	mu    sync.Mutex
	ids   []string
	index int
}

func (p *staticIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index >= len(p.ids) {
		return "", errExhaustedIDs
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

type recordingStore struct {
	mu       sync.Mutex
	blobs    map[attachments.Key][]byte
	deleted  []attachments.Key
	writeErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{blobs: map[attachments.Key][]byte{}}
}

func (s *recordingStore) WriteBlob(_ context.Context, key attachments.Key, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if len(payload) == 0 {
		return nil
	}
	s.blobs[key] = append([]byte(nil), payload...)
	return nil
}

func (s *recordingStore) ReadBlob(_ context.Context, key attachments.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.blobs[key]
	if !ok {
		return nil, attachments.ErrBlobNotFound
	}
	return payload, nil
}

func (s *recordingStore) DeleteBlob(_ context.Context, key attachments.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	delete(s.blobs, key)
}
