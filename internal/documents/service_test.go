package documents

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, ids []string, requireOwned bool) (*Service, *recordingStore) {
	t.Helper()
	repository, _ := newTestRepository(t)
	store := newRecordingStore()
	service, err := NewService(ServiceConfig{
		Repository:  repository,
		Attachments: store,
		IDProvider:  &staticIDProvider{ids: ids},
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
		Logger:               zap.NewNop(),
		RequireOwnedDocument: requireOwned,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, store
}

func TestServiceCreateAppliesDefaults(t *testing.T) {
	service, _ := newTestService(t, []string{"f7e5a0c2-0000-4000-8000-00000000f7e5"}, true)
	ctx := context.Background()
	owner := mustOwner(t, "suid-1")

	created, err := service.Create(ctx, owner, CreateRequest{Title: "Plan"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	expected := Document{
		ID:               "f7e5a0c2-0000-4000-8000-00000000f7e5",
		Owner:            "suid-1",
		Title:            "Plan",
		Description:      DefaultDescription,
		CreatedAtSeconds: 1700000000,
		Texts:            map[string]Text{},
		Notes:            map[string]Note{},
		Canvases:         map[string]Canvas{},
	}
	if !reflect.DeepEqual(created, expected) {
		t.Fatalf("unexpected created document:\n got %#v\nwant %#v", created, expected)
	}

	stored, err := service.Get(ctx, owner, mustDocumentID(t, "f7e5a0c2-0000-4000-8000-00000000f7e5"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !reflect.DeepEqual(stored, expected) {
		t.Fatalf("stored document differs from created document")
	}
}

func TestServiceCreateDefaultsBothFields(t *testing.T) {
	service, _ := newTestService(t, []string{"f7e5a0c2-0000-4000-8000-00000000f7e5"}, true)

	created, err := service.Create(context.Background(), mustOwner(t, "suid-1"), CreateRequest{Title: "   "})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Title != DefaultTitle || created.Description != DefaultDescription {
		t.Fatalf("expected default metadata, got %q / %q", created.Title, created.Description)
	}
}

func TestServiceCreateFailsWhenIDGenerationFails(t *testing.T) {
	service, _ := newTestService(t, nil, true)

	_, err := service.Create(context.Background(), mustOwner(t, "suid-1"), CreateRequest{})
	if !errors.Is(err, errExhaustedIDs) {
		t.Fatalf("expected id generation error, got %v", err)
	}
}

func TestServiceUpsertForcesCallerAsOwner(t *testing.T) {
	service, _ := newTestService(t, nil, true)
	ctx := context.Background()
	document := sampleDocument(firstDocumentID, "someone-else")

	saved, err := service.Upsert(ctx, mustOwner(t, "suid-1"), document)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if saved.Owner != "suid-1" {
		t.Fatalf("expected caller to own the document, got %q", saved.Owner)
	}
	if _, err := service.Get(ctx, mustOwner(t, "someone-else"), mustDocumentID(t, firstDocumentID)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("body-supplied owner must be ignored, got %v", err)
	}
}

func TestServiceUpsertStampsMissingCreationTime(t *testing.T) {
	service, _ := newTestService(t, nil, true)
	document := sampleDocument(firstDocumentID, "")
	document.CreatedAtSeconds = 0

	saved, err := service.Upsert(context.Background(), mustOwner(t, "suid-1"), document)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if saved.CreatedAtSeconds != 1700000000 {
		t.Fatalf("expected creation time to be stamped, got %d", saved.CreatedAtSeconds)
	}
}

func TestServiceUpsertKeepsStoredCreationTime(t *testing.T) {
	service, _ := newTestService(t, nil, true)
	ctx := context.Background()
	owner := mustOwner(t, "suid-1")
	original := sampleDocument(firstDocumentID, "")
	original.CreatedAtSeconds = 1600000000
	if _, err := service.Upsert(ctx, owner, original); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	update := sampleDocument(firstDocumentID, "")
	update.CreatedAtSeconds = 0
	update.Title = "Renamed"
	saved, err := service.Upsert(ctx, owner, update)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if saved.CreatedAtSeconds != 1600000000 {
		t.Fatalf("expected stored creation time to survive, got %d", saved.CreatedAtSeconds)
	}
}

func TestServiceUpsertRejectsMissingID(t *testing.T) {
	service, _ := newTestService(t, nil, true)

	_, err := service.Upsert(context.Background(), mustOwner(t, "suid-1"), Document{Title: "no id"})
	if !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("expected invalid document id, got %v", err)
	}
}

func TestServiceUpsertRejectsNonUUIDIDs(t *testing.T) {
	service, _ := newTestService(t, nil, true)
	ctx := context.Background()

	for _, rawID := range []string{"a", "a-b", "doc-1", "../escape"} {
		document := sampleDocument(rawID, "")
		if _, err := service.Upsert(ctx, mustOwner(t, "suid-1"), document); !errors.Is(err, ErrInvalidDocumentID) {
			t.Fatalf("expected invalid document id for %q, got %v", rawID, err)
		}
	}
}

func TestServiceUpsertStoresCanonicalID(t *testing.T) {
	service, _ := newTestService(t, nil, true)
	ctx := context.Background()
	owner := mustOwner(t, "suid-1")

	saved, err := service.Upsert(ctx, owner, sampleDocument(strings.ToUpper(firstDocumentID), ""))
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if saved.ID != firstDocumentID {
		t.Fatalf("expected canonical id, got %q", saved.ID)
	}
	if _, err := service.Get(ctx, owner, mustDocumentID(t, firstDocumentID)); err != nil {
		t.Fatalf("get by canonical id failed: %v", err)
	}
}

func TestServiceAttachmentsOfDistinctDocumentsNeverShareABlob(t *testing.T) {
	service, store := newTestService(t, nil, true)
	ctx := context.Background()
	victim := mustOwner(t, "suid-victim")
	attacker := mustOwner(t, "suid-attacker")
	const attackerDocumentID = "11111111-1111-4111-8111-11111111111b"

	if _, err := service.Upsert(ctx, victim, sampleDocument(firstDocumentID, "")); err != nil {
		t.Fatalf("victim upsert failed: %v", err)
	}
	if err := service.WriteAttachment(ctx, victim, attachments.KindNotes, firstDocumentID, "c", []byte("SECRET")); err != nil {
		t.Fatalf("victim write failed: %v", err)
	}
	if _, err := service.Upsert(ctx, attacker, sampleDocument(attackerDocumentID, "")); err != nil {
		t.Fatalf("attacker upsert failed: %v", err)
	}

	if _, err := service.ReadAttachment(ctx, attacker, attachments.KindNotes, attackerDocumentID, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("attacker must not reach the victim blob, got %v", err)
	}
	if err := service.WriteAttachment(ctx, attacker, attachments.KindNotes, DocumentID("a"), "b-c", []byte("OVERWRITTEN")); !errors.Is(err, attachments.ErrInvalidKey) {
		t.Fatalf("expected invalid key for a non-uuid document, got %v", err)
	}

	payload, err := service.ReadAttachment(ctx, victim, attachments.KindNotes, firstDocumentID, "c")
	if err != nil {
		t.Fatalf("victim read failed: %v", err)
	}
	if string(payload) != "SECRET" {
		t.Fatalf("victim blob was modified: %q", payload)
	}
	if len(store.blobs) != 1 {
		t.Fatalf("expected a single blob, got %d", len(store.blobs))
	}
}

func TestServiceCreateRejectsMalformedGeneratedID(t *testing.T) {
	service, _ := newTestService(t, []string{"not-a-uuid"}, true)

	_, err := service.Create(context.Background(), mustOwner(t, "suid-1"), CreateRequest{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "documents.create.id_generation_failed" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceDeleteCleansUpEveryAttachmentBlob(t *testing.T) {
	service, store := newTestService(t, nil, true)
	ctx := context.Background()
	owner := mustOwner(t, "suid-1")

	document := sampleDocument(firstDocumentID, "suid-1")
	document.Canvases["canvas-2"] = Canvas{ID: "canvas-2-drawing"}
	if _, err := service.Upsert(ctx, owner, document); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := service.WriteAttachment(ctx, owner, attachments.KindCanvases, firstDocumentID, "canvas-1", []byte("strokes")); err != nil {
		t.Fatalf("write canvas failed: %v", err)
	}
	if err := service.WriteAttachment(ctx, owner, attachments.KindNotes, firstDocumentID, "note-1", []byte("body")); err != nil {
		t.Fatalf("write note failed: %v", err)
	}

	if err := service.Delete(ctx, owner, mustDocumentID(t, firstDocumentID)); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	want := map[attachments.Key]bool{
		{Kind: attachments.KindCanvases, DocumentID: firstDocumentID, AttachmentID: "canvas-1"}:         true,
		{Kind: attachments.KindCanvases, DocumentID: firstDocumentID, AttachmentID: "canvas-2"}:         true,
		{Kind: attachments.KindCanvases, DocumentID: firstDocumentID, AttachmentID: "canvas-2-drawing"}: true,
		{Kind: attachments.KindNotes, DocumentID: firstDocumentID, AttachmentID: "note-1"}:              true,
	}
	if len(store.deleted) != len(want) {
		t.Fatalf("expected %d cleanup attempts, got %d: %v", len(want), len(store.deleted), store.deleted)
	}
	for _, key := range store.deleted {
		if !want[key] {
			t.Fatalf("unexpected cleanup of %v", key)
		}
	}
	if len(store.blobs) != 0 {
		t.Fatalf("expected written blobs to be removed, %d left", len(store.blobs))
	}
	if _, err := service.Get(ctx, owner, mustDocumentID(t, firstDocumentID)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestServiceDeleteCleansUpBlobsOfPartiallyBrokenRecord(t *testing.T) {
	repository, db := newTestRepository(t)
	store := newRecordingStore()
	service, err := NewService(ServiceConfig{
		Repository:  repository,
		Attachments: store,
		IDProvider:  NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	ctx := context.Background()
	owner := mustOwner(t, "suid-1")
	if _, err := service.Upsert(ctx, owner, sampleDocument(firstDocumentID, "")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := db.Exec("UPDATE documents SET texts = ? WHERE id = ?", "not-json", firstDocumentID).Error; err != nil {
		t.Fatalf("failed to corrupt record: %v", err)
	}

	if err := service.Delete(ctx, owner, mustDocumentID(t, firstDocumentID)); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	want := map[attachments.Key]bool{
		{Kind: attachments.KindCanvases, DocumentID: firstDocumentID, AttachmentID: "canvas-1"}: true,
		{Kind: attachments.KindNotes, DocumentID: firstDocumentID, AttachmentID: "note-1"}:      true,
	}
	if len(store.deleted) != len(want) {
		t.Fatalf("expected %d cleanup attempts, got %v", len(want), store.deleted)
	}
	for _, key := range store.deleted {
		if !want[key] {
			t.Fatalf("unexpected cleanup of %v", key)
		}
	}
}

func TestServiceDeleteMissingDocumentSkipsCleanup(t *testing.T) {
	service, store := newTestService(t, nil, true)

	err := service.Delete(context.Background(), mustOwner(t, "suid-1"), mustDocumentID(t, "99999999-9999-4999-8999-999999999999"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("cleanup must not run when nothing was deleted")
	}
}

func TestServiceWriteAttachmentRequiresOwnedDocument(t *testing.T) {
	service, store := newTestService(t, nil, true)
	ctx := context.Background()
	if _, err := service.Upsert(ctx, mustOwner(t, "suid-1"), sampleDocument(firstDocumentID, "")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	err := service.WriteAttachment(ctx, mustOwner(t, "suid-2"), attachments.KindCanvases, firstDocumentID, "canvas-1", []byte("x"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for a foreign document, got %v", err)
	}
	if len(store.blobs) != 0 {
		t.Fatalf("foreign write must not reach the store")
	}
}

func TestServiceWriteAttachmentWithoutOwnershipCheck(t *testing.T) {
	service, store := newTestService(t, nil, false)

	err := service.WriteAttachment(context.Background(), mustOwner(t, "suid-1"), attachments.KindNotes, "0000aaaa-0000-4000-8000-00000000aaaa", "note-1", []byte("x"))
	if err != nil {
		t.Fatalf("expected write to succeed without ownership check, got %v", err)
	}
	if len(store.blobs) != 1 {
		t.Fatalf("expected blob to be written")
	}
}

func TestServiceWriteAttachmentSurfacesStoreFailure(t *testing.T) {
	service, store := newTestService(t, nil, false)
	store.writeErr = attachments.ErrIOFailure

	err := service.WriteAttachment(context.Background(), mustOwner(t, "suid-1"), attachments.KindNotes, firstDocumentID, "note-1", []byte("x"))
	if !errors.Is(err, attachments.ErrIOFailure) {
		t.Fatalf("expected io failure, got %v", err)
	}
}

func TestServiceWriteAttachmentRejectsInvalidKey(t *testing.T) {
	service, _ := newTestService(t, nil, false)

	err := service.WriteAttachment(context.Background(), mustOwner(t, "suid-1"), attachments.KindNotes, firstDocumentID, "../escape", []byte("x"))
	if !errors.Is(err, attachments.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}

func TestServiceReadAttachment(t *testing.T) {
	service, _ := newTestService(t, nil, true)
	ctx := context.Background()
	owner := mustOwner(t, "suid-1")
	if _, err := service.Upsert(ctx, owner, sampleDocument(firstDocumentID, "")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := service.WriteAttachment(ctx, owner, attachments.KindNotes, firstDocumentID, "note-1", []byte("body")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	payload, err := service.ReadAttachment(ctx, owner, attachments.KindNotes, firstDocumentID, "note-1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(payload) != "body" {
		t.Fatalf("unexpected payload %q", payload)
	}

	if _, err := service.ReadAttachment(ctx, owner, attachments.KindCanvases, firstDocumentID, "note-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("kinds must not share keys, got %v", err)
	}
	if _, err := service.ReadAttachment(ctx, mustOwner(t, "suid-2"), attachments.KindNotes, firstDocumentID, "note-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign owner must not read the blob, got %v", err)
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	repository, _ := newTestRepository(t)
	testCases := []struct {
		name     string
		config   ServiceConfig
		wantCode string
	}{
		{
			name:     "missing-repository",
			config:   ServiceConfig{Attachments: newRecordingStore(), IDProvider: NewUUIDProvider()},
			wantCode: "documents.service.new.missing_repository",
		},
		{
			name:     "missing-store",
			config:   ServiceConfig{Repository: repository, IDProvider: NewUUIDProvider()},
			wantCode: "documents.service.new.missing_attachment_store",
		},
		{
			name:     "missing-id-provider",
			config:   ServiceConfig{Repository: repository, Attachments: newRecordingStore()},
			wantCode: "documents.service.new.missing_id_provider",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewService(testCase.config)
			var serviceErr *ServiceError
			if !errors.As(err, &serviceErr) || serviceErr.Code() != testCase.wantCode {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestUUIDProviderIssuesDistinctIDs(t *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second || len(first) != 36 {
		t.Fatalf("unexpected ids %q and %q", first, second)
	}
}
