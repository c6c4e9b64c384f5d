package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	"github.com/Arturr-H/Quicknote-backend/internal/auth"
	"github.com/Arturr-H/Quicknote-backend/internal/database"
	"github.com/Arturr-H/Quicknote-backend/internal/documents"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const firstDocumentID = "11111111-1111-4111-8111-111111111111"

// stubVerifier treats every token as the suid it names, except for the
// reserved tokens that trigger the failure outcomes.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	switch token {
	case "denied":
		return auth.Identity{}, auth.ErrUnauthorized
	case "broken":
		return auth.Identity{}, auth.ErrVerificationFailed
	}
	return auth.Identity{Owner: token}, nil
}

type testEnvironment struct {
	handler http.Handler
	service *documents.Service
	fs      afero.Fs
}

func newTestEnvironment(t *testing.T, requireOwned bool) testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	repository, err := documents.NewRepository(documents.RepositoryConfig{Database: db, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	fs := afero.NewMemMapFs()
	store, err := attachments.NewFilesystemStore(attachments.FilesystemStoreConfig{Fs: fs})
	if err != nil {
		t.Fatalf("failed to build attachment store: %v", err)
	}
	service, err := documents.NewService(documents.ServiceConfig{
		Repository:           repository,
		Attachments:          store,
		IDProvider:           documents.NewUUIDProvider(),
		RequireOwnedDocument: requireOwned,
	})
	if err != nil {
		t.Fatalf("failed to build documents service: %v", err)
	}
	gateway, err := auth.NewGateway(stubVerifier{})
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Authenticator:    gateway,
		DocumentsService: service,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return testEnvironment{handler: handler, service: service, fs: fs}
}

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(auth.TokenHeaderName, token)
	}
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(name, value)
	}
}

func (e testEnvironment) do(method, target, body string, options ...requestOption) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, option := range options {
		option(request)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}
