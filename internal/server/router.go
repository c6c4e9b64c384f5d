package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/Arturr-H/Quicknote-backend/internal/auth"
	"github.com/Arturr-H/Quicknote-backend/internal/documents"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	ownerContextKey = "quicknote_owner"

	defaultMaxConcurrentRequests = 4
	skippedRecordsHeader         = "X-Skipped-Records"
)

var (
	errMissingAuthenticator   = errors.New("authenticator dependency required")
	errMissingDocumentService = errors.New("documents service dependency required")

	errWildcardCredentialedOrigin = errors.New("cors: allowed origins must be explicit")
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, request *http.Request) (auth.Identity, error)
}

type Dependencies struct {
	Authenticator    Authenticator
	DocumentsService *documents.Service
	Logger           *zap.Logger
	// MaxConcurrentRequests bounds the number of requests served at once.
	// Excess requests wait until their context ends and then receive 503.
	MaxConcurrentRequests int64
	// AllowedOrigins receive credentialed CORS responses. When empty any
	// origin is allowed and credentials are never exposed.
	AllowedOrigins []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	if deps.DocumentsService == nil {
		return nil, errMissingDocumentService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := deps.MaxConcurrentRequests
	if limit <= 0 {
		limit = defaultMaxConcurrentRequests
	}

	corsHandler, err := corsMiddleware(deps.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsHandler)

	handler := &httpHandler{
		authenticator: deps.Authenticator,
		documents:     deps.DocumentsService,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(concurrencyLimiter(limit, logger))
	protected.Use(handler.authorizeRequest)

	protected.GET("/documents", handler.handleListDocuments)
	protected.POST("/documents", handler.handleCreateDocument)
	protected.PUT("/documents", handler.handleUpsertDocument)
	protected.GET("/documents/:id", handler.handleGetDocument)
	protected.DELETE("/documents/:id", handler.handleDeleteDocument)
	protected.PUT("/documents/:id/canvases/:attachmentId", handler.handleWriteCanvas)
	protected.PUT("/documents/:id/notes/:attachmentId", handler.handleWriteNote)
	protected.GET("/documents/:id/canvases/:attachmentId", handler.handleReadCanvas)
	protected.GET("/documents/:id/notes/:attachmentId", handler.handleReadNote)

	protected.GET("/get-documents", handler.handleListDocuments)
	protected.GET("/add-doc", handler.handleLegacyAddDocument)
	protected.GET("/set-doc", handler.handleLegacySetDocument)
	protected.GET("/get-doc", handler.handleLegacyGetDocument)
	protected.GET("/delete-doc", handler.handleLegacyDeleteDocument)
	protected.POST("/set-canvas", handler.handleLegacySetCanvas)
	protected.POST("/set-note", handler.handleLegacySetNote)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) (gin.HandlerFunc, error) {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			auth.TokenHeaderName,
			legacyDocumentHeader,
			legacyIDHeader,
			legacyTitleHeader,
			legacyDescriptionHeader,
			legacyDocumentIDHeader,
			"Content-Type",
		},
		ExposeHeaders: []string{skippedRecordsHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		if slices.Contains(allowedOrigins, "*") {
			return nil, errWildcardCredentialedOrigin
		}
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("cors: %w", err)
	}
	return cors.New(config), nil
}

// concurrencyLimiter admits at most limit requests at a time.
func concurrencyLimiter(limit int64, logger *zap.Logger) gin.HandlerFunc {
	slots := semaphore.NewWeighted(limit)
	return func(c *gin.Context) {
		if err := slots.Acquire(c.Request.Context(), 1); err != nil {
			logger.Warn("request abandoned while waiting for a slot",
				zap.String("path", c.FullPath()),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server_busy"})
			return
		}
		defer slots.Release(1)
		c.Next()
	}
}

type httpHandler struct {
	authenticator Authenticator
	documents     *documents.Service
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	identity, err := h.authenticator.Authenticate(c.Request.Context(), c.Request)
	if err != nil {
		h.logAuthenticationFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	owner, err := documents.NewOwner(identity.Owner)
	if err != nil {
		h.logger.Warn("identity carried an unusable owner", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(ownerContextKey, owner)
	c.Next()
}

func (h *httpHandler) logAuthenticationFailure(err error) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		h.logger.Debug("token verification failed", zap.Error(err))
	case errors.Is(err, auth.ErrUnauthorized):
		h.logger.Info("token verification failed", zap.Error(err))
	default:
		h.logger.Warn("token verification failed", zap.Error(err))
	}
}

func ownerFromContext(c *gin.Context) (documents.Owner, bool) {
	value, ok := c.Get(ownerContextKey)
	if !ok {
		return "", false
	}
	owner, ok := value.(documents.Owner)
	return owner, ok && owner != ""
}
