package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	"github.com/Arturr-H/Quicknote-backend/internal/documents"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxBlobBytes    = 32 << 20
	blobContentType = "application/octet-stream"
)

type createDocumentPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	entries, err := h.documents.List(c.Request.Context(), owner)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result := make([]documents.Document, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		if entry.Err != nil {
			skipped++
			h.logger.Warn("skipping undecodable document",
				zap.String("owner", owner.String()),
				zap.String("document_id", entry.Document.ID),
				zap.Error(entry.Err))
			continue
		}
		result = append(result, entry.Document)
	}

	c.Header(skippedRecordsHeader, strconv.Itoa(skipped))
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var payload createDocumentPayload
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.createDocument(c, owner, documents.CreateRequest{Title: payload.Title, Description: payload.Description})
}

func (h *httpHandler) createDocument(c *gin.Context, owner documents.Owner, request documents.CreateRequest) {
	document, err := h.documents.Create(c.Request.Context(), owner, request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

func (h *httpHandler) handleUpsertDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var document documents.Document
	if err := c.ShouldBindJSON(&document); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.upsertDocument(c, owner, document)
}

func (h *httpHandler) upsertDocument(c *gin.Context, owner documents.Owner, document documents.Document) {
	saved, err := h.documents.Upsert(c.Request.Context(), owner, document)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.getDocument(c, owner, c.Param("id"))
}

func (h *httpHandler) getDocument(c *gin.Context, owner documents.Owner, rawID string) {
	id, err := documents.NewDocumentID(rawID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	document, err := h.documents.Get(c.Request.Context(), owner, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

func (h *httpHandler) handleDeleteDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.deleteDocument(c, owner, c.Param("id"))
}

func (h *httpHandler) deleteDocument(c *gin.Context, owner documents.Owner, rawID string) {
	id, err := documents.NewDocumentID(rawID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	if err := h.documents.Delete(c.Request.Context(), owner, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleWriteCanvas(c *gin.Context) {
	h.handleWriteAttachment(c, attachments.KindCanvases)
}

func (h *httpHandler) handleWriteNote(c *gin.Context) {
	h.handleWriteAttachment(c, attachments.KindNotes)
}

func (h *httpHandler) handleWriteAttachment(c *gin.Context, kind attachments.Kind) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.writeAttachment(c, owner, kind, c.Param("id"), c.Param("attachmentId"))
}

func (h *httpHandler) writeAttachment(c *gin.Context, owner documents.Owner, kind attachments.Kind, rawDocumentID, attachmentID string) {
	documentID, err := documents.NewDocumentID(rawDocumentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBlobBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.documents.WriteAttachment(c.Request.Context(), owner, kind, documentID, attachmentID, payload); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReadCanvas(c *gin.Context) {
	h.handleReadAttachment(c, attachments.KindCanvases)
}

func (h *httpHandler) handleReadNote(c *gin.Context) {
	h.handleReadAttachment(c, attachments.KindNotes)
}

func (h *httpHandler) handleReadAttachment(c *gin.Context, kind attachments.Kind) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	documentID, err := documents.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	payload, err := h.documents.ReadAttachment(c.Request.Context(), owner, kind, documentID, c.Param("attachmentId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, blobContentType, payload)
}
