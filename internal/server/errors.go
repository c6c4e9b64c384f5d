package server

import (
	"errors"
	"net/http"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	"github.com/Arturr-H/Quicknote-backend/internal/documents"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// classifyError maps a service failure to a status code and a stable reason.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, documents.ErrInvalidDocumentID):
		return http.StatusBadRequest, "invalid_document_id"
	case errors.Is(err, documents.ErrInvalidOwner):
		return http.StatusBadRequest, "invalid_owner"
	case errors.Is(err, attachments.ErrInvalidKey):
		return http.StatusBadRequest, "invalid_attachment_id"
	case errors.Is(err, documents.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, documents.ErrWriteConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, documents.ErrDecodeFailed):
		return http.StatusInternalServerError, "decode_failed"
	case errors.Is(err, documents.ErrStoreUnavailable):
		return http.StatusInternalServerError, "store_unavailable"
	case errors.Is(err, attachments.ErrIOFailure):
		return http.StatusInternalServerError, "blob_io_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, reason := classifyError(err)
	body := gin.H{"error": reason}
	var serviceErr *documents.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("reason", reason),
			zap.Error(err))
	}
	c.JSON(status, body)
}
