package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	"github.com/Arturr-H/Quicknote-backend/internal/documents"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Header names of the header-driven routes used by older clients.
const (
	legacyDocumentHeader    = "document"
	legacyIDHeader          = "id"
	legacyTitleHeader       = "title"
	legacyDescriptionHeader = "description"
	legacyDocumentIDHeader  = "document-id"
)

func requireHeader(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.GetHeader(name))
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_header", "header": name})
		return "", false
	}
	return value, true
}

func (h *httpHandler) handleLegacyAddDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.createDocument(c, owner, documents.CreateRequest{
		Title:       c.GetHeader(legacyTitleHeader),
		Description: c.GetHeader(legacyDescriptionHeader),
	})
}

func (h *httpHandler) handleLegacySetDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	raw, ok := requireHeader(c, legacyDocumentHeader)
	if !ok {
		return
	}
	document, err := decodeLegacyDocument(raw)
	if err != nil {
		h.logger.Debug("rejecting legacy document", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.upsertDocument(c, owner, document)
}

func (h *httpHandler) handleLegacyGetDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := requireHeader(c, legacyIDHeader)
	if !ok {
		return
	}
	h.getDocument(c, owner, id)
}

func (h *httpHandler) handleLegacyDeleteDocument(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := requireHeader(c, legacyIDHeader)
	if !ok {
		return
	}
	h.deleteDocument(c, owner, id)
}

func (h *httpHandler) handleLegacySetCanvas(c *gin.Context) {
	h.handleLegacySetAttachment(c, attachments.KindCanvases)
}

func (h *httpHandler) handleLegacySetNote(c *gin.Context) {
	h.handleLegacySetAttachment(c, attachments.KindNotes)
}

func (h *httpHandler) handleLegacySetAttachment(c *gin.Context, kind attachments.Kind) {
	owner, ok := ownerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	documentID, ok := requireHeader(c, legacyDocumentIDHeader)
	if !ok {
		return
	}
	attachmentID, ok := requireHeader(c, legacyIDHeader)
	if !ok {
		return
	}
	h.writeAttachment(c, owner, kind, documentID, attachmentID)
}

// legacyDocument is the document shape older clients send in the document
// header: "date" instead of "created_at_s" and "_real_content" holding the
// payload as a byte array. The current field names are accepted as well.
type legacyDocument struct {
	ID               string                      `json:"id"`
	Owner            string                      `json:"owner"`
	Title            string                      `json:"title"`
	Description      string                      `json:"description"`
	Date             int64                       `json:"date"`
	CreatedAtSeconds int64                       `json:"created_at_s"`
	Texts            map[string]legacyText       `json:"texts"`
	Notes            map[string]legacyNote       `json:"notes"`
	Canvases         map[string]documents.Canvas `json:"canvases"`
}

type legacyText struct {
	Position    documents.Position `json:"position"`
	Size        documents.TextSize `json:"size"`
	RealContent legacyBytes        `json:"_real_content"`
	Content     legacyBytes        `json:"content"`
}

type legacyNote struct {
	Position    documents.Position `json:"position"`
	Size        documents.Size     `json:"size"`
	RealContent legacyBytes        `json:"_real_content"`
	Content     legacyBytes        `json:"content"`
}

// legacyBytes decodes either a JSON array of byte values or a base64 string.
type legacyBytes []byte

func (b *legacyBytes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*b = nil
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("content is not base64: %w", err)
		}
		*b = decoded
		return nil
	default:
		var values []int
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return fmt.Errorf("content must be a byte array or base64 string: %w", err)
		}
		decoded := make([]byte, len(values))
		for i, value := range values {
			if value < 0 || value > 255 {
				return fmt.Errorf("content byte %d out of range: %d", i, value)
			}
			decoded[i] = byte(value)
		}
		*b = decoded
		return nil
	}
}

var errTrailingLegacyData = errors.New("unexpected data after document")

func decodeLegacyDocument(raw string) (documents.Document, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()

	var legacy legacyDocument
	if err := decoder.Decode(&legacy); err != nil {
		return documents.Document{}, err
	}
	if decoder.More() {
		return documents.Document{}, errTrailingLegacyData
	}

	createdAt := legacy.CreatedAtSeconds
	if createdAt <= 0 {
		createdAt = legacy.Date
	}
	document := documents.Document{
		ID:               legacy.ID,
		Owner:            legacy.Owner,
		Title:            legacy.Title,
		Description:      legacy.Description,
		CreatedAtSeconds: createdAt,
		Texts:            make(map[string]documents.Text, len(legacy.Texts)),
		Notes:            make(map[string]documents.Note, len(legacy.Notes)),
		Canvases:         legacy.Canvases,
	}
	for id, text := range legacy.Texts {
		document.Texts[id] = documents.Text{
			Position: text.Position,
			Size:     text.Size,
			Content:  preferContent(text.RealContent, text.Content),
		}
	}
	for id, note := range legacy.Notes {
		document.Notes[id] = documents.Note{
			Position: note.Position,
			Size:     note.Size,
			Content:  preferContent(note.RealContent, note.Content),
		}
	}
	return document, nil
}

func preferContent(legacyContent, current legacyBytes) []byte {
	if legacyContent != nil {
		return []byte(legacyContent)
	}
	if current != nil {
		return []byte(current)
	}
	return nil
}
