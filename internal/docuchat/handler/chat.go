// Package handler provides the HTTP handlers of the chat service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/internal/docuchat/biz"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// OwnerHeader identifies the requesting owner. Every endpoint is scoped
// to it; authentication happens upstream of this service.
const OwnerHeader = "X-Owner-ID"

// ChatHandler handles document and chat HTTP requests.
type ChatHandler struct {
	service biz.Service
}

// NewChatHandler creates a ChatHandler over the given service.
func NewChatHandler(service biz.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func ownerID(c *gin.Context) (string, bool) {
	owner := c.GetHeader(OwnerHeader)
	if owner == "" {
		writeError(c, errors.ErrInvalidRequest.WithMessage("missing %s header", OwnerHeader))
		return "", false
	}
	return owner, true
}

func writeError(c *gin.Context, err error) {
	e := errors.FromError(err)
	c.JSON(e.HTTP, ErrorResponse{Code: e.Code, Message: e.Message})
}

func writeOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: data})
}

// IngestRequest is one document upload.
type IngestRequest struct {
	Filename string `json:"filename" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// Ingest uploads and indexes one document for the owner.
func (h *ChatHandler) Ingest(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.ErrInvalidRequest.WithCause(err))
		return
	}

	doc, err := h.service.IngestDocument(c.Request.Context(), owner, req.Filename, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, doc)
}

// List returns the owner's documents in upload order.
func (h *ChatHandler) List(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	writeOK(c, h.service.ListDocuments(c.Request.Context(), owner))
}

// Delete removes one of the owner's documents and all of its chunks.
func (h *ChatHandler) Delete(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	documentID := c.Param("id")
	if documentID == "" {
		writeError(c, errors.ErrInvalidRequest.WithMessage("missing document id"))
		return
	}

	if err := h.service.DeleteDocument(c.Request.Context(), owner, documentID); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, nil)
}

// ChatRequest is one chat invocation.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	// History carries prior turns; the service itself is stateless.
	History []model.ConversationTurn `json:"history,omitempty"`
	// TimeoutSeconds bounds the completion wait, 0 uses the default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Chat answers a question grounded on the owner's documents.
func (h *ChatHandler) Chat(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.ErrInvalidRequest.WithCause(err))
		return
	}

	ctx := c.Request.Context()
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := h.service.Chat(ctx, biz.ChatRequest{
		OwnerID: owner,
		Message: req.Message,
		History: req.History,
		Timeout: timeout,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, result)
}

// Stats returns the owner's document counts and service counters.
func (h *ChatHandler) Stats(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, stats)
}
