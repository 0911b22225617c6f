package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"genui-relay/internal/service"
)

// ThreadHandler mantiene dependencias para endpoints de threads,
// timeline de mensajes y búsqueda semántica.
type ThreadHandler struct {
	logger   *zap.Logger
	threads  *service.ThreadService
	messages *service.MessageService
	search   *service.SearchService
}

// NewThreadHandler crea una instancia de ThreadHandler con dependencias necesarias.
func NewThreadHandler(
	logger *zap.Logger,
	threads *service.ThreadService,
	messages *service.MessageService,
	search *service.SearchService,
) *ThreadHandler {
	return &ThreadHandler{
		logger:   logger,
		threads:  threads,
		messages: messages,
		search:   search,
	}
}

// Create maneja POST /threads.
func (h *ThreadHandler) Create(c *gin.Context) {
	// El body es opcional: un POST vacío crea un thread sin título.
	var req struct {
		Title string `json:"title"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	thread, err := h.threads.Create(c.Request.Context(), claims.UserID, req.Title)
	if err != nil {
		h.logger.Error("create thread failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create thread"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"thread": thread})
}

// List maneja GET /threads.
func (h *ThreadHandler) List(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	threads, err := h.threads.List(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("list threads failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list threads"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// Get maneja GET /threads/:id.
func (h *ThreadHandler) Get(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	thread, err := h.threads.GetOwned(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		h.logger.Error("get thread failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get thread"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"thread": thread})
}

// Rename maneja PUT /threads/:id.
func (h *ThreadHandler) Rename(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	thread, err := h.threads.Rename(c.Request.Context(), c.Param("id"), claims.UserID, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrThreadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		case errors.Is(err, service.ErrThreadInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
		default:
			h.logger.Error("rename thread failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not rename thread"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"thread": thread})
}

// Delete maneja DELETE /threads/:id (soft delete).
func (h *ThreadHandler) Delete(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	if err := h.threads.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		if errors.Is(err, service.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		h.logger.Error("delete thread failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete thread"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ListMessages maneja GET /threads/:id/messages.
func (h *ThreadHandler) ListMessages(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	messages, err := h.messages.ListByThread(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		h.logger.Error("list messages failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// UpdateMessage maneja PUT /threads/:id/messages/:messageId. Es la vía
// para reescribir el contenido assistant cuando el estado de un widget
// embebido cambió después del turno.
func (h *ThreadHandler) UpdateMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	msg, err := h.messages.UpdateContent(c.Request.Context(), c.Param("id"), c.Param("messageId"), claims.UserID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrThreadNotFound), errors.Is(err, service.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, service.ErrMessageNotEditable):
			c.JSON(http.StatusConflict, gin.H{"error": "only assistant messages are editable"})
		case errors.Is(err, service.ErrMessageInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content"})
		default:
			h.logger.Error("update message failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update message"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Search maneja GET /threads/search?q=.
func (h *ThreadHandler) Search(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if !h.search.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search not configured"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}
	k, _ := strconv.Atoi(c.DefaultQuery("k", "5"))

	hits, err := h.search.Search(c.Request.Context(), claims.UserID, query, k)
	if err != nil {
		if errors.Is(err, service.ErrSearchNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search not configured"})
			return
		}
		h.logger.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not search"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hits": hits})
}
