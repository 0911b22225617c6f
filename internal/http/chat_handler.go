package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"genui-relay/internal/c1"
	"genui-relay/internal/domain"
	"genui-relay/internal/service"
)

// ChatHandler mantiene dependencias para los endpoints de turnos de
// chat, acciones de widgets y replay de respuestas completadas.
type ChatHandler struct {
	logger  *zap.Logger
	relay   *service.RelayService
	actions *service.ActionService
	threads *service.ThreadService
	cache   service.ResponseCache
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(
	logger *zap.Logger,
	relay *service.RelayService,
	actions *service.ActionService,
	threads *service.ThreadService,
	cache service.ResponseCache,
) *ChatHandler {
	return &ChatHandler{
		logger:  logger,
		relay:   relay,
		actions: actions,
		threads: threads,
		cache:   cache,
	}
}

type promptBody struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content" binding:"required"`
}

// Chat maneja POST /chat. Con stream activo la respuesta es
// text/event-stream con los bytes del upstream tal cual llegan; sin
// stream devuelve el mensaje assistant como JSON.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req struct {
		Prompt     promptBody `json:"prompt" binding:"required"`
		ThreadID   string     `json:"threadId"`
		ResponseID string     `json:"responseId"`
		Stream     *bool      `json:"stream"`
		Model      string     `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	input := service.TurnInput{
		UserID:     claims.UserID,
		ThreadID:   req.ThreadID,
		ResponseID: req.ResponseID,
		Model:      req.Model,
		Prompt: domain.Message{
			ID:      req.Prompt.ID,
			Role:    req.Prompt.Role,
			Content: req.Prompt.Content,
		},
	}

	if req.Stream != nil && !*req.Stream {
		msg, err := h.relay.CompleteTurn(c.Request.Context(), input)
		if err != nil {
			h.writeTurnError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg, "thread_id": msg.ThreadID})
		return
	}

	h.streamTurn(c, func(sink service.StreamSink) (domain.Message, error) {
		return h.relay.StreamTurn(c.Request.Context(), input, sink)
	})
}

// Action maneja POST /threads/:id/actions con el mismo contrato de
// streaming que /chat.
func (h *ChatHandler) Action(c *gin.Context) {
	var req struct {
		Type          string         `json:"type" binding:"required"`
		Params        map[string]any `json:"params"`
		LLMFriendly   string         `json:"llm_friendly_message"`
		HumanFriendly string         `json:"human_friendly_message"`
		ResponseID    string         `json:"responseId"`
		Stream        *bool          `json:"stream"`
		Model         string         `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid action request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	input := service.ActionInput{
		UserID:     claims.UserID,
		ThreadID:   c.Param("id"),
		ResponseID: req.ResponseID,
		Model:      req.Model,
		Event: domain.ActionEvent{
			Type:          req.Type,
			Params:        req.Params,
			LLMFriendly:   req.LLMFriendly,
			HumanFriendly: req.HumanFriendly,
		},
	}

	if req.Stream != nil && !*req.Stream {
		msg, err := h.actions.CompleteAction(c.Request.Context(), input)
		if err != nil {
			h.writeTurnError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg, "thread_id": msg.ThreadID})
		return
	}

	h.streamTurn(c, func(sink service.StreamSink) (domain.Message, error) {
		return h.actions.StreamAction(c.Request.Context(), input, sink)
	})
}

// GetResponse maneja GET /responses/:responseId. Devuelve del cache la
// respuesta de un turno ya completado para clientes que perdieron el
// stream.
func (h *ChatHandler) GetResponse(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if h.cache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "response not found"})
		return
	}

	resp, found, err := h.cache.Get(c.Request.Context(), c.Param("responseId"))
	if err != nil {
		h.logger.Error("response cache get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch response"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "response not found"})
		return
	}
	// La respuesta cacheada solo se entrega al dueño del thread.
	if _, err := h.threads.GetOwned(c.Request.Context(), resp.ThreadID, claims.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "response not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": resp})
}

// streamTurn corre el turno espejando el stream del upstream. Mientras
// ningún byte salió, los errores se responden como JSON con su status;
// con el stream ya empezado solo queda un frame de error final.
func (h *ChatHandler) streamTurn(c *gin.Context, run func(service.StreamSink) (domain.Message, error)) {
	sink := &sseSink{w: c.Writer}
	_, err := run(sink)
	if err == nil {
		return
	}
	if !sink.started {
		h.writeTurnError(c, err)
		return
	}
	if c.Request.Context().Err() != nil {
		// El cliente cortó; no hay a quién escribirle el error.
		return
	}
	h.logger.Warn("stream failed mid-flight", zap.Error(err))
	fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\":%q}\n\n", publicTurnError(err))
	c.Writer.Flush()
}

func (h *ChatHandler) writeTurnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, service.ErrPromptInvalid),
		errors.Is(err, service.ErrActionInvalid),
		errors.Is(err, service.ErrThreadInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrThreadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
	case errors.Is(err, context.Canceled):
		// Cliente desconectado antes del primer byte.
	case errors.Is(err, c1.ErrStreamTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "upstream timeout"})
	case errors.Is(err, c1.ErrTruncatedSSE), errors.Is(err, c1.ErrEmptyResponse):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream error"})
	default:
		if status, ok := c1.StatusCode(err); ok {
			h.logger.Warn("upstream rejected turn", zap.Int("upstream_status", status), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream error"})
			return
		}
		h.logger.Error("chat turn failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete turn"})
	}
}

func publicTurnError(err error) string {
	switch {
	case errors.Is(err, c1.ErrStreamTimeout):
		return "upstream timeout"
	case errors.Is(err, c1.ErrTruncatedSSE), errors.Is(err, c1.ErrEmptyResponse):
		return "upstream error"
	default:
		if _, ok := c1.StatusCode(err); ok {
			return "upstream error"
		}
		return "could not complete turn"
	}
}

// sseSink espeja los chunks crudos del upstream en la respuesta HTTP.
// Los headers SSE se escriben recién con el primer chunk, así un fallo
// previo al primer byte todavía puede responder JSON con status.
type sseSink struct {
	w       gin.ResponseWriter
	started bool
}

func (s *sseSink) WriteChunk(chunk []byte) error {
	if !s.started {
		s.started = true
		header := s.w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache, no-transform")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
	}
	if _, err := s.w.Write(chunk); err != nil {
		return err
	}
	// Flush por chunk: el cliente lento frena la lectura del upstream.
	s.w.Flush()
	return nil
}
