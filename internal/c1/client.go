package c1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Errores del cliente contra la API generativa.
var (
	ErrEmptyResponse  = errors.New("c1 empty response")
	ErrTruncatedSSE   = errors.New("c1 stream truncated before completion")
	ErrNotConfigured  = errors.New("c1 client not configured")
	ErrEmptyEmbedding = errors.New("c1 empty embedding")
)

// ChatMessage es el mensaje en el formato wire de chat completions.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata viaja con cada request para que el proveedor correlacione
// el turno con el thread y el responseId del cliente.
type Metadata struct {
	ThreadID   string `json:"threadId,omitempty"`
	ResponseID string `json:"responseId,omitempty"`
}

type Request struct {
	Model    string
	Messages []ChatMessage
	Metadata *Metadata
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        *Usage
}

// StreamHandler recibe el stream en dos granularidades: bytes crudos
// tal cual llegan del proveedor y deltas de texto ya parseados.
type StreamHandler interface {
	// OnRaw recibe los bytes exactos del upstream. Si devuelve error el
	// stream se aborta y nada más se reenvía.
	OnRaw(chunk []byte) error
	OnDelta(delta string)
}

// Client define la interfaz para hablar con la API generativa.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request, h StreamHandler) (Response, error)
	Embed(ctx context.Context, input string) ([]float32, error)
}

// Config agrupa los parámetros de conexión del cliente HTTP.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	EmbeddingsModel  string
	FirstByteTimeout time.Duration
	IdleTimeout      time.Duration
}

// HTTPClient implementa Client contra un endpoint OpenAI-compatible.
type HTTPClient struct {
	baseURL          string
	apiKey           string
	model            string
	embeddingsModel  string
	client           *http.Client
	streamClient     *http.Client
	firstByteTimeout time.Duration
	idleTimeout      time.Duration
	maxAttempts      int
	backoffBase      time.Duration
	logger           *zap.Logger
}

// NewHTTPClient construye el cliente apuntando a la API de chat completions.
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.thesys.dev/v1/embed"
	}
	firstByte := cfg.FirstByteTimeout
	if firstByte <= 0 {
		firstByte = 30 * time.Second
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 90 * time.Second
	}
	return &HTTPClient{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		embeddingsModel: cfg.EmbeddingsModel,
		client:          &http.Client{Timeout: 60 * time.Second},
		// Sin timeout duro para streaming; el corte lo gobierna el contexto
		// y el watchdog de inactividad.
		streamClient:     &http.Client{},
		firstByteTimeout: firstByte,
		idleTimeout:      idle,
		maxAttempts:      3,
		backoffBase:      500 * time.Millisecond,
		logger:           logger,
	}
}

func (c *HTTPClient) resolveModel(req Request) string {
	if strings.TrimSpace(req.Model) != "" {
		return req.Model
	}
	return c.model
}

// Complete ejecuta un turno no streaming y devuelve la respuesta completa.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c == nil {
		return Response{}, ErrNotConfigured
	}

	body := chatCompletionRequest{
		Model:    c.resolveModel(req),
		Messages: req.Messages,
		Metadata: req.Metadata,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	var out Response
	err = c.withRetry(ctx, "complete", func() error {
		respBody, reqErr := c.postJSON(ctx, c.client, "/chat/completions", payload, "")
		if reqErr != nil {
			return reqErr
		}

		var cr chatCompletionResponse
		if err := json.Unmarshal(respBody, &cr); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if cr.Error != nil {
			return fmt.Errorf("c1 api error: %s", cr.Error.Message)
		}
		if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
			return ErrEmptyResponse
		}

		out = Response{
			ID:           cr.ID,
			Model:        cr.Model,
			Content:      cr.Choices[0].Message.Content,
			FinishReason: cr.Choices[0].FinishReason,
			Usage:        cr.Usage,
		}
		return nil
	})
	return out, err
}

// Embed genera el embedding del texto usando el modelo de embeddings.
func (c *HTTPClient) Embed(ctx context.Context, input string) ([]float32, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(c.embeddingsModel) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyEmbedding
	}

	payload, err := json.Marshal(embeddingRequest{
		Model: c.embeddingsModel,
		Input: []string{input},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var vec []float32
	err = c.withRetry(ctx, "embed", func() error {
		respBody, reqErr := c.postJSON(ctx, c.client, "/embeddings", payload, "")
		if reqErr != nil {
			return reqErr
		}

		var er embeddingResponse
		if err := json.Unmarshal(respBody, &er); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if er.Error != nil {
			return fmt.Errorf("c1 api error: %s", er.Error.Message)
		}
		if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
			return ErrEmptyEmbedding
		}
		vec = er.Data[0].Embedding
		return nil
	})
	return vec, err
}

// postJSON hace el POST y devuelve el body. Los status >= 400 se
// devuelven como *statusError para que el retry pueda clasificarlos.
func (c *HTTPClient) postJSON(ctx context.Context, client *http.Client, path string, payload []byte, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := readAllLimit(resp.Body, 8_000_000)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// withRetry reintenta operaciones con backoff exponencial acotado.
// Solo reintenta errores transitorios (429, 5xx, fallas de transporte).
func (c *HTTPClient) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := c.backoffBase
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == c.maxAttempts || !retryable(lastErr) {
			return lastErr
		}

		c.logger.Warn("c1 request retry",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 4*time.Second {
			backoff *= 2
		}
	}
	return lastErr
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("c1 http error: status=%d", e.status)
	}
	return fmt.Sprintf("c1 http error: status=%d body=%s", e.status, e.body)
}

// StatusCode extrae el status HTTP del upstream cuando el error
// proviene de una respuesta con status >= 400.
func StatusCode(err error) (int, bool) {
	var se *statusError
	if errors.As(err, &se) {
		return se.status, true
	}
	return 0, false
}

// retryable clasifica errores transitorios frente a definitivos.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= http.StatusInternalServerError
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func readAllLimit(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = 1_000_000
	}
	return io.ReadAll(io.LimitReader(r, max))
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
	Metadata *Metadata     `json:"metadata,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage    `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}
