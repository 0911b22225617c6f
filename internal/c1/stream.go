package c1

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrStreamTimeout indica que el upstream dejó de enviar datos dentro
// de la ventana configurada (primer byte o inactividad entre chunks).
var ErrStreamTimeout = errors.New("c1 stream timeout waiting for data")

// Stream ejecuta un turno streaming. Reenvía los bytes crudos del
// upstream al handler y devuelve la respuesta ensamblada al terminar.
// Reintenta solo mientras ningún byte haya sido reenviado; después del
// primer byte el stream es irrecuperable para el consumidor.
func (c *HTTPClient) Stream(ctx context.Context, req Request, h StreamHandler) (Response, error) {
	if c == nil {
		return Response{}, ErrNotConfigured
	}

	body := chatCompletionRequest{
		Model:    c.resolveModel(req),
		Messages: req.Messages,
		Stream:   true,
		Metadata: req.Metadata,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	backoff := c.backoffBase
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, started, err := c.streamOnce(ctx, payload, h)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if started || !retryableStream(err) || attempt == c.maxAttempts {
			return Response{}, lastErr
		}

		c.logger.Warn("c1 stream retry",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 4*time.Second {
			backoff *= 2
		}
	}
	return Response{}, lastErr
}

func retryableStream(err error) bool {
	return retryable(err) || errors.Is(err, ErrStreamTimeout)
}

func (c *HTTPClient) streamOnce(ctx context.Context, payload []byte, h StreamHandler) (Response, bool, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// El watchdog gobierna la espera: primero el primer byte, después
	// la inactividad entre chunks.
	watchdog := time.AfterFunc(c.firstByteTimeout, cancel)
	defer watchdog.Stop()

	timedOut := func(err error) error {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return ErrStreamTimeout
		}
		return err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return Response{}, false, timedOut(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := readAllLimit(resp.Body, 2_000_000)
		return Response{}, false, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var (
		started bool
		full    strings.Builder
		dataBuf strings.Builder
		out     Response
		sawDone bool
		sawStop bool
	)

	flush := func() error {
		raw := strings.TrimSpace(dataBuf.String())
		dataBuf.Reset()
		if raw == "" {
			return nil
		}
		if raw == "[DONE]" {
			return streamDone{}
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			// Los bytes ya fueron reenviados; el ensamblado es best-effort
			// frente a frames que no podemos parsear.
			c.logger.Warn("c1 stream invalid chunk json", zap.Error(err))
			return nil
		}
		if chunk.Error != nil {
			return fmt.Errorf("c1 api error: %s", chunk.Error.Message)
		}
		if chunk.ID != "" {
			out.ID = chunk.ID
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.Usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				full.WriteString(choice.Delta.Content)
				if h != nil {
					h.OnDelta(choice.Delta.Content)
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				out.FinishReason = *choice.FinishReason
				sawStop = true
			}
		}
		return nil
	}

	br := bufio.NewReader(resp.Body)
	for {
		line, readErr := br.ReadString('\n')
		if line != "" {
			started = true
			watchdog.Reset(c.idleTimeout)

			if h != nil {
				if rawErr := h.OnRaw([]byte(line)); rawErr != nil {
					return Response{}, started, rawErr
				}
			}

			trim := strings.TrimRight(line, "\r\n")
			if trim == "" {
				if err := flush(); err != nil {
					if _, ok := err.(streamDone); ok {
						sawDone = true
						break
					}
					return Response{}, started, err
				}
			} else if strings.HasPrefix(trim, "data:") {
				data := strings.TrimSpace(strings.TrimPrefix(trim, "data:"))
				if dataBuf.Len() > 0 {
					dataBuf.WriteString("\n")
				}
				dataBuf.WriteString(data)
			}
		}

		if readErr != nil {
			if readErr != io.EOF {
				return Response{}, started, timedOut(fmt.Errorf("read stream: %w", readErr))
			}
			if err := flush(); err != nil {
				if _, ok := err.(streamDone); ok {
					sawDone = true
				} else {
					return Response{}, started, err
				}
			}
			break
		}
	}

	// Sin [DONE] ni finish_reason el stream quedó cortado y no cuenta
	// como turno completo.
	if !sawDone && !sawStop {
		return Response{}, started, ErrTruncatedSSE
	}

	out.Content = full.String()
	if out.Content == "" {
		return Response{}, started, ErrEmptyResponse
	}
	return out, started, nil
}

type chatCompletionChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage    `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type streamDone struct{}

func (streamDone) Error() string { return "done" }
