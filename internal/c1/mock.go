package c1

import "context"

// MockClient permite tests sin llamar a la API real.
type MockClient struct {
	Response  Response
	Err       error
	RawChunks []string
	Embedding []float32
	EmbedErr  error

	CompleteCalls []Request
	StreamCalls   []Request
	EmbedInputs   []string
}

func (m *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	m.CompleteCalls = append(m.CompleteCalls, req)
	return m.Response, m.Err
}

func (m *MockClient) Stream(ctx context.Context, req Request, h StreamHandler) (Response, error) {
	m.StreamCalls = append(m.StreamCalls, req)
	if m.Err != nil {
		return Response{}, m.Err
	}
	if h != nil {
		for _, chunk := range m.RawChunks {
			if err := h.OnRaw([]byte(chunk)); err != nil {
				return Response{}, err
			}
		}
		if m.Response.Content != "" {
			h.OnDelta(m.Response.Content)
		}
	}
	return m.Response, nil
}

func (m *MockClient) Embed(ctx context.Context, input string) ([]float32, error) {
	m.EmbedInputs = append(m.EmbedInputs, input)
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return m.Embedding, nil
}
