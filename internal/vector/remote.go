package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEncoder uses the OpenAI embeddings endpoint
type OpenAIEncoder struct {
	client    *openai.Client
	model     string
	batchSize int
}

// NewOpenAIEncoder creates an encoder backed by OpenAI (or a compatible gateway)
func NewOpenAIEncoder(apiKey, baseURL, model string, batchSize int) (*OpenAIEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for embeddings")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEncoder{client: openai.NewClientWithConfig(cfg), model: model, batchSize: batchSize}, nil
}

// Name returns the encoder name
func (e *OpenAIEncoder) Name() string {
	return "openai:" + e.model
}

// Dimensions is only known after the first response
func (e *OpenAIEncoder) Dimensions() int {
	return 0
}

// Encode embeds texts
func (e *OpenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return encodeBatched(ctx, texts, e.batchSize, func(ctx context.Context, batch []string) ([][]float32, error) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
		}

		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		out := make([][]float32, len(data))
		for i, d := range data {
			out[i] = Normalize(append([]float32(nil), d.Embedding...))
		}
		return out, nil
	})
}

// OllamaEncoder uses a local Ollama /api/embed endpoint
type OllamaEncoder struct {
	baseURL    string
	model      string
	batchSize  int
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewOllamaEncoder creates an encoder backed by Ollama
func NewOllamaEncoder(baseURL, model string, batchSize int, timeout time.Duration) (*OllamaEncoder, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model must be specified (e.g., nomic-embed-text)")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaEncoder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the encoder name
func (e *OllamaEncoder) Name() string {
	return "ollama:" + e.model
}

// Dimensions is only known after the first response
func (e *OllamaEncoder) Dimensions() int {
	return 0
}

// Encode embeds texts
func (e *OllamaEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return encodeBatched(ctx, texts, e.batchSize, func(ctx context.Context, batch []string) ([][]float32, error) {
		body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: batch})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		var out ollamaEmbedResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, out.Error)
		}

		for i := range out.Embeddings {
			out.Embeddings[i] = Normalize(out.Embeddings[i])
		}
		return out.Embeddings, nil
	})
}
