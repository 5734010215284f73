// Package embedding provides concrete port.Embedder implementations: an
// OpenAI-compatible HTTP client (also serving DeepSeek, Jina, and Ollama's
// OpenAI-compatible endpoints) and a deterministic mock for tests and
// environments without network access. The pipeline treats the embedding
// provider as an opaque function producing vectors from text; these are
// interchangeable adapters behind that one function.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client is an OpenAI-compatible embeddings HTTP client.
type Client struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	http      *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewOpenAI builds a Client against the OpenAI embeddings endpoint, reading
// the API key from apiKeyEnv.
func NewOpenAI(apiKeyEnv, model string) (*Client, error) {
	return newCompatible(apiKeyEnv, model, "https://api.openai.com/v1")
}

// NewDeepSeek builds a Client against DeepSeek's OpenAI-compatible endpoint.
func NewDeepSeek(apiKeyEnv, model string) (*Client, error) {
	return newCompatible(apiKeyEnv, model, "https://api.deepseek.com/v1")
}

// NewJina builds a Client against Jina AI's embeddings endpoint.
func NewJina(apiKeyEnv, model string) (*Client, error) {
	return newCompatible(apiKeyEnv, model, "https://api.jina.ai/v1")
}

// NewOllama builds a Client against a local Ollama server, which requires no
// API key.
func NewOllama(model, baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return &Client{
		apiKey:    "ollama",
		model:     model,
		baseURL:   baseURL,
		dimension: dimensionFor(model),
		http:      &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func newCompatible(apiKeyEnv, model, baseURL string) (*Client, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: API key not found in environment variable %s", apiKeyEnv)
	}
	return &Client{
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		dimension: dimensionFor(model),
		http:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func dimensionFor(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3":
		return 1024
	case "jina-embeddings-v4":
		return 2048
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 1536
	}
}

// Dimension reports the vector width this client's model produces.
func (c *Client) Dimension() int { return c.dimension }

const maxBatch = 100

// Embed satisfies port.Embedder, batching requests at maxBatch texts each.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatch {
		end := i + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("embedding: parsing response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding: API error: %s", parsed.Error.Message)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// Mock is a deterministic port.Embedder for tests and offline runs: it
// derives vectors from rune values rather than calling any network service.
type Mock struct {
	dimension int
}

// NewMock builds a Mock producing vectors of the given dimension.
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = 16
	}
	return &Mock{dimension: dimension}
}

func (m *Mock) Dimension() int { return m.dimension }

func (m *Mock) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, m.dimension)
		for j, r := range text {
			if j >= m.dimension {
				break
			}
			v[j] = float32(r) / 1000.0
		}
		out[i] = v
	}
	return out, nil
}
