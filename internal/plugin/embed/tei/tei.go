// Package tei implements an Embedder for text-embeddings-inference style
// endpoints: POST {base}/embed with {"inputs": [...]}.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/misteriosai/agent-memory/internal/config"
	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "tei",
		Loader: load,
	})
}

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("tei embedder: missing config in context")
	}
	return New(cfg.EmbeddingURL, cfg.EmbeddingTimeout, cfg.VectorDimension), nil
}

// Client calls the embedding endpoint. A Client with an empty base URL is
// valid to construct but fails every non-empty EmbedTexts call with a
// ConfigurationError.
type Client struct {
	baseURL   string
	dimension int
	http      *http.Client
}

// New creates a client for baseURL. dimension is reported by Dimension and is not enforced here.
func New(baseURL string, timeout time.Duration, dimension int) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		dimension: dimension,
		http:      &http.Client{Timeout: timeout},
	}
}

// ModelName identifies the endpoint and dimension, so cached vectors from a
// different deployment are never reused.
func (c *Client) ModelName() string { return fmt.Sprintf("tei@%s/%d", c.baseURL, c.dimension) }
func (c *Client) Dimension() int    { return c.dimension }

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// EmbedTexts sends all texts in one request and returns one vector per text, in order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if c.baseURL == "" {
		return nil, &registryembed.ConfigurationError{Setting: "EMBEDDINGS_URL"}
	}

	reqBody, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, &registryembed.EmbeddingServiceError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &registryembed.EmbeddingServiceError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &registryembed.EmbeddingServiceError{Status: resp.StatusCode, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &registryembed.EmbeddingServiceError{Status: resp.StatusCode, Message: snippet(body)}
	}

	vectors, err := parseEmbedResponse(body)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, &registryembed.EmbeddingServiceError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)),
		}
	}
	return vectors, nil
}

// parseEmbedResponse accepts either a bare array of vectors or an object
// with the vectors under "data". Any other shape is rejected.
func parseEmbedResponse(body []byte) ([][]float32, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &registryembed.EmbeddingServiceError{Message: "empty response body"}
	}

	var vectors [][]float32
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &vectors); err != nil {
			return nil, &registryembed.EmbeddingServiceError{Message: "unrecognized response shape", Err: err}
		}
	case '{':
		var wrapped struct {
			Data *[][]float32 `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, &registryembed.EmbeddingServiceError{Message: "unrecognized response shape", Err: err}
		}
		if wrapped.Data == nil {
			return nil, &registryembed.EmbeddingServiceError{Message: `response object has no "data"`}
		}
		vectors = *wrapped.Data
	default:
		return nil, &registryembed.EmbeddingServiceError{Message: "unrecognized response shape"}
	}

	if len(vectors) == 0 {
		return nil, &registryembed.EmbeddingServiceError{Message: "empty embedding result"}
	}
	return vectors, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}

var _ registryembed.Embedder = (*Client)(nil)
