package openai

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

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, &registryembed.ConfigurationError{Setting: "AGENT_MEMORY_OPENAI_API_KEY"}
	}
	timeout := cfg.EmbeddingTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModelName,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		dimensions: cfg.VectorDimension,
		http:       &http.Client{Timeout: timeout},
	}, nil
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint, asking for
// vectors of the configured store dimension.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	http       *http.Client
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimensions
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	reqBody, err := json.Marshal(embeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: ptrIfPositive(e.dimensions),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, &registryembed.EmbeddingServiceError{Message: "openai request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &registryembed.EmbeddingServiceError{Status: resp.StatusCode, Message: "openai read response", Err: err}
	}

	var result embeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &registryembed.EmbeddingServiceError{Status: resp.StatusCode, Message: "openai parse response", Err: err}
	}
	if result.Error != nil {
		return nil, &registryembed.EmbeddingServiceError{Status: resp.StatusCode, Message: result.Error.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &registryembed.EmbeddingServiceError{Status: resp.StatusCode, Message: "openai request rejected"}
	}
	if len(result.Data) != len(texts) {
		return nil, &registryembed.EmbeddingServiceError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Data)),
		}
	}

	// The API may return results in any order; sort by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, &registryembed.EmbeddingServiceError{Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}

func ptrIfPositive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

var _ registryembed.Embedder = (*OpenAIEmbedder)(nil)
