package tei

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, respond func(inputs []string) any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)

		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(respond(req.Inputs))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func vectorsFor(inputs []string) [][]float32 {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(i), 1}
	}
	return out
}

func TestEmbedTexts_BareList(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, func(inputs []string) any { return vectorsFor(inputs) })
	client := New(srv.URL+"/", time.Second, 2)

	vecs, err := client.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Equal(t, []float32{2, 1}, vecs[2])
	require.Equal(t, int32(1), calls.Load())
}

func TestEmbedTexts_WrappedData(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, func(inputs []string) any {
		return map[string]any{"data": vectorsFor(inputs)}
	})
	client := New(srv.URL, time.Second, 2)

	vecs, err := client.EmbedTexts(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0, 1}}, vecs)
}

func TestEmbedTexts_EmptyInputMakesNoCall(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, func(inputs []string) any { return vectorsFor(inputs) })
	client := New(srv.URL, time.Second, 2)

	vecs, err := client.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, vecs)
	require.Empty(t, vecs)
	require.Equal(t, int32(0), calls.Load())
}

func TestEmbedTexts_MissingURL(t *testing.T) {
	client := New("", time.Second, 2)

	_, err := client.EmbedTexts(context.Background(), []string{"x"})
	var cfgErr *registryembed.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "EMBEDDINGS_URL", cfgErr.Setting)

	vecs, err := client.EmbedTexts(context.Background(), []string{})
	require.NoError(t, err)
	require.Empty(t, vecs)
}

func TestEmbedTexts_NonSuccessStatus(t *testing.T) {
	srv, _ := newServer(t, http.StatusServiceUnavailable, func([]string) any {
		return map[string]string{"error": "model loading"}
	})
	client := New(srv.URL, time.Second, 2)

	_, err := client.EmbedTexts(context.Background(), []string{"x"})
	var svcErr *registryembed.EmbeddingServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, http.StatusServiceUnavailable, svcErr.Status)
	require.Contains(t, svcErr.Error(), "model loading")
}

func TestEmbedTexts_CountMismatch(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, func([]string) any { return [][]float32{{1, 2}} })
	client := New(srv.URL, time.Second, 2)

	_, err := client.EmbedTexts(context.Background(), []string{"a", "b"})
	var svcErr *registryembed.EmbeddingServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Contains(t, svcErr.Message, "expected 2 embeddings, got 1")
}

func TestEmbedTexts_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second, 2).EmbedTexts(context.Background(), []string{"a"})
	var svcErr *registryembed.EmbeddingServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Zero(t, svcErr.Status)
	require.NotNil(t, errors.Unwrap(svcErr))
}

func TestParseEmbedResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    [][]float32
		wantErr string
	}{
		{name: "bare list", body: `[[0.1,0.2],[0.3,0.4]]`, want: [][]float32{{0.1, 0.2}, {0.3, 0.4}}},
		{name: "wrapped", body: ` {"data":[[1,2]]} `, want: [][]float32{{1, 2}}},
		{name: "empty list", body: `[]`, wantErr: "empty embedding result"},
		{name: "empty data", body: `{"data":[]}`, wantErr: "empty embedding result"},
		{name: "missing data", body: `{"embeddings":[[1]]}`, wantErr: `no "data"`},
		{name: "null data", body: `{"data":null}`, wantErr: `no "data"`},
		{name: "scalar", body: `42`, wantErr: "unrecognized response shape"},
		{name: "list of strings", body: `["a"]`, wantErr: "unrecognized response shape"},
		{name: "empty body", body: ``, wantErr: "empty response body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEmbedResponse([]byte(tt.body))
			if tt.wantErr != "" {
				var svcErr *registryembed.EmbeddingServiceError
				require.True(t, errors.As(err, &svcErr))
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestModelName_IdentifiesEndpointAndDimension(t *testing.T) {
	a := New("http://tei-a:8080/", time.Second, 1024)
	assert.Equal(t, "tei@http://tei-a:8080/1024", a.ModelName())
	assert.NotEqual(t, a.ModelName(), New("http://tei-b:8080", time.Second, 1024).ModelName())
	assert.NotEqual(t, a.ModelName(), New("http://tei-a:8080", time.Second, 768).ModelName())
	assert.Equal(t, a.ModelName(), New("http://tei-a:8080", time.Second, 1024).ModelName())
}
