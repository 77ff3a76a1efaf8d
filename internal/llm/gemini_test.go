package llm_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/llm"
)

func TestGeminiEmbedder_EmbedBatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{
				{"values": []float32{1, 0, 0}},
				{"values": []float32{0, 1, 0}},
			},
		})
	}))
	t.Cleanup(server.Close)

	emb, err := llm.NewGeminiEmbedder(t.Context(), llm.EmbedderConfig{
		APIKey:     "k",
		Dimensions: 3,
		BaseURL:    server.URL,
	}, logger.NewNop())
	require.NoError(t, err)

	vectors, err := emb.EmbedBatch(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 1, 0}, vectors[1])

	empty, err := emb.EmbedBatch(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGeminiEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[1,2]}]}`))
	}))
	t.Cleanup(server.Close)

	emb, err := llm.NewGeminiEmbedder(t.Context(), llm.EmbedderConfig{APIKey: "k", BaseURL: server.URL}, logger.NewNop())
	require.NoError(t, err)

	_, err = emb.EmbedBatch(t.Context(), []string{"a", "b"})
	require.Error(t, err)
}
