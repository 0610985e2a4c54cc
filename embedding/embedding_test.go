package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/personaflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func embeddingServer(t *testing.T, dims int, fail bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req embeddingWireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingWireResponse{}
		for i := range req.Input {
			vec := make([]float64, dims)
			vec[0] = float64(i + 1)
			resp.Data = append(resp.Data, struct {
				Embedding []float64 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestRemoteEmbedderBatch(t *testing.T) {
	srv := embeddingServer(t, 1536, false)
	defer srv.Close()

	e := NewRemoteEmbedder(RemoteConfig{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
	}, zap.NewNop())

	vecs, err := e.Embed(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 1536)
	assert.Equal(t, float64(1), vecs[0][0])
	assert.Equal(t, float64(2), vecs[1][0])
}

func TestRemoteEmbedderEmptyInputIsFatal(t *testing.T) {
	srv := embeddingServer(t, 1536, false)
	defer srv.Close()

	e := NewRemoteEmbedder(RemoteConfig{BaseURL: srv.URL, Model: "m"}, zap.NewNop())

	_, err := e.Embed(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyContent, types.GetErrorCode(err))

	_, err = e.Embed(context.Background(), []string{"ok", ""})
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyContent, types.GetErrorCode(err))
}

func TestRemoteEmbedderDimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, 8, false)
	defer srv.Close()

	e := NewRemoteEmbedder(RemoteConfig{
		BaseURL:    srv.URL,
		Model:      "m",
		Dimensions: 1536,
	}, zap.NewNop())

	_, err := e.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Equal(t, types.ErrDimensionError, types.GetErrorCode(err))
}

func TestFallbackEmbedderDegradesToSecondary(t *testing.T) {
	primary := embeddingServer(t, 384, true)
	defer primary.Close()
	secondary := embeddingServer(t, 1536, false)
	defer secondary.Close()

	fb := NewFallbackEmbedder(
		NewRemoteEmbedder(RemoteConfig{BaseURL: primary.URL, Model: "bge", Dimensions: 384}, zap.NewNop()),
		NewRemoteEmbedder(RemoteConfig{BaseURL: secondary.URL, Model: "oa"}, zap.NewNop()),
		nil, zap.NewNop(),
	)

	vecs, err := fb.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], 1536)
}

func TestFallbackEmbedderEmptyInputSkipsSecondary(t *testing.T) {
	secondary := embeddingServer(t, 1536, false)
	defer secondary.Close()

	fb := NewFallbackEmbedder(
		NewRemoteEmbedder(RemoteConfig{BaseURL: "http://127.0.0.1:1", Model: "bge"}, zap.NewNop()),
		NewRemoteEmbedder(RemoteConfig{BaseURL: secondary.URL, Model: "oa"}, zap.NewNop()),
		nil, zap.NewNop(),
	)

	_, err := fb.Embed(context.Background(), []string{})
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyContent, types.GetErrorCode(err))
}

func TestZeroVector(t *testing.T) {
	v := ZeroVector(384)
	assert.Len(t, v, 384)
	assert.True(t, IsZeroVector(v))
	assert.False(t, IsZeroVector([]float64{0, 0.1}))
	assert.False(t, IsZeroVector(nil))
}

func TestForCharacterSelection(t *testing.T) {
	openaiChar := &types.Character{Name: "a", ModelProvider: types.ProviderOpenAI}
	assert.Equal(t, 1536, ForCharacter(openaiChar, nil, zap.NewNop()).Dimensions())

	ollamaChar := &types.Character{Name: "b", ModelProvider: types.ProviderOllama}
	assert.Equal(t, 1024, ForCharacter(ollamaChar, nil, zap.NewNop()).Dimensions())

	localChar := &types.Character{Name: "c", ModelProvider: types.ProviderLocal}
	assert.Equal(t, 384, ForCharacter(localChar, nil, zap.NewNop()).Dimensions())
}
