package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processlens/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func scoringServer(t *testing.T, scores map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Pairs [][2]string `json:"pairs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		out := make([]float64, len(body.Pairs))
		for i, pair := range body.Pairs {
			out[i] = scores[pair[1]]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"scores": out})
	}))
}

func docs(contents ...string) []models.Document {
	out := make([]models.Document, len(contents))
	for i, c := range contents {
		out[i] = models.Document{Content: c, SourceID: c}
	}
	return out
}

func TestRerankOrdersByCrossEncoderScore(t *testing.T) {
	server := scoringServer(t, map[string]float64{"low": 0.1, "mid": 0.5, "high": 0.9})
	defer server.Close()

	r := NewCrossEncoder(&Config{Endpoint: server.URL}, testLogger())

	ranked := r.Rerank(context.Background(), "query", docs("low", "high", "mid"), 3)

	require.Len(t, ranked, 3)
	assert.Equal(t, "high", ranked[0].Content)
	assert.Equal(t, "mid", ranked[1].Content)
	assert.Equal(t, "low", ranked[2].Content)
}

func TestRerankKeepsTopK(t *testing.T) {
	server := scoringServer(t, map[string]float64{"a": 0.9, "b": 0.8, "c": 0.2, "d": 0.1})
	defer server.Close()

	r := NewCrossEncoder(&Config{Endpoint: server.URL}, testLogger())

	ranked := r.Rerank(context.Background(), "query", docs("c", "a", "d", "b"), 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Content)
	assert.Equal(t, "b", ranked[1].Content)
}

func TestRerankTiesKeepInputOrder(t *testing.T) {
	server := scoringServer(t, map[string]float64{"first": 0.5, "second": 0.5, "third": 0.5})
	defer server.Close()

	r := NewCrossEncoder(&Config{Endpoint: server.URL}, testLogger())

	ranked := r.Rerank(context.Background(), "query", docs("first", "second", "third"), 3)

	require.Len(t, ranked, 3)
	assert.Equal(t, "first", ranked[0].Content)
	assert.Equal(t, "second", ranked[1].Content)
	assert.Equal(t, "third", ranked[2].Content)
}

func TestRerankFallsBackToRetrievalScoresOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewCrossEncoder(&Config{Endpoint: server.URL}, testLogger())

	input := []models.Document{
		{Content: "weak", Score: 0.2},
		{Content: "strong", Score: 0.8},
	}

	ranked := r.Rerank(context.Background(), "query", input, 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "strong", ranked[0].Content)
	assert.Equal(t, "weak", ranked[1].Content)
}

func TestRerankDoesNotMutateInput(t *testing.T) {
	server := scoringServer(t, map[string]float64{"a": 0.1, "b": 0.9})
	defer server.Close()

	r := NewCrossEncoder(&Config{Endpoint: server.URL}, testLogger())

	input := docs("a", "b")
	_ = r.Rerank(context.Background(), "query", input, 2)

	assert.Equal(t, "a", input[0].Content)
	assert.Equal(t, "b", input[1].Content)
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewCrossEncoder(nil, testLogger())
	assert.Nil(t, r.Rerank(context.Background(), "query", nil, 5))
	assert.Nil(t, r.Rerank(context.Background(), "query", docs("x"), 0))
}

func TestOverlapFallbackWithoutEndpoint(t *testing.T) {
	r := NewCrossEncoder(&Config{}, testLogger())

	input := []models.Document{
		{Content: "completely unrelated words", Score: 0.5},
		{Content: "baggage handling process improvements", Score: 0.5},
	}

	ranked := r.Rerank(context.Background(), "baggage handling", input, 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "baggage handling process improvements", ranked[0].Content)
}
