package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processlens/internal/models"
	"processlens/internal/vectordb/qdrant"
)

// stubEmbedder returns a fixed vector for any text.
type stubEmbedder struct{}

func (stubEmbedder) Name() string   { return "stub" }
func (stubEmbedder) Dimension() int { return 3 }

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{0.1, 0.2, 0.3}, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i], _ = s.Embed(ctx, texts[i])
	}
	return out, nil
}

func qdrantTestClient(t *testing.T, server *httptest.Server) *qdrant.Client {
	t.Helper()

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	cfg := qdrant.DefaultConfig()
	cfg.Host = parsed.Hostname()
	cfg.HTTPPort = port

	client, err := qdrant.NewClient(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	return client
}

func TestPaperSourceRetrieve(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	// Vector store with two abstracts: one open access, one paywalled.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/abstract_collection/points/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"result": [
			{"id": "a", "score": 0.9, "payload": {"abstract": "Open abstract.", "corpus_id": 1}},
			{"id": "b", "score": 0.8, "payload": {"abstract": "Paywalled abstract.", "corpus_id": 2}}
		]}`)
	})

	// Bibliographic metadata.
	mux.HandleFunc("/paper/batch", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"corpusId":      1,
				"isOpenAccess":  true,
				"openAccessPdf": map[string]string{"url": server.URL + "/paper.pdf"},
			},
			{"corpusId": 2, "isOpenAccess": false},
		})
	})

	// PDF and extraction service.
	mux.HandleFunc("/paper.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/api/processFulltextDocument", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, teiSample)
	})

	source := NewPaperSource(
		qdrantTestClient(t, server),
		stubEmbedder{},
		NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger()),
		NewGrobidClient(&GrobidConfig{BaseURL: server.URL}, testLogger()),
		nil,
		"abstract_collection",
		testLogger(),
	)

	docs, err := source.Retrieve(context.Background(), "query", 10)

	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Open-access paper carries abstract plus extracted body.
	assert.Equal(t, "1", docs[0].SourceID)
	assert.Contains(t, docs[0].Content, "Open abstract.")
	assert.Contains(t, docs[0].Content, "First body paragraph.")
	assert.Equal(t, models.ProvenancePaper, docs[0].Provenance)

	// Paywalled paper degrades to its abstract.
	assert.Equal(t, "2", docs[1].SourceID)
	assert.Equal(t, "Paywalled abstract.", docs[1].Content)
}

func TestPaperSourceRobotsBlockedPDFKeepsAbstract(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	var pdfFetched bool

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /paper.pdf\n")
	})
	mux.HandleFunc("/collections/abstract_collection/points/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"result": [
			{"id": "a", "score": 0.9, "payload": {"abstract": "Open abstract.", "corpus_id": 1}}
		]}`)
	})
	mux.HandleFunc("/paper/batch", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"corpusId":      1,
				"isOpenAccess":  true,
				"openAccessPdf": map[string]string{"url": server.URL + "/paper.pdf"},
			},
		})
	})
	mux.HandleFunc("/paper.pdf", func(w http.ResponseWriter, r *http.Request) {
		pdfFetched = true
		_, _ = w.Write([]byte("%PDF"))
	})

	source := NewPaperSource(
		qdrantTestClient(t, server),
		stubEmbedder{},
		NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger()),
		NewGrobidClient(&GrobidConfig{BaseURL: server.URL}, testLogger()),
		nil,
		"abstract_collection",
		testLogger(),
	)

	docs, err := source.Retrieve(context.Background(), "query", 10)

	require.NoError(t, err)
	require.Len(t, docs, 1)

	// The disallowed PDF is never downloaded; the hit degrades to its abstract.
	assert.Equal(t, "Open abstract.", docs[0].Content)
	assert.False(t, pdfFetched)
}

func TestPaperSourceMetadataFailureKeepsAbstracts(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/abstract_collection/points/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"result": [
			{"id": "a", "score": 0.9, "payload": {"abstract": "Only abstract.", "corpus_id": 5}}
		]}`)
	})
	mux.HandleFunc("/paper/batch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	source := NewPaperSource(
		qdrantTestClient(t, server),
		stubEmbedder{},
		NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger()),
		NewGrobidClient(&GrobidConfig{BaseURL: server.URL}, testLogger()),
		nil,
		"abstract_collection",
		testLogger(),
	)

	docs, err := source.Retrieve(context.Background(), "query", 10)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Only abstract.", docs[0].Content)
}

func TestPaperSourceSkipsEmptyHits(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/abstract_collection/points/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"result": [
			{"id": "a", "score": 0.9, "payload": {}}
		]}`)
	})

	source := NewPaperSource(
		qdrantTestClient(t, server),
		stubEmbedder{},
		NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger()),
		NewGrobidClient(&GrobidConfig{BaseURL: server.URL}, testLogger()),
		nil,
		"abstract_collection",
		testLogger(),
	)

	docs, err := source.Retrieve(context.Background(), "query", 10)

	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFeedbackSourceRetrieve(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/tweet_collection/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(3), body["limit"])

		_, _ = fmt.Fprint(w, `{"result": [
			{"id": "a", "score": 0.95, "payload": {"text": "old complaint", "feedback_id": "f-1"}},
			{"id": "b", "score": 0.90, "payload": {"feedback_id": "f-2"}}
		]}`)
	})

	source := NewFeedbackSource(qdrantTestClient(t, server), stubEmbedder{}, "tweet_collection", testLogger())

	docs, err := source.Retrieve(context.Background(), "query", 3)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "old complaint", docs[0].Content)
	assert.Equal(t, "f-1", docs[0].SourceID)
	assert.Equal(t, models.ProvenanceFeedback, docs[0].Provenance)
	assert.InDelta(t, 0.95, docs[0].Score, 1e-6)
}
