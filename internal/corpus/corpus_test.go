package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processlens/internal/models"
	"processlens/internal/vectordb/qdrant"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFeedbackCSV(t *testing.T) {
	path := writeFile(t, "feedback.csv", strings.Join([]string{
		"feedback_id,feedback_text",
		"f-1,Lost my bags.",
		"f-2,",
		",No id on this one.",
	}, "\n"))

	items, err := LoadFeedbackCSV(path)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "f-1", items[0].ID)
	assert.Equal(t, "Lost my bags.", items[0].Text)

	// Missing ids are filled in.
	assert.NotEmpty(t, items[1].ID)
	assert.Equal(t, "No id on this one.", items[1].Text)
}

func TestLoadFeedbackCSVAlternateColumns(t *testing.T) {
	path := writeFile(t, "tweets.csv", strings.Join([]string{
		"id,author,tweet",
		"1,someone,Flight delayed again.",
	}, "\n"))

	items, err := LoadFeedbackCSV(path)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "Flight delayed again.", items[0].Text)
}

func TestLoadFeedbackCSVNoTextColumn(t *testing.T) {
	path := writeFile(t, "bad.csv", "id,author\n1,someone\n")

	_, err := LoadFeedbackCSV(path)
	assert.Error(t, err)
}

func TestLoadFeedbackCSVMissingFile(t *testing.T) {
	_, err := LoadFeedbackCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadFeedbackJSONL(t *testing.T) {
	path := writeFile(t, "feedback.jsonl", strings.Join([]string{
		`{"feedback_id": "f-1", "feedback_text": "Lost my bags."}`,
		``,
		`{"feedback_text": "No id here."}`,
		`{"feedback_id": "f-3", "feedback_text": ""}`,
	}, "\n"))

	items, err := LoadFeedbackJSONL(path)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "f-1", items[0].ID)
	assert.NotEmpty(t, items[1].ID)
	assert.Equal(t, "No id here.", items[1].Text)
}

func TestLoadFeedbackJSONLInvalidLine(t *testing.T) {
	path := writeFile(t, "broken.jsonl", `{"feedback_id": "f-1"`+"\n")

	_, err := LoadFeedbackJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoadAbstractsJSONL(t *testing.T) {
	path := writeFile(t, "abstracts.jsonl", strings.Join([]string{
		`{"corpus_id": 42, "abstract": "A study of baggage handling."}`,
		`{"corpus_id": 43, "abstract": ""}`,
	}, "\n"))

	records, err := LoadAbstractsJSONL(path)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(42), records[0].CorpusID)
	assert.Equal(t, "A study of baggage handling.", records[0].Abstract)
}

// fixedModel embeds every text to the same short vector.
type fixedModel struct {
	mu      sync.Mutex
	batches [][]string
}

func (*fixedModel) Name() string   { return "fixed" }
func (*fixedModel) Dimension() int { return 2 }

func (m *fixedModel) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (m *fixedModel) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	m.mu.Lock()
	m.batches = append(m.batches, texts)
	m.mu.Unlock()

	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

type upsertCapture struct {
	created bool
	points  []map[string]interface{}
}

func indexerTestServer(t *testing.T, collection string, capture *upsertCapture) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/"+collection, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if capture.created {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			capture.created = true
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/collections/"+collection+"/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []map[string]interface{} `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		capture.points = append(capture.points, body.Points...)
		_, _ = fmt.Fprint(w, `{"result": {"status": "acknowledged"}}`)
	})

	return server
}

func indexerTestClient(t *testing.T, server *httptest.Server) *qdrant.Client {
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

func TestIndexFeedback(t *testing.T) {
	capture := &upsertCapture{}
	server := indexerTestServer(t, "tweet_collection", capture)
	defer server.Close()

	model := &fixedModel{}
	indexer := NewIndexer(indexerTestClient(t, server), model, nil, 2, testLogger())

	items := []models.FeedbackItem{
		{ID: "f-1", Text: "one"},
		{ID: "f-2", Text: "two"},
		{ID: "f-3", Text: "three"},
	}

	require.NoError(t, indexer.IndexFeedback(context.Background(), "tweet_collection", items))

	// Missing collection was created, then three points upserted in two batches.
	assert.True(t, capture.created)
	require.Len(t, capture.points, 3)
	assert.Equal(t, [][]string{{"one", "two"}, {"three"}}, model.batches)

	payload := capture.points[0]["payload"].(map[string]interface{})
	assert.Equal(t, "one", payload["text"])
	assert.Equal(t, "f-1", payload["feedback_id"])

	// Point ids are derived from the feedback id, so re-indexing overwrites.
	first := capture.points[0]["id"]
	capture.points = nil
	require.NoError(t, indexer.IndexFeedback(context.Background(), "tweet_collection", items))
	assert.Equal(t, first, capture.points[0]["id"])
}

func TestIndexAbstracts(t *testing.T) {
	capture := &upsertCapture{}
	server := indexerTestServer(t, "abstract_collection", capture)
	defer server.Close()

	indexer := NewIndexer(indexerTestClient(t, server), &fixedModel{}, nil, 10, testLogger())

	records := []AbstractRecord{{CorpusID: 42, Abstract: "A study."}}

	require.NoError(t, indexer.IndexAbstracts(context.Background(), "abstract_collection", records))

	require.Len(t, capture.points, 1)
	payload := capture.points[0]["payload"].(map[string]interface{})
	assert.Equal(t, "A study.", payload["abstract"])
	assert.Equal(t, float64(42), payload["corpus_id"])
}

func TestIndexAbstractsSplitsLongTexts(t *testing.T) {
	capture := &upsertCapture{}
	server := indexerTestServer(t, "abstract_collection", capture)
	defer server.Close()

	indexer := NewIndexer(indexerTestClient(t, server), &fixedModel{}, nil, 10, testLogger())

	// 300 words exceed the 256-token chunk budget, so the abstract becomes
	// two overlapping chunk points.
	long := strings.TrimSpace(strings.Repeat("turnaround ", 300))
	records := []AbstractRecord{{CorpusID: 7, Abstract: long}}

	require.NoError(t, indexer.IndexAbstracts(context.Background(), "abstract_collection", records))

	require.Len(t, capture.points, 2)
	assert.NotEqual(t, capture.points[0]["id"], capture.points[1]["id"])

	for _, point := range capture.points {
		payload := point["payload"].(map[string]interface{})
		assert.Equal(t, float64(7), payload["corpus_id"])
		chunk := payload["abstract"].(string)
		assert.NotEmpty(t, chunk)
		assert.Less(t, len(strings.Fields(chunk)), 300)
	}

	// Re-indexing keeps the chunk-derived point ids stable.
	first := capture.points[0]["id"]
	capture.points = nil
	require.NoError(t, indexer.IndexAbstracts(context.Background(), "abstract_collection", records))
	assert.Equal(t, first, capture.points[0]["id"])
}
