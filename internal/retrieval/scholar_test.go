package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPapersByCorpusIDFormatsIDs(t *testing.T) {
	var captured struct {
		IDs []string `json:"ids"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paper/batch", r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "fields=")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`[{"corpusId": 42, "title": "A Study", "isOpenAccess": false}]`))
	}))
	defer server.Close()

	client := NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger())

	papers, err := client.PapersByCorpusID(context.Background(), []int64{42})

	require.NoError(t, err)
	assert.Equal(t, []string{"CorpusId:42"}, captured.IDs)
	require.Contains(t, papers, int64(42))
	assert.Equal(t, "A Study", papers[42].Title)
}

func TestPapersByCorpusIDChunksLargeBatches(t *testing.T) {
	var batchSizes []int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		batchSizes = append(batchSizes, len(body.IDs))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger())

	ids := make([]int64, 1201)
	for i := range ids {
		ids[i] = int64(i)
	}

	_, err := client.PapersByCorpusID(context.Background(), ids)

	require.NoError(t, err)
	assert.Equal(t, []int{500, 500, 201}, batchSizes)
}

func TestPapersByCorpusIDSkipsNullEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"corpusId": 1, "title": "Known"}, null]`))
	}))
	defer server.Close()

	client := NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger())

	papers, err := client.PapersByCorpusID(context.Background(), []int64{1, 2})

	require.NoError(t, err)
	assert.Len(t, papers, 1)
	assert.Contains(t, papers, int64(1))
}

func TestPapersByCorpusIDPropagatesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewScholarClient(&ScholarConfig{BaseURL: server.URL}, testLogger())

	_, err := client.PapersByCorpusID(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestPaperPdfURL(t *testing.T) {
	open := &Paper{IsOpenAccess: true}
	open.OpenAccessPdf = &struct {
		URL string `json:"url"`
	}{URL: "https://example.org/p.pdf"}
	assert.Equal(t, "https://example.org/p.pdf", open.PdfURL())

	paywalled := &Paper{IsOpenAccess: false}
	paywalled.OpenAccessPdf = open.OpenAccessPdf
	assert.Empty(t, paywalled.PdfURL())

	assert.Empty(t, (&Paper{IsOpenAccess: true}).PdfURL())
}

func TestScholarAPIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewScholarClient(&ScholarConfig{BaseURL: server.URL, APIKey: "secret"}, testLogger())

	_, err := client.PapersByCorpusID(context.Background(), []int64{7})
	require.NoError(t, err)
}

func TestCombinePaperText(t *testing.T) {
	tests := []struct {
		abstract string
		body     string
		expected string
	}{
		{"abs", "body", "abs\nbody"},
		{"", "body", "body"},
		{"abs", "", "abs"},
		{"", "", ""},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, tt.expected, combinePaperText(tt.abstract, tt.body))
		})
	}
}

func TestPayloadCorpusID(t *testing.T) {
	id, ok := payloadCorpusID(map[string]interface{}{"corpus_id": float64(99)})
	assert.True(t, ok)
	assert.Equal(t, int64(99), id)

	id, ok = payloadCorpusID(map[string]interface{}{"corpus_id": "123"})
	assert.True(t, ok)
	assert.Equal(t, int64(123), id)

	_, ok = payloadCorpusID(map[string]interface{}{"corpus_id": "not-a-number"})
	assert.False(t, ok)

	_, ok = payloadCorpusID(nil)
	assert.False(t, ok)
}
