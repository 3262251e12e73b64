package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// testClient returns a connected client pointed at the server.
func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	client, err := NewClient(&Config{
		Host:         parsed.Hostname(),
		HTTPPort:     port,
		Timeout:      DefaultConfig().Timeout,
		DefaultLimit: 10,
	}, testLogger())
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))

	return client
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(&Config{Host: ""}, testLogger())
	assert.Error(t, err)
}

func TestConnectFailsOnUnhealthyInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	parsed, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(parsed.Port())
	client, err := NewClient(&Config{Host: parsed.Hostname(), HTTPPort: port, Timeout: DefaultConfig().Timeout, DefaultLimit: 10}, testLogger())
	require.NoError(t, err)

	assert.Error(t, client.Connect(context.Background()))
	assert.False(t, client.IsConnected())
}

func TestOperationsRequireConnection(t *testing.T) {
	client, err := NewClient(DefaultConfig(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, client.CreateCollection(ctx, &CollectionConfig{Name: "x", VectorSize: 4, Distance: DistanceCosine}))
	_, err = client.Search(ctx, "x", []float32{1}, nil)
	assert.Error(t, err)
	err = client.UpsertPoints(ctx, "x", []Point{{Vector: []float32{1}}})
	assert.Error(t, err)
}

func TestCreateCollection(t *testing.T) {
	var captured map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/tweet_collection", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"result": true}`))
	}))
	defer server.Close()

	client := testClient(t, server)

	err := client.CreateCollection(context.Background(), &CollectionConfig{
		Name:       "tweet_collection",
		VectorSize: 384,
		Distance:   DistanceCosine,
	})
	require.NoError(t, err)

	vectors := captured["vectors"].(map[string]interface{})
	assert.Equal(t, float64(384), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestUpsertPointsAssignsMissingIDs(t *testing.T) {
	var captured struct {
		Points []Point `json:"points"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"result": {}}`))
	}))
	defer server.Close()

	client := testClient(t, server)

	err := client.UpsertPoints(context.Background(), "c", []Point{
		{ID: "fixed", Vector: []float32{1}},
		{Vector: []float32{2}},
	})
	require.NoError(t, err)

	require.Len(t, captured.Points, 2)
	assert.Equal(t, "fixed", captured.Points[0].ID)
	assert.NotEmpty(t, captured.Points[1].ID)
}

func TestUpsertPointsEmptyIsNoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testClient(t, server)
	assert.NoError(t, client.UpsertPoints(context.Background(), "c", nil))
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, "/collections/tweet_collection/points/search", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body["limit"])
		assert.Equal(t, true, body["with_payload"])

		_, _ = w.Write([]byte(`{"result": [
			{"id": "p1", "score": 0.92, "payload": {"text": "first"}},
			{"id": "p2", "score": 0.85, "payload": {"text": "second"}}
		]}`))
	}))
	defer server.Close()

	client := testClient(t, server)

	hits, err := client.Search(context.Background(), "tweet_collection", []float32{0.1, 0.2}, &SearchOptions{
		Limit:       5,
		WithPayload: true,
	})

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "p1", hits[0].ID)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-6)
	assert.Equal(t, "first", hits[0].Payload["text"])
}

func TestSearchNilOptionsUseConfigDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["limit"])
		assert.InDelta(t, 0.25, body["score_threshold"], 1e-6)
		assert.Equal(t, true, body["with_payload"])

		_, _ = w.Write([]byte(`{"result": []}`))
	}))
	defer server.Close()

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	client, err := NewClient(&Config{
		Host:           parsed.Hostname(),
		HTTPPort:       port,
		Timeout:        DefaultConfig().Timeout,
		DefaultLimit:   7,
		ScoreThreshold: 0.25,
	}, testLogger())
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))

	_, err = client.Search(context.Background(), "c", []float32{0.1}, nil)
	require.NoError(t, err)
}

func TestCollectionExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/collections/present":
			_, _ = w.Write([]byte(`{"result": {}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := testClient(t, server)
	ctx := context.Background()

	exists, err := client.CollectionExists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.CollectionExists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCountPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, "/collections/c/points/count", r.URL.Path)
		_, _ = w.Write([]byte(`{"result": {"count": 1234}}`))
	}))
	defer server.Close()

	client := testClient(t, server)

	count, err := client.CountPoints(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), count)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"empty host", func(c *Config) { c.Host = "" }, true},
		{"bad port", func(c *Config) { c.HTTPPort = 0 }, true},
		{"bad timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"bad limit", func(c *Config) { c.DefaultLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			if tt.expectError {
				assert.Error(t, config.Validate())
			} else {
				assert.NoError(t, config.Validate())
			}
		})
	}
}

func TestCollectionConfigValidate(t *testing.T) {
	assert.NoError(t, (&CollectionConfig{Name: "c", VectorSize: 384, Distance: DistanceCosine}).Validate())
	assert.Error(t, (&CollectionConfig{Name: "", VectorSize: 384, Distance: DistanceCosine}).Validate())
	assert.Error(t, (&CollectionConfig{Name: "c", VectorSize: 0, Distance: DistanceCosine}).Validate())
	assert.Error(t, (&CollectionConfig{Name: "c", VectorSize: 4, Distance: Distance("Manhattan")}).Validate())
}
