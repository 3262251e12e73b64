package retrieval

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"processlens/internal/embedding"
	"processlens/internal/models"
	"processlens/internal/vectordb/qdrant"
)

// FeedbackSource retrieves previously indexed feedback texts by vector
// similarity.
type FeedbackSource struct {
	client     *qdrant.Client
	model      embedding.Model
	collection string
	logger     *logrus.Logger
}

// NewFeedbackSource creates a source over the feedback collection.
func NewFeedbackSource(client *qdrant.Client, model embedding.Model, collection string, logger *logrus.Logger) *FeedbackSource {
	if logger == nil {
		logger = logrus.New()
	}
	return &FeedbackSource{
		client:     client,
		model:      model,
		collection: collection,
		logger:     logger,
	}
}

// Name identifies the source.
func (s *FeedbackSource) Name() string {
	return "feedback"
}

// Retrieve embeds the query and returns the most similar indexed feedback
// texts.
func (s *FeedbackSource) Retrieve(ctx context.Context, query string, limit int) ([]models.Document, error) {
	vector, err := s.model.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.client.Search(ctx, s.collection, toFloat32(vector), &qdrant.SearchOptions{
		Limit:       limit,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", s.collection, err)
	}

	var docs []models.Document
	for _, hit := range hits {
		text := payloadString(hit.Payload, "text")
		if text == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content:    text,
			SourceID:   payloadString(hit.Payload, "feedback_id"),
			Provenance: models.ProvenanceFeedback,
			Score:      float64(hit.Score),
		})
	}

	return docs, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}
