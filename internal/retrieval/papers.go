package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"processlens/internal/embedding"
	"processlens/internal/models"
	"processlens/internal/vectordb/qdrant"
)

// PaperSource retrieves scientific paper abstracts by vector similarity and
// upgrades open-access hits to full text. Per paper, the content used is the
// richest available: abstract plus extracted body, body alone, abstract
// alone. Papers yielding no text are skipped.
type PaperSource struct {
	client     *qdrant.Client
	model      embedding.Model
	scholar    *ScholarClient
	grobid     *GrobidClient
	robots     *RobotsChecker
	collection string
	logger     *logrus.Logger
}

// NewPaperSource creates a source over the abstract collection. PDF downloads
// go through robots, which defaults to a checker with the standard user agent
// when nil.
func NewPaperSource(client *qdrant.Client, model embedding.Model, scholar *ScholarClient, grobid *GrobidClient, robots *RobotsChecker, collection string, logger *logrus.Logger) *PaperSource {
	if robots == nil {
		robots = NewRobotsChecker("processlens/1.0", 10*time.Second)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PaperSource{
		client:     client,
		model:      model,
		scholar:    scholar,
		grobid:     grobid,
		robots:     robots,
		collection: collection,
		logger:     logger,
	}
}

// Name identifies the source.
func (s *PaperSource) Name() string {
	return "papers"
}

// Retrieve embeds the query, finds the most similar abstracts and enriches
// each hit with full text where an open-access PDF exists. Metadata and
// extraction failures degrade individual hits to their abstracts instead of
// failing the query.
func (s *PaperSource) Retrieve(ctx context.Context, query string, limit int) ([]models.Document, error) {
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

	papers := s.lookupPapers(ctx, hits)

	var docs []models.Document
	for _, hit := range hits {
		abstract := payloadString(hit.Payload, "abstract")
		corpusID, hasID := payloadCorpusID(hit.Payload)

		var body string
		if hasID {
			if paper, ok := papers[corpusID]; ok {
				body = s.fullText(ctx, paper)
			}
		}

		content := combinePaperText(abstract, body)
		if content == "" {
			continue
		}

		sourceID := ""
		if hasID {
			sourceID = strconv.FormatInt(corpusID, 10)
		}

		docs = append(docs, models.Document{
			Content:    content,
			SourceID:   sourceID,
			Provenance: models.ProvenancePaper,
			Score:      float64(hit.Score),
		})
	}

	return docs, nil
}

// lookupPapers batch-fetches bibliographic records for the hits that carry a
// corpus id. A metadata failure leaves every hit abstract-only.
func (s *PaperSource) lookupPapers(ctx context.Context, hits []qdrant.ScoredPoint) map[int64]*Paper {
	var corpusIDs []int64
	seen := make(map[int64]bool)
	for _, hit := range hits {
		if id, ok := payloadCorpusID(hit.Payload); ok && !seen[id] {
			seen[id] = true
			corpusIDs = append(corpusIDs, id)
		}
	}
	if len(corpusIDs) == 0 {
		return nil
	}

	papers, err := s.scholar.PapersByCorpusID(ctx, corpusIDs)
	if err != nil {
		s.logger.WithError(err).Warn("Paper metadata lookup failed, using abstracts only")
		return nil
	}
	return papers
}

// fullText extracts the body of the paper's open-access PDF, empty when the
// paper is paywalled, the host disallows crawling or extraction fails.
func (s *PaperSource) fullText(ctx context.Context, paper *Paper) string {
	pdfURL := paper.PdfURL()
	if pdfURL == "" {
		return ""
	}

	if !s.robots.Allowed(ctx, pdfURL) {
		s.logger.WithField("url", pdfURL).Debug("PDF disallowed by robots.txt, using abstract")
		return ""
	}

	body, err := s.grobid.BodyText(ctx, pdfURL)
	if err != nil {
		s.logger.WithError(err).WithField("corpus_id", paper.CorpusID).Warn("Full-text extraction failed, using abstract")
		return ""
	}
	return body
}

func combinePaperText(abstract, body string) string {
	switch {
	case abstract != "" && body != "":
		return abstract + "\n" + body
	case body != "":
		return body
	default:
		return abstract
	}
}

// payloadCorpusID reads the corpus id from a hit payload, accepting the
// numeric and string encodings different indexers produce.
func payloadCorpusID(payload map[string]interface{}) (int64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload["corpus_id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
