// Package retrieval gathers grounding context for a search query from three
// knowledge sources: previously indexed feedback, scientific paper abstracts
// upgraded to full text where available, and live web search. Sources run
// concurrently; a failing source contributes nothing and never fails the
// query.
package retrieval

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"processlens/internal/models"
	"processlens/internal/splitter"
)

// Source is one knowledge source the retriever can consult.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Retrieve returns up to limit documents relevant to the query.
	Retrieve(ctx context.Context, query string, limit int) ([]models.Document, error)
}

// Retriever fans a query out to all sources and splits the merged results
// into token-bounded chunks.
type Retriever struct {
	sources  []Source
	splitter *splitter.Splitter
	limit    int
	logger   *logrus.Logger
}

// NewRetriever creates a retriever over the given sources. Source order is
// preserved in the merged output.
func NewRetriever(sources []Source, split *splitter.Splitter, limit int, logger *logrus.Logger) *Retriever {
	if split == nil {
		split = splitter.New(0, 0)
	}
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Retriever{
		sources:  sources,
		splitter: split,
		limit:    limit,
		logger:   logger,
	}
}

// Retrieve queries every source concurrently and returns the chunked union.
// Results keep source order (the order sources were registered in), then
// each source's own ranking, so output is deterministic for fixed source
// responses. Per-source failures are logged and yield an empty contribution.
func (r *Retriever) Retrieve(ctx context.Context, query string) []models.Document {
	if query == "" {
		return nil
	}

	perSource := make([][]models.Document, len(r.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range r.sources {
		i, source := i, source
		g.Go(func() error {
			docs, err := source.Retrieve(gctx, query, r.limit)
			if err != nil {
				r.logger.WithError(err).WithField("source", source.Name()).Warn("Source retrieval failed")
				return nil
			}
			perSource[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	var merged []models.Document
	for _, docs := range perSource {
		merged = append(merged, docs...)
	}

	chunks := r.splitter.SplitDocuments(merged)

	r.logger.WithFields(logrus.Fields{
		"query":     query,
		"documents": len(merged),
		"chunks":    len(chunks),
	}).Debug("Context retrieved")

	return chunks
}
