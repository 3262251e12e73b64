// Package engine runs the suggestion pipeline: weakness extraction per
// feedback item, batch-wide clustering, per-cluster retrieval-grounded
// suggestion generation, and per-item answer synthesis.
//
// Past startup the pipeline fails open. Every unit of work that errors is
// replaced by its sentinel (no weaknesses, empty query, empty suggestion,
// "N/A" answer) and the batch continues; no single feedback item, cluster or
// collaborator outage aborts a run.
package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"processlens/internal/llm"
	"processlens/internal/models"
)

// Completer is the chat-completion surface the generation steps need.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Clusterer assigns cluster identifiers to extracted weaknesses in place.
type Clusterer interface {
	Assign(ctx context.Context, weaknesses []models.Weakness)
}

// ContextRetriever gathers grounding chunks for a search query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) []models.Document
}

// Reranker orders retrieved chunks by relevance and keeps the best topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []models.Document, topK int) []models.Document
}

// Options tunes a pipeline run.
type Options struct {
	// Workers bounds concurrent LLM calls within a stage.
	Workers int
	// MaxClusterExamples caps how many member texts feed query generation.
	MaxClusterExamples int
	// RerankLimit is how many chunks survive reranking per cluster.
	RerankLimit int
}

// DefaultOptions returns the tuning the pipeline ships with.
func DefaultOptions() Options {
	return Options{
		Workers:            4,
		MaxClusterExamples: 10,
		RerankLimit:        10,
	}
}

// Engine wires the pipeline stages together.
type Engine struct {
	completer Completer
	clusterer Clusterer
	retriever ContextRetriever
	reranker  Reranker
	opts      Options
	logger    *logrus.Logger
}

// New creates an engine.
func New(completer Completer, clusterer Clusterer, retriever ContextRetriever, reranker Reranker, opts Options, logger *logrus.Logger) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxClusterExamples < 1 {
		opts.MaxClusterExamples = 10
	}
	if opts.RerankLimit < 1 {
		opts.RerankLimit = 10
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Engine{
		completer: completer,
		clusterer: clusterer,
		retriever: retriever,
		reranker:  reranker,
		opts:      opts,
		logger:    logger,
	}
}

// Run processes one feedback batch end to end. Output rows preserve input
// order; every feedback item appears exactly once in the result regardless
// of what failed along the way.
func (e *Engine) Run(ctx context.Context, items []models.FeedbackItem) *models.PipelineResult {
	e.logger.WithField("items", len(items)).Info("Pipeline started")

	weaknesses := e.extractWeaknesses(ctx, items)
	e.clusterer.Assign(ctx, weaknesses)
	clusters := e.processClusters(ctx, weaknesses)
	joinSuggestions(weaknesses, clusters)
	feedback := e.synthesizeAnswers(ctx, items, weaknesses)

	e.logger.WithFields(logrus.Fields{
		"items":      len(items),
		"weaknesses": len(weaknesses),
		"clusters":   len(clusters),
	}).Info("Pipeline finished")

	return &models.PipelineResult{
		Feedback: feedback,
		Weakness: weaknesses,
		Clusters: clusters,
	}
}
