package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"processlens/internal/cluster"
	"processlens/internal/config"
	"processlens/internal/embedding"
	"processlens/internal/engine"
	"processlens/internal/rerank"
	"processlens/internal/retrieval"
	"processlens/internal/splitter"
	"processlens/internal/vectordb/qdrant"

	"processlens/internal/llm"
)

// app holds the wired pipeline collaborators.
type app struct {
	engine    *engine.Engine
	qdrant    *qdrant.Client
	completer *llm.Client
	search    embedding.Model
}

// buildApp constructs every collaborator from configuration and verifies the
// vector store is reachable.
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:     cfg.Qdrant.Host,
		HTTPPort: cfg.Qdrant.Port,
		APIKey:   cfg.Qdrant.APIKey,
		UseTLS:   cfg.Qdrant.UseTLS,
		Timeout:  cfg.Qdrant.Timeout,
		// DefaultLimit applies when a caller passes no options.
		DefaultLimit: cfg.Pipeline.RetrieveLimit,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := qdrantClient.Connect(ctx); err != nil {
		return nil, err
	}

	searchModel, err := newEmbeddingModel(cfg, cfg.Embedding.SearchModel)
	if err != nil {
		return nil, err
	}
	clusterModel, err := newEmbeddingModel(cfg, cfg.Embedding.ClusterModel)
	if err != nil {
		return nil, err
	}

	clusterer, err := cluster.New(&cluster.Config{
		Threshold:        cfg.Pipeline.ClusterThreshold,
		MinCommunitySize: cfg.Pipeline.ClusterMinSize,
	}, clusterModel, logger)
	if err != nil {
		return nil, err
	}

	scholar := retrieval.NewScholarClient(&retrieval.ScholarConfig{
		BaseURL: cfg.Papers.ScholarBaseURL,
		APIKey:  cfg.Papers.ScholarAPIKey,
		Timeout: cfg.Papers.Timeout,
	}, logger)
	grobid := retrieval.NewGrobidClient(&retrieval.GrobidConfig{
		BaseURL: cfg.Papers.GrobidURL,
	}, logger)
	robots := retrieval.NewRobotsChecker(cfg.WebSearch.UserAgent, cfg.WebSearch.FetchTimeout)

	sources := []retrieval.Source{
		retrieval.NewFeedbackSource(qdrantClient, searchModel, cfg.Qdrant.FeedbackCollection, logger),
		retrieval.NewPaperSource(qdrantClient, searchModel, scholar, grobid, robots, cfg.Qdrant.AbstractCollection, logger),
		retrieval.NewWebSource(&retrieval.WebConfig{
			SearchURL:   cfg.WebSearch.BaseURL + "/web/search",
			APIKey:      cfg.WebSearch.APIKey,
			UserAgent:   cfg.WebSearch.UserAgent,
			Timeout:     cfg.WebSearch.FetchTimeout,
			MaxPageSize: cfg.WebSearch.MaxResponseSize,
		}, logger),
	}

	retriever := retrieval.NewRetriever(sources, splitter.New(0, 0), cfg.Pipeline.RetrieveLimit, logger)

	reranker := rerank.NewCrossEncoder(&rerank.Config{
		Model:    cfg.Rerank.Model,
		Endpoint: cfg.Rerank.Endpoint,
		APIKey:   cfg.Rerank.APIKey,
		Timeout:  cfg.Rerank.Timeout,
	}, logger)

	completer := llm.NewClient(llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.Timeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}, logger)

	eng := engine.New(completer, clusterer, retriever, reranker, engine.Options{
		Workers:            cfg.Pipeline.Workers,
		MaxClusterExamples: cfg.Pipeline.ClusterMaxExamples,
		RerankLimit:        cfg.Pipeline.RerankLimit,
	}, logger)

	return &app{
		engine:    eng,
		qdrant:    qdrantClient,
		completer: completer,
		search:    searchModel,
	}, nil
}

func (a *app) Close() {
	a.completer.Close()
	_ = a.qdrant.Close()
}

func newEmbeddingModel(cfg *config.Config, modelName string) (embedding.Model, error) {
	provider := embedding.Provider(cfg.Embedding.Provider)
	embCfg := embedding.DefaultConfig(provider)
	embCfg.ModelName = modelName
	embCfg.APIKey = cfg.Embedding.APIKey
	if cfg.Embedding.BaseURL != "" {
		embCfg.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.Embedding.Timeout > 0 {
		embCfg.Timeout = cfg.Embedding.Timeout
	}

	model, err := embedding.New(embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding model %s: %w", modelName, err)
	}
	return model, nil
}
