package engine

import (
	"context"

	"processlens/internal/concurrency"
	"processlens/internal/llm/structured"
	"processlens/internal/models"
	"processlens/internal/prompts"
)

// processClusters generates a search query, retrieves and reranks grounding
// context, and generates one suggestion for every detected cluster. Clusters
// run concurrently; rows come back ordered by cluster id with the sentinel
// row last. The sentinel cluster is materialized with empty query and
// suggestion and costs no LLM or retrieval calls, so the join stage sees a
// uniform row shape.
func (e *Engine) processClusters(ctx context.Context, weaknesses []models.Weakness) []models.ClusterQuery {
	grouped := groupByCluster(weaknesses)

	rows := make([]models.ClusterQuery, len(grouped)+1)
	for id := range grouped {
		rows[id] = models.ClusterQuery{Cluster: id}
	}
	rows[len(grouped)] = models.ClusterQuery{Cluster: models.SentinelCluster}

	_ = concurrency.ForEach(ctx, len(grouped), e.opts.Workers, func(ctx context.Context, id int) {
		rows[id] = e.processCluster(ctx, id, grouped[id])
	})

	return rows
}

// groupByCluster collects member texts per detected cluster, index i holding
// cluster id i. Duplicate texts within a cluster are kept once; sentinel
// weaknesses are ignored.
func groupByCluster(weaknesses []models.Weakness) [][]string {
	maxID := -1
	for _, w := range weaknesses {
		if w.Cluster > maxID {
			maxID = w.Cluster
		}
	}
	if maxID < 0 {
		return nil
	}

	grouped := make([][]string, maxID+1)
	seen := make(map[int]map[string]bool)
	for _, w := range weaknesses {
		if w.Cluster == models.SentinelCluster {
			continue
		}
		if seen[w.Cluster] == nil {
			seen[w.Cluster] = make(map[string]bool)
		}
		if seen[w.Cluster][w.Text] {
			continue
		}
		seen[w.Cluster][w.Text] = true
		grouped[w.Cluster] = append(grouped[w.Cluster], w.Text)
	}

	return grouped
}

// processCluster handles one cluster. A failed or empty query skips
// retrieval and suggestion generation; a failed suggestion leaves the row's
// suggestion empty. Either way the row is returned.
func (e *Engine) processCluster(ctx context.Context, id int, texts []string) models.ClusterQuery {
	row := models.ClusterQuery{Cluster: id}

	if len(texts) > e.opts.MaxClusterExamples {
		texts = texts[:e.opts.MaxClusterExamples]
	}

	row.Query = e.generateQuery(ctx, id, texts)
	if row.Query == "" {
		return row
	}

	chunks := e.retriever.Retrieve(ctx, row.Query)
	row.Context = e.reranker.Rerank(ctx, row.Query, chunks, e.opts.RerankLimit)
	row.Suggestion = e.generateSuggestion(ctx, id, row.Query, row.Context)

	return row
}

func (e *Engine) generateQuery(ctx context.Context, id int, texts []string) string {
	raw, err := e.completer.Complete(ctx, prompts.QueryMessages(texts))
	if err != nil {
		e.logger.WithError(err).WithField("cluster", id).Warn("Query generation failed")
		return ""
	}

	query, ok := structured.StringResult(raw, prompts.FieldQuery)
	if !ok {
		e.logger.WithField("cluster", id).Warn("Query generation returned malformed output")
		return ""
	}
	return query
}

func (e *Engine) generateSuggestion(ctx context.Context, id int, query string, context []models.Document) string {
	texts := make([]string, len(context))
	for i, doc := range context {
		texts[i] = doc.Content
	}

	raw, err := e.completer.Complete(ctx, prompts.SuggestionMessages(query, texts))
	if err != nil {
		e.logger.WithError(err).WithField("cluster", id).Warn("Suggestion generation failed")
		return ""
	}

	suggestion, ok := structured.StringResult(raw, prompts.FieldSuggestion)
	if !ok {
		e.logger.WithField("cluster", id).Warn("Suggestion generation returned malformed output")
		return ""
	}
	return suggestion
}
