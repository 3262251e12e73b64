package engine

import (
	"context"

	"processlens/internal/concurrency"
	"processlens/internal/llm/structured"
	"processlens/internal/models"
	"processlens/internal/prompts"
)

// joinSuggestions writes each cluster's suggestion onto its member
// weaknesses. Sentinel weaknesses keep an empty suggestion.
func joinSuggestions(weaknesses []models.Weakness, clusters []models.ClusterQuery) {
	byCluster := make(map[int]string, len(clusters))
	for _, row := range clusters {
		byCluster[row.Cluster] = row.Suggestion
	}

	for i := range weaknesses {
		if weaknesses[i].Cluster == models.SentinelCluster {
			continue
		}
		weaknesses[i].Suggestion = byCluster[weaknesses[i].Cluster]
	}
}

// synthesizeAnswers builds the per-feedback result rows and generates the
// final answer texts with bounded concurrency. Items whose suggestion set
// is empty get the NotAvailable answer without an LLM call; a failed or
// malformed synthesis leaves the answer empty.
func (e *Engine) synthesizeAnswers(ctx context.Context, items []models.FeedbackItem, weaknesses []models.Weakness) []models.FeedbackResult {
	byFeedback := make(map[string][]models.Weakness, len(items))
	for _, w := range weaknesses {
		byFeedback[w.FeedbackID] = append(byFeedback[w.FeedbackID], w)
	}

	results := make([]models.FeedbackResult, len(items))
	for i, item := range items {
		results[i] = models.FeedbackResult{
			FeedbackID:  item.ID,
			Text:        item.Text,
			Weaknesses:  []string{},
			Suggestions: []string{},
		}

		seen := make(map[string]bool)
		for _, w := range byFeedback[item.ID] {
			results[i].Weaknesses = append(results[i].Weaknesses, w.Text)
			if w.Suggestion == "" || seen[w.Suggestion] {
				continue
			}
			seen[w.Suggestion] = true
			results[i].Suggestions = append(results[i].Suggestions, w.Suggestion)
		}
	}

	_ = concurrency.ForEach(ctx, len(results), e.opts.Workers, func(ctx context.Context, i int) {
		if len(results[i].Suggestions) == 0 {
			results[i].Answer = models.NotAvailable
			return
		}
		results[i].Answer = e.generateAnswer(ctx, &results[i])
	})

	return results
}

func (e *Engine) generateAnswer(ctx context.Context, result *models.FeedbackResult) string {
	raw, err := e.completer.Complete(ctx, prompts.AnswerMessages(result.Text, result.Suggestions))
	if err != nil {
		e.logger.WithError(err).WithField("feedback_id", result.FeedbackID).Warn("Answer synthesis failed")
		return ""
	}

	answer, ok := structured.StringResult(raw, prompts.FieldAnswer)
	if !ok {
		e.logger.WithField("feedback_id", result.FeedbackID).Warn("Answer synthesis returned malformed output")
		return ""
	}
	return answer
}
