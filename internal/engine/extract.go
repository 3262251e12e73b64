package engine

import (
	"context"

	"processlens/internal/concurrency"
	"processlens/internal/llm/structured"
	"processlens/internal/models"
	"processlens/internal/prompts"
)

// extractWeaknesses runs weakness identification over every feedback item
// with bounded concurrency. The flattened result keeps item order, and
// within an item the model's statement order. An item whose extraction call
// or response decoding fails contributes no weaknesses.
func (e *Engine) extractWeaknesses(ctx context.Context, items []models.FeedbackItem) []models.Weakness {
	perItem := make([][]string, len(items))

	_ = concurrency.ForEach(ctx, len(items), e.opts.Workers, func(ctx context.Context, i int) {
		raw, err := e.completer.Complete(ctx, prompts.WeaknessMessages(items[i].Text))
		if err != nil {
			e.logger.WithError(err).WithField("feedback_id", items[i].ID).Warn("Weakness extraction failed")
			return
		}

		texts, ok := structured.StringListResult(raw, prompts.FieldWeaknesses)
		if !ok {
			e.logger.WithField("feedback_id", items[i].ID).Warn("Weakness extraction returned malformed output")
			return
		}
		perItem[i] = texts
	})

	var weaknesses []models.Weakness
	for i, texts := range perItem {
		for _, text := range texts {
			if text == "" {
				continue
			}
			weaknesses = append(weaknesses, models.Weakness{
				FeedbackID: items[i].ID,
				Text:       text,
				Cluster:    models.SentinelCluster,
			})
		}
	}

	e.logger.WithField("weaknesses", len(weaknesses)).Info("Weaknesses extracted")
	return weaknesses
}
