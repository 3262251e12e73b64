package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"processlens/internal/corpus"
	"processlens/internal/models"
)

var (
	runInput  string
	runFormat string
	runOutput string
)

// runCmd processes one feedback batch end to end.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a feedback batch and emit suggestions",
	Long: `Run the suggestion pipeline over a feedback file. The result is a JSON
document with one row per feedback item (weaknesses, suggestions, answer),
the extracted weakness table and the per-cluster query/suggestion table.

The answer field is "N/A" when an item collected no suggestions, and empty
when answer synthesis itself failed for that item.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "Feedback file to process (required)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "csv", "Input format: csv or jsonl")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Result file (default: stdout)")
	_ = runCmd.MarkFlagRequired("input")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	ctx := context.Background()

	items, err := loadFeedback(runInput, runFormat)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no feedback items in %s", runInput)
	}

	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	result := application.engine.Run(ctx, items)
	return writeResult(result, runOutput)
}

func loadFeedback(path, format string) ([]models.FeedbackItem, error) {
	switch strings.ToLower(format) {
	case "csv":
		return corpus.LoadFeedbackCSV(path)
	case "jsonl":
		return corpus.LoadFeedbackJSONL(path)
	default:
		return nil, fmt.Errorf("unknown input format %q (want csv or jsonl)", format)
	}
}

func writeResult(result *models.PipelineResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
