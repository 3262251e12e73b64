package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"processlens/internal/corpus"
	"processlens/internal/splitter"
)

var (
	indexInput      string
	indexFormat     string
	indexCollection string
	indexBatchSize  int
)

// indexCmd maintains the vector collections searched during retrieval.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index datasets into the vector collections",
	Long: `Index source datasets into the vector store.

Available subcommands:
  feedback  - Index historical feedback texts
  abstracts - Index scientific paper abstracts`,
}

var indexFeedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Index historical feedback texts",
	RunE:  runIndexFeedback,
}

var indexAbstractsCmd = &cobra.Command{
	Use:   "abstracts",
	Short: "Index scientific paper abstracts",
	RunE:  runIndexAbstracts,
}

func init() {
	for _, cmd := range []*cobra.Command{indexFeedbackCmd, indexAbstractsCmd} {
		cmd.Flags().StringVarP(&indexInput, "input", "i", "", "Dataset file to index (required)")
		cmd.Flags().StringVarP(&indexFormat, "format", "f", "jsonl", "Input format: csv or jsonl (feedback only)")
		cmd.Flags().StringVar(&indexCollection, "collection", "", "Target collection (default from config)")
		cmd.Flags().IntVar(&indexBatchSize, "batch-size", 64, "Embedding batch size")
		_ = cmd.MarkFlagRequired("input")
	}

	indexCmd.AddCommand(indexFeedbackCmd)
	indexCmd.AddCommand(indexAbstractsCmd)
}

func runIndexFeedback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	ctx := context.Background()

	items, err := loadFeedback(indexInput, indexFormat)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no feedback items in %s", indexInput)
	}

	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	collection := indexCollection
	if collection == "" {
		collection = cfg.Qdrant.FeedbackCollection
	}

	indexer := corpus.NewIndexer(application.qdrant, application.search, splitter.New(0, 0), indexBatchSize, logger)
	return indexer.IndexFeedback(ctx, collection, items)
}

func runIndexAbstracts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	ctx := context.Background()

	records, err := corpus.LoadAbstractsJSONL(indexInput)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no abstracts in %s", indexInput)
	}

	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	collection := indexCollection
	if collection == "" {
		collection = cfg.Qdrant.AbstractCollection
	}

	indexer := corpus.NewIndexer(application.qdrant, application.search, splitter.New(0, 0), indexBatchSize, logger)
	return indexer.IndexAbstracts(ctx, collection, records)
}
