// Package corpus loads the feedback and abstract datasets and indexes them
// into the vector collections the retrieval sources search.
package corpus

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"processlens/internal/embedding"
	"processlens/internal/models"
	"processlens/internal/splitter"
	"processlens/internal/vectordb/qdrant"
)

// AbstractRecord is one paper abstract to index.
type AbstractRecord struct {
	CorpusID int64  `json:"corpus_id"`
	Abstract string `json:"abstract"`
}

// LoadFeedbackCSV reads feedback items from a CSV file with a header row.
// The id column may be named feedback_id or id, the text column
// feedback_text, text or tweet. Rows with an empty text are dropped; rows
// without an id get one assigned.
func LoadFeedbackCSV(path string) ([]models.FeedbackItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idCol, textCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "feedback_id", "id":
			if idCol < 0 {
				idCol = i
			}
		case "feedback_text", "text", "tweet":
			if textCol < 0 {
				textCol = i
			}
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("no text column found in %s", path)
	}

	var items []models.FeedbackItem
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		if textCol >= len(record) {
			continue
		}

		text := strings.TrimSpace(record[textCol])
		if text == "" {
			continue
		}

		id := ""
		if idCol >= 0 && idCol < len(record) {
			id = strings.TrimSpace(record[idCol])
		}
		if id == "" {
			id = uuid.New().String()
		}

		items = append(items, models.FeedbackItem{ID: id, Text: text})
	}

	return items, nil
}

// LoadFeedbackJSONL reads feedback items from a JSON-lines file, one
// {"feedback_id", "feedback_text"} object per line.
func LoadFeedbackJSONL(path string) ([]models.FeedbackItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var items []models.FeedbackItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var item models.FeedbackItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d: %w", line, err)
		}
		if item.Text == "" {
			continue
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return items, nil
}

// LoadAbstractsJSONL reads abstract records from a JSON-lines file.
func LoadAbstractsJSONL(path string) ([]AbstractRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var records []AbstractRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var record AbstractRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d: %w", line, err)
		}
		if record.Abstract == "" {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return records, nil
}

// Indexer splits dataset texts into token-bounded chunks, embeds them and
// writes one point per chunk into a vector collection. Texts over the
// embedding model's sequence limit would otherwise be truncated by the
// embedding service.
type Indexer struct {
	client    *qdrant.Client
	model     embedding.Model
	split     *splitter.Splitter
	batchSize int
	logger    *logrus.Logger
}

// NewIndexer creates an indexer using the search embedding model. A nil split
// falls back to the default chunk budget.
func NewIndexer(client *qdrant.Client, model embedding.Model, split *splitter.Splitter, batchSize int, logger *logrus.Logger) *Indexer {
	if split == nil {
		split = splitter.New(0, 0)
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Indexer{
		client:    client,
		model:     model,
		split:     split,
		batchSize: batchSize,
		logger:    logger,
	}
}

// indexEntry is one chunk ready for embedding. The key seeds the point id, so
// re-indexing the same source text overwrites instead of duplicating.
type indexEntry struct {
	key     string
	text    string
	payload map[string]interface{}
}

// upsertEntries embeds entries in batches and upserts one point per entry.
func (ix *Indexer) upsertEntries(ctx context.Context, collection string, entries []indexEntry) error {
	for start := 0; start < len(entries); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		texts := make([]string, len(batch))
		for i, entry := range batch {
			texts[i] = entry.text
		}

		vectors, err := ix.model.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch at %d: %w", start, err)
		}

		points := make([]qdrant.Point, len(batch))
		for i, entry := range batch {
			points[i] = qdrant.Point{
				ID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(entry.key)).String(),
				Vector:  toFloat32(vectors[i]),
				Payload: entry.payload,
			}
		}

		if err := ix.client.UpsertPoints(ctx, collection, points); err != nil {
			return fmt.Errorf("failed to upsert batch at %d: %w", start, err)
		}
	}
	return nil
}

// ensureCollection creates the collection when it does not exist yet.
func (ix *Indexer) ensureCollection(ctx context.Context, name string) error {
	exists, err := ix.client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return ix.client.CreateCollection(ctx, &qdrant.CollectionConfig{
		Name:       name,
		VectorSize: ix.model.Dimension(),
		Distance:   qdrant.DistanceCosine,
	})
}

// IndexFeedback splits, embeds and upserts feedback items into the
// collection.
func (ix *Indexer) IndexFeedback(ctx context.Context, collection string, items []models.FeedbackItem) error {
	if err := ix.ensureCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to prepare collection %s: %w", collection, err)
	}

	var entries []indexEntry
	for _, item := range items {
		for ci, chunk := range ix.split.SplitText(item.Text) {
			entries = append(entries, indexEntry{
				key:  fmt.Sprintf("feedback:%s#%d", item.ID, ci),
				text: chunk,
				payload: map[string]interface{}{
					"text":        chunk,
					"feedback_id": item.ID,
				},
			})
		}
	}

	if err := ix.upsertEntries(ctx, collection, entries); err != nil {
		return err
	}

	ix.logger.WithFields(logrus.Fields{
		"collection": collection,
		"items":      len(items),
		"points":     len(entries),
	}).Info("Feedback indexed")
	return nil
}

// IndexAbstracts splits, embeds and upserts paper abstracts into the
// collection. Abstracts beyond the chunk budget become multiple points that
// share the corpus id.
func (ix *Indexer) IndexAbstracts(ctx context.Context, collection string, records []AbstractRecord) error {
	if err := ix.ensureCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to prepare collection %s: %w", collection, err)
	}

	var entries []indexEntry
	for _, record := range records {
		for ci, chunk := range ix.split.SplitText(record.Abstract) {
			entries = append(entries, indexEntry{
				key:  fmt.Sprintf("abstract:%d#%d", record.CorpusID, ci),
				text: chunk,
				payload: map[string]interface{}{
					"abstract":  chunk,
					"corpus_id": record.CorpusID,
				},
			})
		}
	}

	if err := ix.upsertEntries(ctx, collection, entries); err != nil {
		return err
	}

	ix.logger.WithFields(logrus.Fields{
		"collection": collection,
		"items":      len(records),
		"points":     len(entries),
	}).Info("Abstracts indexed")
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
