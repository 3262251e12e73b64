// Package splitter cuts retrieved documents into token-bounded, overlapping
// chunks sized to the search embedding model's sequence limit. Source metadata
// is broadcast to every chunk so provenance survives splitting.
package splitter

import (
	"strings"

	"processlens/internal/models"
)

const (
	// DefaultChunkTokens matches the sequence limit of the MiniLM search
	// model used for indexing and retrieval.
	DefaultChunkTokens = 256
	// DefaultOverlapTokens keeps adjacent chunks sharing enough context
	// that a sentence cut at a boundary stays retrievable.
	DefaultOverlapTokens = 50
)

// Splitter produces token-bounded chunks with overlap.
type Splitter struct {
	chunkTokens   int
	overlapTokens int
}

// New creates a splitter. Non-positive arguments fall back to the defaults;
// an overlap at or above the chunk size is clamped so every step makes
// progress.
func New(chunkTokens, overlapTokens int) *Splitter {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	if overlapTokens <= 0 {
		overlapTokens = DefaultOverlapTokens
	}
	if overlapTokens >= chunkTokens {
		overlapTokens = chunkTokens / 2
	}
	return &Splitter{
		chunkTokens:   chunkTokens,
		overlapTokens: overlapTokens,
	}
}

// tokenize approximates the embedding model's tokenizer with whitespace
// splitting. Word counts undershoot subword counts, so the chunk budget is
// conservative relative to the model limit.
func tokenize(text string) []string {
	return strings.Fields(text)
}

// SplitText splits one text into overlapping chunks. Texts at or under the
// chunk budget come back as a single chunk; empty and whitespace-only texts
// yield none.
func (s *Splitter) SplitText(text string) []string {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= s.chunkTokens {
		return []string{strings.Join(tokens, " ")}
	}

	step := s.chunkTokens - s.overlapTokens
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + s.chunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// SplitDocuments splits each document, copying its source ID, provenance and
// score onto every resulting chunk. Input order is preserved: all chunks of
// document i precede all chunks of document i+1.
func (s *Splitter) SplitDocuments(docs []models.Document) []models.Document {
	var out []models.Document
	for _, doc := range docs {
		for _, chunk := range s.SplitText(doc.Content) {
			out = append(out, models.Document{
				Content:    chunk,
				SourceID:   doc.SourceID,
				Provenance: doc.Provenance,
				Score:      doc.Score,
			})
		}
	}
	return out
}
