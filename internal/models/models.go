// Package models defines the data model shared by the suggestion pipeline
// stages: feedback items, extracted weaknesses, weakness clusters and the
// documents retrieved as grounding context.
package models

// SentinelCluster marks a weakness that did not reach the minimum community
// size during clustering. Sentinel weaknesses are excluded from query and
// suggestion generation.
const SentinelCluster = -1

// NotAvailable is the answer emitted for feedback items that end up with an
// empty suggestion set.
const NotAvailable = "N/A"

// FeedbackItem is one row of input feedback. Immutable once loaded.
type FeedbackItem struct {
	ID   string `json:"feedback_id"`
	Text string `json:"feedback_text"`
}

// Weakness is one atomic process-failure statement extracted from a feedback
// item. Cluster starts at SentinelCluster and is assigned exactly once during
// clustering; Suggestion is assigned exactly once during the join stage.
type Weakness struct {
	FeedbackID string `json:"feedback_id"`
	Text       string `json:"weakness"`
	Cluster    int    `json:"cluster"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Provenance identifies which knowledge source produced a document.
type Provenance string

const (
	ProvenanceFeedback Provenance = "feedback"
	ProvenancePaper    Provenance = "paper"
	ProvenanceWeb      Provenance = "web"
)

// Document is a retrieved, token-bounded chunk of grounding context. Ephemeral:
// it lives only for one suggestion-generation call.
type Document struct {
	Content    string     `json:"content"`
	SourceID   string     `json:"source_id"`
	Provenance Provenance `json:"provenance"`
	Score      float64    `json:"score,omitempty"`
}

// ClusterQuery is the per-cluster bookkeeping row: the generated search query,
// the reranked context it retrieved and the suggestion generated from it. The
// sentinel cluster is materialized with empty query and suggestion so the join
// stage sees a uniform row shape.
type ClusterQuery struct {
	Cluster    int        `json:"cluster"`
	Query      string     `json:"search_query"`
	Suggestion string     `json:"suggestion"`
	Context    []Document `json:"reranked,omitempty"`
}

// FeedbackResult is the per-feedback output row: the weaknesses found in the
// item, the deduplicated suggestions collected across its weaknesses' clusters
// and the synthesized answer. Answer is NotAvailable when Suggestions is
// empty, and the empty string when synthesis failed despite suggestions being
// present.
type FeedbackResult struct {
	FeedbackID  string   `json:"feedback_id"`
	Text        string   `json:"feedback_text"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
	Answer      string   `json:"answer"`
}

// PipelineResult bundles the output of one batch run.
type PipelineResult struct {
	Feedback []FeedbackResult `json:"feedback"`
	Weakness []Weakness       `json:"weaknesses"`
	Clusters []ClusterQuery   `json:"clusters"`
}
