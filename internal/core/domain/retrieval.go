package domain

// SparseEntry is one populated dimension of a sparse vector.
type SparseEntry struct {
	Index  uint32  `json:"index"`
	Weight float64 `json:"weight"`
}

// SparseVector is a term-frequency vector with entries sorted by index
// ascending, as required by the vector store.
type SparseVector []SparseEntry

func (v SparseVector) IsEmpty() bool {
	return len(v) == 0
}

// ContextTiers carries the optional contextual metadata generated at
// ingestion time: corpus-wide, per-document and per-chunk summaries.
type ContextTiers struct {
	Master   string `json:"master,omitempty"`
	Document string `json:"document,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
}

// Chunk is an immutable retrievable unit. Created at ingestion time,
// read-only to the pipeline.
type Chunk struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	Page       int          `json:"page"`
	Text       string       `json:"text"`
	Context    ContextTiers `json:"context,omitempty"`
}

type RetrievalMethod string

const (
	MethodDense  RetrievalMethod = "dense"
	MethodSparse RetrievalMethod = "sparse"
	MethodFused  RetrievalMethod = "fused"
)

// Candidate is a chunk plus the score and method that produced it.
// Lives only within a single request.
type Candidate struct {
	Chunk  Chunk           `json:"chunk"`
	Score  float64         `json:"score"`
	Method RetrievalMethod `json:"method"`
}

// ScoredCandidate is a candidate annotated with the judge's relevance
// score in [0,1].
type ScoredCandidate struct {
	Candidate
	Relevance float64 `json:"relevance"`
}

type Complexity string

const (
	ComplexityEnumeration Complexity = "enumeration"
	ComplexitySingleFact  Complexity = "single_fact"
	ComplexityComplex     Complexity = "complex"
)

// SelectionMetadata records how the final set was chosen, for
// observability and response payloads.
type SelectionMetadata struct {
	Complexity       Complexity `json:"complexity"`
	MinScore         float64    `json:"min_score"`
	TargetCount      int        `json:"target_count"`
	DiversityApplied bool       `json:"diversity_applied"`
	LowQuality       bool       `json:"low_quality"`
	ScoreMin         float64    `json:"score_min"`
	ScoreMax         float64    `json:"score_max"`
}

// Selection is the ordered final set handed to the generator. Never
// persisted.
type Selection struct {
	Items    []ScoredCandidate `json:"items"`
	Metadata SelectionMetadata `json:"metadata"`
}

// Source identifies a document cited by the generated answer.
type Source struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
}

// AskResult is the pipeline's user-facing output.
type AskResult struct {
	Answer   string            `json:"answer"`
	Sources  []Source          `json:"sources"`
	Metadata SelectionMetadata `json:"selection_metadata"`
}
