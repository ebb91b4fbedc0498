package ports

import (
	"context"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

// Embedder computes dense query vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SparseEncoder maps text onto a fixed-dimension sparse vector. Pure and
// deterministic: same text and vocabulary size always produce identical
// output. Queries and documents use the same scheme.
type SparseEncoder interface {
	Encode(text string) domain.SparseVector
}

// VectorQuery is one hybrid prefetch request: both legs run against the
// same collection with a shared limit.
type VectorQuery struct {
	Dense  []float32
	Sparse domain.SparseVector
	Limit  int
}

// PrefetchResult carries the two independently ranked candidate legs
// that fusion consumes.
type PrefetchResult struct {
	Dense  []domain.Candidate
	Sparse []domain.Candidate
}

// VectorStore performs similarity search. Query runs the dense and
// sparse prefetch legs; QueryDenseOnly is the degradation path used when
// the hybrid query cannot be served.
type VectorStore interface {
	Query(ctx context.Context, query VectorQuery) (*PrefetchResult, error)
	QueryDenseOnly(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]domain.Candidate, error)
}

// RelevanceJudge scores candidates against a query and classifies query
// intent. Both are external LLM calls with no retry policy of their own.
type RelevanceJudge interface {
	Score(ctx context.Context, query string, chunks []domain.Chunk) (map[string]float64, error)
	ClassifyIntent(ctx context.Context, query string) (string, error)
}

// AnswerGenerator synthesizes the final cited answer from a selection.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, selection *domain.Selection, history []domain.ConversationTurn) (string, error)
}

// QueryRewriter performs the LLM reformulation call.
type QueryRewriter interface {
	Rewrite(ctx context.Context, prompt string) (string, error)
}

// ThreadStore is the conversational memory backend. AppendTurn is atomic
// per thread id: concurrent appends to the same thread serialize,
// appends to different threads never block one another. History returns
// an empty slice for unknown threads (creation is implicit on first
// append).
type ThreadStore interface {
	History(ctx context.Context, threadID string) ([]domain.ConversationTurn, error)
	AppendTurn(ctx context.Context, threadID string, turn domain.ConversationTurn) error
}

// AnsweredEvent is the best-effort notification published after a
// completed pipeline run.
type AnsweredEvent struct {
	ThreadID    string        `json:"thread_id,omitempty"`
	Intent      domain.Intent `json:"intent"`
	SourceCount int           `json:"source_count"`
	LowQuality  bool          `json:"low_quality"`
}

// AnswerEventPublisher emits AnsweredEvents. Failures must never surface
// to the caller.
type AnswerEventPublisher interface {
	PublishAnswered(ctx context.Context, event AnsweredEvent) error
}
