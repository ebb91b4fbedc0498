package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
)

// RetryFunc runs fn under a bounded retry policy, retrying only errors
// the classifier accepts. Wired from the resilience executor at
// bootstrap time.
type RetryFunc func(ctx context.Context, operation string, fn func(context.Context) error, retryable func(error) bool) error

// RetrievalObserver receives retrieval outcome signals. Implementations
// must be safe for concurrent use.
type RetrievalObserver interface {
	RetrievalRetries(count int)
	RetrievalFallback()
}

type RetrieverConfig struct {
	// CandidateMultiplier sizes each prefetch leg relative to k.
	CandidateMultiplier int
	RRFK                int
	// MinFusedScore drops near-zero fused matches.
	MinFusedScore float64
	// FallbackScoreThreshold applies to the dense-only degradation query.
	FallbackScoreThreshold float64
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.CandidateMultiplier <= 0 {
		out.CandidateMultiplier = 5
	}
	if out.RRFK <= 0 {
		out.RRFK = 60
	}
	if out.MinFusedScore < 0 {
		out.MinFusedScore = 0
	}
	return out
}

// HybridRetriever issues fused dense+sparse queries and degrades to
// dense-only search when the hybrid path cannot be served.
type HybridRetriever struct {
	embedder ports.Embedder
	encoder  ports.SparseEncoder
	store    ports.VectorStore
	retry    RetryFunc
	observer RetrievalObserver
	cfg      RetrieverConfig
}

func NewHybridRetriever(
	embedder ports.Embedder,
	encoder ports.SparseEncoder,
	store ports.VectorStore,
	retry RetryFunc,
	observer RetrievalObserver,
	cfg RetrieverConfig,
) *HybridRetriever {
	if retry == nil {
		retry = func(ctx context.Context, _ string, fn func(context.Context) error, _ func(error) bool) error {
			return fn(ctx)
		}
	}
	return &HybridRetriever{
		embedder: embedder,
		encoder:  encoder,
		store:    store,
		retry:    retry,
		observer: observer,
		cfg:      cfg.normalize(),
	}
}

func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k < 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid retrieve", fmt.Errorf("k must be >= 1, got %d", k))
	}

	dense, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sparse := r.encoder.Encode(query)

	prefetchLimit := k * r.cfg.CandidateMultiplier

	var prefetch *ports.PrefetchResult
	attempts := 0
	err = r.retry(ctx, "vector.query", func(ctx context.Context) error {
		attempts++
		result, queryErr := r.store.Query(ctx, ports.VectorQuery{
			Dense:  dense,
			Sparse: sparse,
			Limit:  prefetchLimit,
		})
		if queryErr != nil {
			return queryErr
		}
		prefetch = result
		return nil
	}, isTransientRetrievalError)

	if retries := attempts - 1; retries > 0 && r.observer != nil {
		r.observer.RetrievalRetries(retries)
	}

	if err != nil {
		return r.denseFallback(ctx, query, dense, k, err)
	}

	fused := fuseCandidatesRRF(prefetch.Dense, prefetch.Sparse, r.cfg.RRFK)
	fused = dropBelowThreshold(fused, r.cfg.MinFusedScore)
	fused = trimCandidates(fused, k)
	return ensureDistinctTexts(fused)
}

// denseFallback degrades to a dense-only query. It never raises on its
// own transport failures: when even the fallback cannot be served the
// retriever returns an empty candidate set and lets the pipeline render
// a no-context answer. The duplicate-text invariant still applies.
func (r *HybridRetriever) denseFallback(ctx context.Context, query string, dense []float32, k int, cause error) ([]domain.Candidate, error) {
	slog.Warn("hybrid_query_degraded",
		"query_len", len(query),
		"error", cause,
	)
	if r.observer != nil {
		r.observer.RetrievalFallback()
	}

	candidates, err := r.store.QueryDenseOnly(ctx, dense, k, r.cfg.FallbackScoreThreshold)
	if err != nil {
		slog.Error("dense_fallback_failed", "error", err)
		return []domain.Candidate{}, nil
	}
	for i := range candidates {
		candidates[i].Method = domain.MethodDense
	}
	return ensureDistinctTexts(candidates)
}

// ensureDistinctTexts enforces the post-condition that no two returned
// candidates share identical chunk text. A duplicate means the index is
// corrupt, not a query-time condition to tolerate.
func ensureDistinctTexts(candidates []domain.Candidate) ([]domain.Candidate, error) {
	seen := make(map[string]string, len(candidates))
	for _, candidate := range candidates {
		if prior, ok := seen[candidate.Chunk.Text]; ok {
			return nil, domain.WrapError(domain.ErrDataIntegrity, "hybrid retrieve",
				fmt.Errorf("chunks %s and %s carry identical text", prior, candidate.Chunk.ID))
		}
		seen[candidate.Chunk.Text] = candidate.Chunk.ID
	}
	return candidates, nil
}

func isTransientRetrievalError(err error) bool {
	return domain.IsKind(err, domain.ErrTemporary)
}
