package usecase

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
)

type RerankConfig struct {
	// MinScore is the relevance floor for the quality partition.
	MinScore      float64
	MinTopK       int
	PreferredTopK int
	MaxTopK       int

	ExcellentScore   float64
	HighQualityScore float64
}

func (c RerankConfig) normalize() RerankConfig {
	out := c
	if out.MinScore <= 0 {
		out.MinScore = 0.60
	}
	if out.MinTopK <= 0 {
		out.MinTopK = 5
	}
	if out.PreferredTopK <= 0 {
		out.PreferredTopK = 7
	}
	if out.MaxTopK <= 0 {
		out.MaxTopK = 12
	}
	if out.ExcellentScore <= 0 {
		out.ExcellentScore = 0.90
	}
	if out.HighQualityScore <= 0 {
		out.HighQualityScore = 0.80
	}
	return out
}

// AdaptiveReranker scores candidates with the injected judge and picks a
// variable-size, quality-filtered, diversity-aware final set. Apart from
// the judge call it is pure.
type AdaptiveReranker struct {
	judge ports.RelevanceJudge
	cfg   RerankConfig
}

func NewAdaptiveReranker(judge ports.RelevanceJudge, cfg RerankConfig) *AdaptiveReranker {
	return &AdaptiveReranker{judge: judge, cfg: cfg.normalize()}
}

// Select never returns an empty selection for a non-empty candidate
// list: judge failures and empty quality partitions fall back to the
// best-scored candidates flagged as low quality.
func (r *AdaptiveReranker) Select(ctx context.Context, query string, candidates []domain.Candidate) *domain.Selection {
	complexity := classifyComplexity(query)
	if len(candidates) == 0 {
		return &domain.Selection{
			Items: []domain.ScoredCandidate{},
			Metadata: domain.SelectionMetadata{
				Complexity: complexity,
				MinScore:   r.cfg.MinScore,
			},
		}
	}

	scored := r.scoreCandidates(ctx, query, candidates)
	quality := make([]domain.ScoredCandidate, 0, len(scored))
	for _, item := range scored {
		if item.Relevance >= r.cfg.MinScore {
			quality = append(quality, item)
		}
	}

	if len(quality) == 0 {
		items := scored
		if len(items) > r.cfg.MinTopK {
			items = items[:r.cfg.MinTopK]
		}
		slog.Warn("rerank_low_quality_fallback",
			"candidates", len(candidates),
			"returned", len(items),
			"min_score", r.cfg.MinScore,
		)
		return &domain.Selection{
			Items: items,
			Metadata: domain.SelectionMetadata{
				Complexity:  complexity,
				MinScore:    r.cfg.MinScore,
				TargetCount: len(items),
				LowQuality:  true,
				ScoreMin:    minRelevance(items),
				ScoreMax:    maxRelevance(items),
			},
		}
	}

	dist := analyzeScores(quality, r.cfg)
	target := r.targetCount(complexity, dist, len(quality))

	diversity := dist.excellent > r.cfg.MaxTopK
	var items []domain.ScoredCandidate
	if diversity {
		items = selectDiverse(quality, target)
	} else {
		items = quality[:target]
	}

	return &domain.Selection{
		Items: items,
		Metadata: domain.SelectionMetadata{
			Complexity:       complexity,
			MinScore:         r.cfg.MinScore,
			TargetCount:      target,
			DiversityApplied: diversity,
			ScoreMin:         minRelevance(items),
			ScoreMax:         maxRelevance(items),
		},
	}
}

// scoreCandidates attaches judge relevance and orders the result
// deterministically: relevance desc, retrieval score desc, chunk id asc.
// A judge failure degrades to zero scores so the low-quality fallback
// still produces an answer.
func (r *AdaptiveReranker) scoreCandidates(ctx context.Context, query string, candidates []domain.Candidate) []domain.ScoredCandidate {
	chunks := make([]domain.Chunk, 0, len(candidates))
	for _, candidate := range candidates {
		chunks = append(chunks, candidate.Chunk)
	}

	scores, err := r.judge.Score(ctx, query, chunks)
	if err != nil {
		slog.Warn("judge_score_failed", "candidates", len(candidates), "error", err)
		scores = nil
	}

	scored := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, domain.ScoredCandidate{
			Candidate: candidate,
			Relevance: clampUnit(scores[candidate.Chunk.ID]),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Relevance != scored[j].Relevance {
			return scored[i].Relevance > scored[j].Relevance
		}
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
	return scored
}

var (
	enumerationCues = regexp.MustCompile(`(?i)\b(what are the|list all|list every|how many|name all)\b`)
	singleFactCues  = regexp.MustCompile(`(?i)\b(how much|what is the \w+([ -]\w+)* for|when did|what date|who is the)\b`)
)

// classifyComplexity is a heuristic; misclassification only shifts the
// chunk-count choice, never correctness.
func classifyComplexity(query string) domain.Complexity {
	switch {
	case enumerationCues.MatchString(query):
		return domain.ComplexityEnumeration
	case singleFactCues.MatchString(query):
		return domain.ComplexitySingleFact
	default:
		return domain.ComplexityComplex
	}
}

type scoreDistribution struct {
	mean      float64
	stdDev    float64
	excellent int
	high      int
}

func analyzeScores(quality []domain.ScoredCandidate, cfg RerankConfig) scoreDistribution {
	if len(quality) == 0 {
		return scoreDistribution{}
	}

	var sum float64
	dist := scoreDistribution{}
	for _, item := range quality {
		sum += item.Relevance
		if item.Relevance >= cfg.ExcellentScore {
			dist.excellent++
		}
		if item.Relevance >= cfg.HighQualityScore {
			dist.high++
		}
	}
	dist.mean = sum / float64(len(quality))

	var variance float64
	for _, item := range quality {
		delta := item.Relevance - dist.mean
		variance += delta * delta
	}
	dist.stdDev = math.Sqrt(variance / float64(len(quality)))
	return dist
}

// targetCount is the deterministic chunk-count formula: enumeration
// questions widen toward MaxTopK when the distribution supports it,
// single facts stay narrow, complex questions scale with quality depth.
func (r *AdaptiveReranker) targetCount(complexity domain.Complexity, dist scoreDistribution, qualityLen int) int {
	var target int
	switch complexity {
	case domain.ComplexityEnumeration:
		if dist.excellent >= 8 {
			target = r.cfg.MaxTopK
		} else {
			target = 10
		}
	case domain.ComplexitySingleFact:
		target = r.cfg.MinTopK
	default:
		switch {
		case dist.excellent >= 10:
			target = 10
		case dist.high >= r.cfg.PreferredTopK:
			target = r.cfg.PreferredTopK
		default:
			target = r.cfg.MinTopK
		}
	}

	if target > qualityLen {
		target = qualityLen
	}
	if target < 1 {
		target = 1
	}
	return target
}

// selectDiverse round-robins across source documents instead of taking
// the global top-N, so one document cannot crowd out the rest with
// near-duplicate passages. Per-document score order is preserved; the
// document rotation follows first appearance in the quality ordering.
func selectDiverse(quality []domain.ScoredCandidate, target int) []domain.ScoredCandidate {
	if target >= len(quality) {
		out := make([]domain.ScoredCandidate, len(quality))
		copy(out, quality)
		return out
	}

	order := make([]string, 0)
	groups := make(map[string][]domain.ScoredCandidate)
	for _, item := range quality {
		docID := item.Chunk.DocumentID
		if _, ok := groups[docID]; !ok {
			order = append(order, docID)
		}
		groups[docID] = append(groups[docID], item)
	}

	out := make([]domain.ScoredCandidate, 0, target)
	for len(out) < target {
		took := false
		for _, docID := range order {
			group := groups[docID]
			if len(group) == 0 {
				continue
			}
			out = append(out, group[0])
			groups[docID] = group[1:]
			took = true
			if len(out) == target {
				break
			}
		}
		if !took {
			break
		}
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minRelevance(items []domain.ScoredCandidate) float64 {
	if len(items) == 0 {
		return 0
	}
	min := items[0].Relevance
	for _, item := range items[1:] {
		if item.Relevance < min {
			min = item.Relevance
		}
	}
	return min
}

func maxRelevance(items []domain.ScoredCandidate) float64 {
	if len(items) == 0 {
		return 0
	}
	max := items[0].Relevance
	for _, item := range items[1:] {
		if item.Relevance > max {
			max = item.Relevance
		}
	}
	return max
}
