package usecase

import (
	"sort"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

type fusedCandidate struct {
	candidate domain.Candidate
	score     float64
	minRank   int
}

// fuseCandidatesRRF merges the dense and sparse prefetch legs with
// reciprocal rank fusion: each item contributes 1/(rrfK+rank) per list
// it appears in, rank 1-based. Ties break on the better minimum rank
// across lists, then on chunk id, so the output order is total.
func fuseCandidatesRRF(dense, sparse []domain.Candidate, rrfK int) []domain.Candidate {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	addList := func(list []domain.Candidate) {
		for i, candidate := range list {
			rank := i + 1
			entry, ok := acc[candidate.Chunk.ID]
			if !ok {
				entry = &fusedCandidate{candidate: candidate, minRank: rank}
				acc[candidate.Chunk.ID] = entry
			}
			entry.score += 1.0 / float64(rrfK+rank)
			if rank < entry.minRank {
				entry.minRank = rank
			}
		}
	}

	addList(dense)
	addList(sparse)

	out := make([]fusedCandidate, 0, len(acc))
	for _, entry := range acc {
		out = append(out, *entry)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].minRank != out[j].minRank {
			return out[i].minRank < out[j].minRank
		}
		return out[i].candidate.Chunk.ID < out[j].candidate.Chunk.ID
	})

	fused := make([]domain.Candidate, 0, len(out))
	for _, entry := range out {
		candidate := entry.candidate
		candidate.Score = entry.score
		candidate.Method = domain.MethodFused
		fused = append(fused, candidate)
	}
	return fused
}

func dropBelowThreshold(candidates []domain.Candidate, minScore float64) []domain.Candidate {
	if minScore <= 0 {
		return candidates
	}
	out := candidates[:0]
	for _, candidate := range candidates {
		if candidate.Score >= minScore {
			out = append(out, candidate)
		}
	}
	return out
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
