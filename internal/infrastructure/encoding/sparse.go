// Package encoding implements the deterministic sparse vectorizer used
// for keyword-exact retrieval.
package encoding

import (
	"hash/fnv"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

const DefaultVocabularySize = 30000

// SparseEncoder maps text onto fixed-dimension term-frequency vectors.
// Same text and vocabulary size always produce byte-identical output;
// queries and documents share the same scheme. No network calls, no
// failure modes beyond an empty vector for empty input.
type SparseEncoder struct {
	vocabSize uint32
}

func NewSparseEncoder(vocabSize int) *SparseEncoder {
	if vocabSize <= 0 {
		vocabSize = DefaultVocabularySize
	}
	return &SparseEncoder{vocabSize: uint32(vocabSize)}
}

var (
	currencyPattern = regexp.MustCompile(`\$\d[\d,]*(?:\.\d+)?`)
	percentPattern  = regexp.MustCompile(`\d+(?:\.\d+)?%`)
	integerPattern  = regexp.MustCompile(`\b\d+\b`)
	tokenPattern    = regexp.MustCompile(`[a-z0-9_]+`)
)

func (e *SparseEncoder) Encode(text string) domain.SparseVector {
	terms := tokenize(text)
	if len(terms) == 0 {
		return domain.SparseVector{}
	}

	frequencies := make(map[string]float64, len(terms))
	for _, term := range terms {
		frequencies[term]++
	}

	// Distinct terms hashing to the same index sum their frequencies:
	// neither term's signal is dropped.
	weights := make(map[uint32]float64, len(frequencies))
	owners := make(map[uint32]string, len(frequencies))
	for term, freq := range frequencies {
		index := e.termIndex(term)
		if prior, collided := owners[index]; collided {
			slog.Debug("sparse_index_collision",
				"index", index,
				"term", term,
				"prior_term", prior,
			)
		} else {
			owners[index] = term
		}
		weights[index] += freq
	}

	vector := make(domain.SparseVector, 0, len(weights))
	for index, weight := range weights {
		vector = append(vector, domain.SparseEntry{Index: index, Weight: weight})
	}
	sort.Slice(vector, func(i, j int) bool {
		return vector[i].Index < vector[j].Index
	})
	return vector
}

// EncodeQuery is identical to Encode: the scheme is symmetric with no
// query/document asymmetry.
func (e *SparseEncoder) EncodeQuery(text string) domain.SparseVector {
	return e.Encode(text)
}

func (e *SparseEncoder) termIndex(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32() % e.vocabSize
}

// tokenize lowercases the text, rewrites semantically load-bearing
// numeric patterns into single tokens before generic word splitting,
// then splits on word boundaries. Rewrites run most-specific first so
// "$4,106" never decays into a bare "4106" and "85%" stays distinct
// from "85".
func tokenize(text string) []string {
	text = strings.ToLower(text)

	text = currencyPattern.ReplaceAllStringFunc(text, func(match string) string {
		return " cur" + normalizeDigits(match[1:]) + " "
	})
	text = percentPattern.ReplaceAllStringFunc(text, func(match string) string {
		return " pct" + normalizeDigits(match[:len(match)-1]) + " "
	})
	text = integerPattern.ReplaceAllStringFunc(text, func(match string) string {
		return " num" + match + " "
	})

	return tokenPattern.FindAllString(text, -1)
}

func normalizeDigits(raw string) string {
	raw = strings.ReplaceAll(raw, ",", "")
	return strings.ReplaceAll(raw, ".", "_")
}
