package encoding

import (
	"hash/fnv"
	"reflect"
	"testing"
)

func termIndexFor(term string, vocabSize uint32) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32() % vocabSize
}

func TestEncodeIsDeterministic(t *testing.T) {
	encoder := NewSparseEncoder(30000)

	first := encoder.Encode("the housing benefit cap is $4,106 per year")
	second := encoder.Encode("the housing benefit cap is $4,106 per year")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical input produced different vectors:\n%v\n%v", first, second)
	}
}

func TestEncodeIndicesSortedAndBounded(t *testing.T) {
	encoder := NewSparseEncoder(128)

	vector := encoder.Encode("eligibility requirements for housing assistance programs and benefit caps")
	for i := 1; i < len(vector); i++ {
		if vector[i-1].Index >= vector[i].Index {
			t.Fatalf("indices not strictly ascending at %d: %v", i, vector)
		}
	}
	for _, entry := range vector {
		if entry.Index >= 128 {
			t.Fatalf("index %d exceeds vocabulary size", entry.Index)
		}
	}
}

func TestEncodeEmptyInput(t *testing.T) {
	encoder := NewSparseEncoder(30000)

	if got := encoder.Encode(""); len(got) != 0 {
		t.Fatalf("expected empty vector, got %v", got)
	}
	if got := encoder.Encode("   \t\n"); len(got) != 0 {
		t.Fatalf("expected empty vector for whitespace, got %v", got)
	}
}

func TestEncodeCountsTermFrequency(t *testing.T) {
	encoder := NewSparseEncoder(30000)

	vector := encoder.Encode("benefit benefit benefit")
	if len(vector) != 1 {
		t.Fatalf("expected 1 entry, got %v", vector)
	}
	if vector[0].Weight != 3 {
		t.Fatalf("expected frequency 3, got %v", vector[0].Weight)
	}
	if vector[0].Index != termIndexFor("benefit", 30000) {
		t.Fatalf("unexpected index %d", vector[0].Index)
	}
}

func TestEncodeCurrencyBecomesSingleToken(t *testing.T) {
	encoder := NewSparseEncoder(30000)

	vector := encoder.Encode("$4,106.50")
	if len(vector) != 1 {
		t.Fatalf("expected currency to collapse into one token, got %v", vector)
	}
	if vector[0].Index != termIndexFor("cur4106_50", 30000) {
		t.Fatalf("unexpected currency token index %d", vector[0].Index)
	}
}

func TestEncodePercentAndIntegerStayDistinct(t *testing.T) {
	encoder := NewSparseEncoder(30000)

	percent := encoder.Encode("85%")
	bare := encoder.Encode("85")
	if len(percent) != 1 || len(bare) != 1 {
		t.Fatalf("expected single entries, got %v and %v", percent, bare)
	}
	if percent[0].Index == bare[0].Index {
		t.Fatalf("percent and bare number mapped to the same index %d", percent[0].Index)
	}
	if percent[0].Index != termIndexFor("pct85", 30000) {
		t.Fatalf("unexpected percent token index %d", percent[0].Index)
	}
	if bare[0].Index != termIndexFor("num85", 30000) {
		t.Fatalf("unexpected number token index %d", bare[0].Index)
	}
}

func TestEncodeCollisionSumsWeights(t *testing.T) {
	// Vocabulary size 1 forces every term onto index 0; the total weight
	// must equal the total term count.
	encoder := NewSparseEncoder(1)

	vector := encoder.Encode("alpha beta gamma alpha")
	if len(vector) != 1 {
		t.Fatalf("expected all terms on one index, got %v", vector)
	}
	if vector[0].Weight != 4 {
		t.Fatalf("expected summed weight 4, got %v", vector[0].Weight)
	}
}

func TestEncodeQueryMatchesEncode(t *testing.T) {
	encoder := NewSparseEncoder(30000)

	text := "how much is the childcare subsidy for 2024"
	if !reflect.DeepEqual(encoder.Encode(text), encoder.EncodeQuery(text)) {
		t.Fatalf("query and document encodings differ")
	}
}
