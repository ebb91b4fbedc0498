package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
)

type recordingEmbedder struct {
	lastText string
}

func (r *recordingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	r.lastText = text
	return []float32{0.1}, nil
}

type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(context.Context, string, *domain.Selection, []domain.ConversationTurn) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeThreadStore struct {
	history    []domain.ConversationTurn
	historyErr error
	appendErr  error
	appended   []domain.ConversationTurn
}

func (f *fakeThreadStore) History(context.Context, string) ([]domain.ConversationTurn, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeThreadStore) AppendTurn(_ context.Context, _ string, turn domain.ConversationTurn) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, turn)
	return nil
}

type fakePublisher struct {
	events []ports.AnsweredEvent
	err    error
}

func (f *fakePublisher) PublishAnswered(_ context.Context, event ports.AnsweredEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type recordingPipelineObserver struct {
	recordingObserver
	intents    []domain.Intent
	selections []domain.SelectionMetadata
	durations  []time.Duration
}

func (r *recordingPipelineObserver) IntentClassified(intent domain.Intent) {
	r.intents = append(r.intents, intent)
}

func (r *recordingPipelineObserver) SelectionObserved(meta domain.SelectionMetadata) {
	r.selections = append(r.selections, meta)
}

func (r *recordingPipelineObserver) ObserveAskDuration(elapsed time.Duration) {
	r.durations = append(r.durations, elapsed)
}

type pipelineFixture struct {
	pipeline  *Pipeline
	embedder  *recordingEmbedder
	store     *fakeVectorStore
	judge     *fakeJudge
	rewriter  *fakeRewriter
	generator *fakeGenerator
	threads   *fakeThreadStore
	events    *fakePublisher
	observer  *recordingPipelineObserver
}

func newPipelineFixture(judge *fakeJudge, generator *fakeGenerator) *pipelineFixture {
	f := &pipelineFixture{
		embedder:  &recordingEmbedder{},
		judge:     judge,
		rewriter:  &fakeRewriter{},
		generator: generator,
		threads:   &fakeThreadStore{},
		events:    &fakePublisher{},
		observer:  &recordingPipelineObserver{},
	}
	f.store = &fakeVectorStore{prefetch: &ports.PrefetchResult{
		Dense: pipelineCandidates(),
	}}

	retriever := NewHybridRetriever(f.embedder, fakeEncoder{}, f.store, nil, f.observer, RetrieverConfig{})
	reranker := NewAdaptiveReranker(judge, RerankConfig{})
	reformulator := NewQueryReformulator(f.rewriter, ReformulatorConfig{})
	f.pipeline = NewPipeline(retriever, reranker, reformulator, judge, generator, f.threads, f.events, f.observer, PipelineConfig{RetrieveTopK: 5})
	return f
}

func pipelineCandidates() []domain.Candidate {
	out := make([]domain.Candidate, 0, 5)
	for i := 0; i < 5; i++ {
		out = append(out, domain.Candidate{
			Chunk: domain.Chunk{
				ID:         fmt.Sprintf("chunk-%d", i),
				DocumentID: fmt.Sprintf("doc-%d", i),
				Page:       i + 1,
				Text:       fmt.Sprintf("policy passage %d", i),
			},
			Score: 1.0 - float64(i)*0.01,
		})
	}
	return out
}

func pipelineScores() map[string]float64 {
	scores := make(map[string]float64, 5)
	for i := 0; i < 5; i++ {
		scores[fmt.Sprintf("chunk-%d", i)] = 0.95
	}
	return scores
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	f := newPipelineFixture(&fakeJudge{intent: "information"}, &fakeGenerator{answer: "a"})

	_, err := f.pipeline.Ask(context.Background(), "   ", "")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAskLocationIntentSkipsRetrieval(t *testing.T) {
	f := newPipelineFixture(&fakeJudge{intent: "location"}, &fakeGenerator{answer: "unused"})

	result, err := f.pipeline.Ask(context.Background(), "where is the nearest benefits office", "th-1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if result.Answer != defaultLocationAnswer {
		t.Fatalf("expected canned location answer, got %q", result.Answer)
	}
	if len(result.Sources) != 0 {
		t.Fatalf("location answers carry no sources, got %v", result.Sources)
	}
	if f.store.queryCalls != 0 {
		t.Fatalf("location path must not query the vector store, got %d calls", f.store.queryCalls)
	}
	if f.generator.calls != 0 {
		t.Fatalf("location path must not call the generator, got %d calls", f.generator.calls)
	}
	if len(f.threads.appended) != 0 {
		t.Fatalf("location path must not append a turn, got %d", len(f.threads.appended))
	}
	if len(f.observer.intents) != 1 || f.observer.intents[0] != domain.IntentLocationSearch {
		t.Fatalf("unexpected observed intents %v", f.observer.intents)
	}
}

func TestAskInformationFlowExtractsCitedSources(t *testing.T) {
	judge := &fakeJudge{intent: "information", scores: pipelineScores()}
	generator := &fakeGenerator{answer: "The cap is $500 [Doc 2]. It rises yearly [Doc 1]. See also [Doc 2]."}
	f := newPipelineFixture(judge, generator)

	result, err := f.pipeline.Ask(context.Background(), "what is the benefit cap", "th-1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if result.Answer != generator.answer {
		t.Fatalf("unexpected answer %q", result.Answer)
	}
	// First-mention order, duplicates collapsed.
	if len(result.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", result.Sources)
	}
	if result.Sources[0].DocumentID != "doc-1" || result.Sources[1].DocumentID != "doc-0" {
		t.Fatalf("unexpected source order %v", result.Sources)
	}

	if len(f.threads.appended) != 1 {
		t.Fatalf("expected one appended turn, got %d", len(f.threads.appended))
	}
	turn := f.threads.appended[0]
	if turn.Query != "what is the benefit cap" || turn.Answer != generator.answer {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if turn.ID == "" || turn.CreatedAt.IsZero() {
		t.Fatalf("turn missing id or timestamp: %+v", turn)
	}

	if len(f.events.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(f.events.events))
	}
	event := f.events.events[0]
	if event.ThreadID != "th-1" || event.Intent != domain.IntentInformation || event.SourceCount != 2 {
		t.Fatalf("unexpected event %+v", event)
	}

	if len(f.observer.durations) != 1 {
		t.Fatalf("expected one observed ask duration, got %d", len(f.observer.durations))
	}
}

func TestAskGeneratorFailureDegradesToErrorAnswer(t *testing.T) {
	judge := &fakeJudge{intent: "information", scores: pipelineScores()}
	f := newPipelineFixture(judge, &fakeGenerator{err: errors.New("llm down")})

	result, err := f.pipeline.Ask(context.Background(), "what is the benefit cap", "th-1")
	if err != nil {
		t.Fatalf("generator failure must not fail the request, got %v", err)
	}
	if result.Answer != defaultErrorAnswer {
		t.Fatalf("expected error answer, got %q", result.Answer)
	}
	if len(result.Sources) != 0 {
		t.Fatalf("expected no sources, got %v", result.Sources)
	}
	if len(f.threads.appended) != 1 {
		t.Fatalf("turn is still recorded after generator failure, got %d", len(f.threads.appended))
	}
}

func TestAskNoCandidatesYieldsNoContextAnswer(t *testing.T) {
	judge := &fakeJudge{intent: "information"}
	generator := &fakeGenerator{answer: "unused"}
	f := newPipelineFixture(judge, generator)
	f.store.prefetch = &ports.PrefetchResult{}

	result, err := f.pipeline.Ask(context.Background(), "something obscure", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if result.Answer != defaultNoContextAnswer {
		t.Fatalf("expected no-context answer, got %q", result.Answer)
	}
	if generator.calls != 0 {
		t.Fatalf("generator must not run without context, got %d calls", generator.calls)
	}
}

func TestAskClassifierFailureDefaultsToInformation(t *testing.T) {
	judge := &fakeJudge{intentErr: errors.New("classifier down"), scores: pipelineScores()}
	f := newPipelineFixture(judge, &fakeGenerator{answer: "answer [Doc 1]"})

	result, err := f.pipeline.Ask(context.Background(), "where can I read the policy", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if result.Answer != "answer [Doc 1]" {
		t.Fatalf("expected information path, got %q", result.Answer)
	}
	if f.store.queryCalls != 1 {
		t.Fatalf("expected retrieval on classifier failure, got %d calls", f.store.queryCalls)
	}
}

func TestAskUnknownIntentLabelDefaultsToInformation(t *testing.T) {
	judge := &fakeJudge{intent: "weather", scores: pipelineScores()}
	f := newPipelineFixture(judge, &fakeGenerator{answer: "answer"})

	if _, err := f.pipeline.Ask(context.Background(), "what is the cap", ""); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(f.observer.intents) != 1 || f.observer.intents[0] != domain.IntentInformation {
		t.Fatalf("unexpected intents %v", f.observer.intents)
	}
}

func TestAskReformulatesFollowUpBeforeRetrieval(t *testing.T) {
	judge := &fakeJudge{intent: "information", scores: pipelineScores()}
	f := newPipelineFixture(judge, &fakeGenerator{answer: "answer"})
	f.threads.history = []domain.ConversationTurn{
		{Query: "What is the childcare subsidy?", Answer: "It covers 85% of costs."},
	}
	f.rewriter.response = "<reformulated_query>what is the childcare subsidy rate for infants</reformulated_query>"

	if _, err := f.pipeline.Ask(context.Background(), "what about it for infants", "th-1"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if f.embedder.lastText != "what is the childcare subsidy rate for infants" {
		t.Fatalf("retrieval used %q instead of the reformulated query", f.embedder.lastText)
	}
	if len(f.threads.appended) != 1 {
		t.Fatalf("expected appended turn, got %d", len(f.threads.appended))
	}
	if f.threads.appended[0].ReformulatedQuery != "what is the childcare subsidy rate for infants" {
		t.Fatalf("turn missing reformulated query: %+v", f.threads.appended[0])
	}
	if f.threads.appended[0].Query != "what about it for infants" {
		t.Fatalf("turn must keep the original query: %+v", f.threads.appended[0])
	}
}

func TestAskHistoryFailureDegradesToSingleShot(t *testing.T) {
	judge := &fakeJudge{intent: "information", scores: pipelineScores()}
	f := newPipelineFixture(judge, &fakeGenerator{answer: "answer"})
	f.threads.historyErr = errors.New("store down")

	if _, err := f.pipeline.Ask(context.Background(), "what about it", "th-1"); err != nil {
		t.Fatalf("history failure must not fail the request, got %v", err)
	}
	if f.rewriter.calls != 0 {
		t.Fatalf("no history means no reformulation, got %d calls", f.rewriter.calls)
	}
}

func TestAskPublishFailureIsSwallowed(t *testing.T) {
	judge := &fakeJudge{intent: "information", scores: pipelineScores()}
	f := newPipelineFixture(judge, &fakeGenerator{answer: "answer"})
	f.events.err = errors.New("nats down")

	if _, err := f.pipeline.Ask(context.Background(), "what is the cap", ""); err != nil {
		t.Fatalf("publish failure must not fail the request, got %v", err)
	}
}

func TestAskWithoutThreadIDSkipsMemory(t *testing.T) {
	judge := &fakeJudge{intent: "information", scores: pipelineScores()}
	f := newPipelineFixture(judge, &fakeGenerator{answer: "answer"})

	if _, err := f.pipeline.Ask(context.Background(), "what is the cap", ""); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(f.threads.appended) != 0 {
		t.Fatalf("expected no appended turns without a thread, got %d", len(f.threads.appended))
	}
}

func TestExtractCitedSourcesIgnoresOutOfRange(t *testing.T) {
	items := []domain.ScoredCandidate{
		{Candidate: domain.Candidate{Chunk: domain.Chunk{ID: "a", DocumentID: "doc-a", Page: 2}}},
	}

	sources := extractCitedSources("see [Doc 1], [Doc 0] and [Doc 9]", items)
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %v", sources)
	}
	if sources[0].DocumentID != "doc-a" || sources[0].Page != 2 {
		t.Fatalf("unexpected source %+v", sources[0])
	}
}
