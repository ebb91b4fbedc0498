package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
)

const (
	defaultLocationAnswer  = "I can only answer questions about policy documents. For office locations and in-person services, please use the official office locator."
	defaultErrorAnswer     = "I ran into a problem while preparing your answer. Please try again."
	defaultNoContextAnswer = "I could not find relevant information in the policy documents for this question."
)

type PipelineConfig struct {
	// RetrieveTopK is the candidate count handed to the reranker.
	RetrieveTopK int

	LocationAnswer  string
	ErrorAnswer     string
	NoContextAnswer string
}

func (c PipelineConfig) normalize() PipelineConfig {
	out := c
	if out.RetrieveTopK <= 0 {
		out.RetrieveTopK = 30
	}
	if out.LocationAnswer == "" {
		out.LocationAnswer = defaultLocationAnswer
	}
	if out.ErrorAnswer == "" {
		out.ErrorAnswer = defaultErrorAnswer
	}
	if out.NoContextAnswer == "" {
		out.NoContextAnswer = defaultNoContextAnswer
	}
	return out
}

// PipelineObserver receives stage-level outcome signals.
type PipelineObserver interface {
	RetrievalObserver
	IntentClassified(intent domain.Intent)
	SelectionObserved(meta domain.SelectionMetadata)
	ObserveAskDuration(elapsed time.Duration)
}

// Pipeline is the stage graph CLASSIFY -> {LOCATION | [REFORMULATE] ->
// RETRIEVE -> RERANK -> GENERATE} -> END. One instance serves all
// requests; per-request state lives in domain.PipelineState only.
type Pipeline struct {
	retriever    *HybridRetriever
	reranker     *AdaptiveReranker
	reformulator *QueryReformulator
	judge        ports.RelevanceJudge
	generator    ports.AnswerGenerator
	threads      ports.ThreadStore
	events       ports.AnswerEventPublisher
	observer     PipelineObserver
	cfg          PipelineConfig
}

func NewPipeline(
	retriever *HybridRetriever,
	reranker *AdaptiveReranker,
	reformulator *QueryReformulator,
	judge ports.RelevanceJudge,
	generator ports.AnswerGenerator,
	threads ports.ThreadStore,
	events ports.AnswerEventPublisher,
	observer PipelineObserver,
	cfg PipelineConfig,
) *Pipeline {
	return &Pipeline{
		retriever:    retriever,
		reranker:     reranker,
		reformulator: reformulator,
		judge:        judge,
		generator:    generator,
		threads:      threads,
		events:       events,
		observer:     observer,
		cfg:          cfg.normalize(),
	}
}

func (p *Pipeline) Ask(ctx context.Context, question, threadID string) (*domain.AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}

	if p.observer != nil {
		start := time.Now()
		defer func() { p.observer.ObserveAskDuration(time.Since(start)) }()
	}

	state := &domain.PipelineState{
		ThreadID: strings.TrimSpace(threadID),
		Query:    question,
	}
	p.loadHistory(ctx, state)

	p.classify(ctx, state)

	switch state.Intent {
	case domain.IntentLocationSearch:
		p.locate(state)
	default:
		p.reformulate(ctx, state)
		if err := p.retrieve(ctx, state); err != nil {
			return nil, err
		}
		p.rerank(ctx, state)
		p.generate(ctx, state)
		p.appendTurn(ctx, state)
	}

	p.publish(ctx, state)

	result := &domain.AskResult{
		Answer:  state.Answer,
		Sources: state.Sources,
	}
	if state.Selection != nil {
		result.Metadata = state.Selection.Metadata
	}
	return result, nil
}

func (p *Pipeline) loadHistory(ctx context.Context, state *domain.PipelineState) {
	if state.ThreadID == "" || p.threads == nil {
		return
	}
	history, err := p.threads.History(ctx, state.ThreadID)
	if err != nil {
		// Degrade to a single-shot request rather than failing the turn.
		slog.Warn("thread_history_failed", "thread_id", state.ThreadID, "error", err)
		return
	}
	state.History = history
}

// classify routes the request. Any classifier failure or unrecognized
// label defaults to the information path: misrouting toward retrieval is
// recoverable, a wrongly canned answer is not.
func (p *Pipeline) classify(ctx context.Context, state *domain.PipelineState) {
	label, err := p.judge.ClassifyIntent(ctx, state.Query)
	if err != nil {
		slog.Warn("intent_classification_failed", "error", err)
		state.Intent = domain.IntentInformation
	} else {
		intent, recognized := domain.ParseIntent(label)
		if !recognized {
			slog.Warn("intent_label_unrecognized", "label", label)
		}
		state.Intent = intent
	}
	if p.observer != nil {
		p.observer.IntentClassified(state.Intent)
	}
}

func (p *Pipeline) locate(state *domain.PipelineState) {
	state.Answer = p.cfg.LocationAnswer
	state.Sources = []domain.Source{}
}

func (p *Pipeline) reformulate(ctx context.Context, state *domain.PipelineState) {
	if p.reformulator == nil || len(state.History) == 0 {
		return
	}
	rewritten := p.reformulator.Reformulate(ctx, state.Query, state.History)
	if rewritten != state.Query {
		slog.Info("query_reformulated", "thread_id", state.ThreadID)
		state.ReformulatedQuery = rewritten
	}
}

func (p *Pipeline) retrieve(ctx context.Context, state *domain.PipelineState) error {
	candidates, err := p.retriever.Retrieve(ctx, state.EffectiveQuery(), p.cfg.RetrieveTopK)
	if err != nil {
		return fmt.Errorf("retrieve candidates: %w", err)
	}
	state.Candidates = candidates
	return nil
}

func (p *Pipeline) rerank(ctx context.Context, state *domain.PipelineState) {
	selection := p.reranker.Select(ctx, state.EffectiveQuery(), state.Candidates)
	state.Selection = selection
	if p.observer != nil {
		p.observer.SelectionObserved(selection.Metadata)
	}
}

// generate synthesizes the cited answer. Generator failures never
// propagate: the caller gets an apologetic answer with zero sources.
func (p *Pipeline) generate(ctx context.Context, state *domain.PipelineState) {
	if state.Selection == nil || len(state.Selection.Items) == 0 {
		state.Answer = p.cfg.NoContextAnswer
		state.Sources = []domain.Source{}
		return
	}

	answer, err := p.generator.Generate(ctx, state.EffectiveQuery(), state.Selection, state.History)
	if err != nil {
		slog.Error("answer_generation_failed", "error", err)
		state.Answer = p.cfg.ErrorAnswer
		state.Sources = []domain.Source{}
		return
	}

	state.Answer = answer
	state.Sources = extractCitedSources(answer, state.Selection.Items)
}

func (p *Pipeline) appendTurn(ctx context.Context, state *domain.PipelineState) {
	if state.ThreadID == "" || p.threads == nil {
		return
	}
	turn := domain.ConversationTurn{
		ID:                uuid.NewString(),
		Query:             state.Query,
		ReformulatedQuery: state.ReformulatedQuery,
		Answer:            state.Answer,
		Sources:           state.Sources,
		CreatedAt:         time.Now().UTC(),
	}
	if err := p.threads.AppendTurn(ctx, state.ThreadID, turn); err != nil {
		slog.Error("thread_append_failed", "thread_id", state.ThreadID, "error", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, state *domain.PipelineState) {
	if p.events == nil {
		return
	}
	event := ports.AnsweredEvent{
		ThreadID:    state.ThreadID,
		Intent:      state.Intent,
		SourceCount: len(state.Sources),
	}
	if state.Selection != nil {
		event.LowQuality = state.Selection.Metadata.LowQuality
	}
	if err := p.events.PublishAnswered(ctx, event); err != nil {
		slog.Warn("answer_event_publish_failed", "error", err)
	}
}

var citationPattern = regexp.MustCompile(`\[Doc (\d+)\]`)

// extractCitedSources resolves inline [Doc N] markers against the
// selection order. Unknown indices are ignored; each document appears
// once, in first-mention order.
func extractCitedSources(answer string, items []domain.ScoredCandidate) []domain.Source {
	sources := make([]domain.Source, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		index, err := strconv.Atoi(match[1])
		if err != nil || index < 1 || index > len(items) {
			continue
		}
		chunk := items[index-1].Chunk
		if _, ok := seen[chunk.DocumentID]; ok {
			continue
		}
		seen[chunk.DocumentID] = struct{}{}
		sources = append(sources, domain.Source{
			DocumentID: chunk.DocumentID,
			Page:       chunk.Page,
		})
	}
	return sources
}
