package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
)

type ReformulatorConfig struct {
	// HistoryWindow is the number of trailing turns rendered into the
	// rewrite prompt.
	HistoryWindow int
	// MaxAnswerChars truncates any single assistant turn in the prompt.
	MaxAnswerChars int
	// ShortQueryTokens marks queries at or below this token count as
	// context-dependent.
	ShortQueryTokens int
}

func (c ReformulatorConfig) normalize() ReformulatorConfig {
	out := c
	if out.HistoryWindow <= 0 {
		out.HistoryWindow = 5
	}
	if out.MaxAnswerChars <= 0 {
		out.MaxAnswerChars = 600
	}
	if out.ShortQueryTokens <= 0 {
		out.ShortQueryTokens = 3
	}
	return out
}

// QueryReformulator turns context-dependent follow-ups into standalone
// retrieval queries. It fails open in every branch: the worst outcome is
// retrieving with the original query.
type QueryReformulator struct {
	rewriter ports.QueryRewriter
	cfg      ReformulatorConfig
}

func NewQueryReformulator(rewriter ports.QueryRewriter, cfg ReformulatorConfig) *QueryReformulator {
	return &QueryReformulator{rewriter: rewriter, cfg: cfg.normalize()}
}

func (q *QueryReformulator) Reformulate(ctx context.Context, query string, history []domain.ConversationTurn) string {
	if len(history) == 0 {
		return query
	}
	// Synthesis requests reference prior turns but need arithmetic over
	// already-retrieved facts, not a fresh search. Rewriting them would
	// drop the framing the generator depends on.
	if isSynthesisRequest(query) {
		return query
	}
	if !needsReformulation(query, q.cfg.ShortQueryTokens) {
		return query
	}

	prompt := buildReformulationPrompt(query, q.formatHistory(history))
	raw, err := q.rewriter.Rewrite(ctx, prompt)
	if err != nil {
		slog.Warn("reformulation_failed", "error", err)
		return query
	}

	rewritten := extractReformulatedQuery(raw)
	if rewritten == "" {
		slog.Warn("reformulation_empty_result")
		return query
	}
	return rewritten
}

var (
	synthesisReferenceCues = regexp.MustCompile(`(?i)\b(based on (what|the|all|everything|those|these)\b|you (told|said|mentioned|gave|provided|showed)\b|from (your|the) (previous|earlier|above)\b)`)
	synthesisOperationCues = regexp.MustCompile(`(?i)\b(calculate|compute|add (up|together|them)|sum|total|average|combine|multiply|subtract|difference)\b`)

	pronounCues     = regexp.MustCompile(`(?i)\b(it|its|they|them|their|theirs|those|these|this one|that one|he|she|him|her)\b`)
	correctionCues  = regexp.MustCompile(`(?i)\b(i meant|sorry|actually|my mistake|correction)\b`)
	topicReturnCues = regexp.MustCompile(`(?i)\b(back to|earlier|originally|before that|previous question)\b`)
	hypotheticalCue = regexp.MustCompile(`(?i)\b(what if|suppose|supposing|hypothetically|assuming)\b`)
	negationCarry   = regexp.MustCompile(`(?i)\bwhich (ones? )?(don't|do not|aren't|are not|didn't|did not|won't|will not)\b`)
)

func isSynthesisRequest(query string) bool {
	return synthesisReferenceCues.MatchString(query) && synthesisOperationCues.MatchString(query)
}

func needsReformulation(query string, shortQueryTokens int) bool {
	if len(strings.Fields(query)) <= shortQueryTokens {
		return true
	}
	return pronounCues.MatchString(query) ||
		correctionCues.MatchString(query) ||
		topicReturnCues.MatchString(query) ||
		hypotheticalCue.MatchString(query) ||
		negationCarry.MatchString(query)
}

func (q *QueryReformulator) formatHistory(history []domain.ConversationTurn) string {
	window := history
	if len(window) > q.cfg.HistoryWindow {
		window = window[len(window)-q.cfg.HistoryWindow:]
	}

	var b strings.Builder
	for _, turn := range window {
		answer := strings.TrimSpace(turn.Answer)
		if len(answer) > q.cfg.MaxAnswerChars {
			// Back off to a rune boundary so the cut never leaves an
			// invalid UTF-8 tail in the prompt.
			cut := q.cfg.MaxAnswerChars
			for cut > 0 && !utf8.RuneStart(answer[cut]) {
				cut--
			}
			answer = answer[:cut] + "..."
		}
		fmt.Fprintf(&b, "User: %s\n", strings.TrimSpace(turn.Query))
		fmt.Fprintf(&b, "Assistant: %s\n", answer)
	}
	return b.String()
}

func buildReformulationPrompt(query, formattedHistory string) string {
	return fmt.Sprintf(`Rewrite the user's latest question as a standalone search query.
Resolve pronouns and references using the conversation below.
Keep the user's intent; do not answer the question.
Return the rewritten query between <reformulated_query> tags.

Conversation:
%s
Latest question:
%s
`, formattedHistory, query)
}

var reformulatedTagPattern = regexp.MustCompile(`(?s)<reformulated_query>(.*?)</reformulated_query>`)

func extractReformulatedQuery(raw string) string {
	if match := reformulatedTagPattern.FindStringSubmatch(raw); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(raw)
}
