package ollama

import (
	"fmt"
	"strings"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

func buildJudgePrompt(query string, chunks []domain.Chunk) string {
	var b strings.Builder
	b.WriteString("Rate how relevant each excerpt is to the question on a 0.0-1.0 scale.\n")
	b.WriteString("1.0 means the excerpt directly answers the question, 0.0 means unrelated.\n")
	b.WriteString(`Respond with JSON only: {"scores":[{"index":1,"score":0.0}, ...]}` + "\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)

	for i, chunk := range chunks {
		fmt.Fprintf(&b, "Excerpt %d:\n%s\n\n", i+1, chunkContext(chunk))
	}
	return b.String()
}

func buildIntentPrompt(query string) string {
	return fmt.Sprintf(`Classify the user's question into exactly one intent:
- "information": asks about policy content, rules, amounts, procedures.
- "location": asks where to find an office, address, or physical place.

Respond with JSON only: {"intent":"..."}

Question: %s
`, query)
}

func buildAnswerPrompt(query string, selection *domain.Selection, history []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the numbered documents below.\n")
	b.WriteString("Cite every fact with its document marker, e.g. [Doc 2].\n")
	b.WriteString("If the documents do not contain the answer, say so.\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "User: %s\n", strings.TrimSpace(turn.Query))
			fmt.Fprintf(&b, "Assistant: %s\n", strings.TrimSpace(turn.Answer))
		}
		b.WriteString("\n")
	}

	if selection != nil {
		for i, item := range selection.Items {
			fmt.Fprintf(&b, "[Doc %d]\n%s\n\n", i+1, chunkContext(item.Chunk))
		}
	}

	fmt.Fprintf(&b, "Question: %s\n", query)
	return b.String()
}

// chunkContext prepends the contextual tiers so the model sees where the
// excerpt sits inside its document.
func chunkContext(chunk domain.Chunk) string {
	parts := make([]string, 0, 4)
	if s := strings.TrimSpace(chunk.Context.Master); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(chunk.Context.Document); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(chunk.Context.Chunk); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, strings.TrimSpace(chunk.Text))
	return strings.Join(parts, "\n")
}
