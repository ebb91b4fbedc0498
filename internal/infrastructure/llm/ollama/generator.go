package ollama

import (
	"context"
	"fmt"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

// Generator synthesizes the cited answer from a reranked selection.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, query string, selection *domain.Selection, history []domain.ConversationTurn) (string, error) {
	answer, err := g.client.generateText(ctx, buildAnswerPrompt(query, selection, history))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}
