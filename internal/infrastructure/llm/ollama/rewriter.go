package ollama

import (
	"context"
	"fmt"
)

// Rewriter runs the reformulation prompt built by the use case layer.
type Rewriter struct {
	client *Client
}

func NewRewriter(client *Client) *Rewriter {
	return &Rewriter{client: client}
}

func (r *Rewriter) Rewrite(ctx context.Context, prompt string) (string, error) {
	out, err := r.client.generateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}
	return out, nil
}
