package ports

import (
	"context"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

// AskService is the inbound contract for the question-answering pipeline.
// An empty threadID runs a single-shot request; a non-empty threadID runs
// in conversational mode against that thread's history.
type AskService interface {
	Ask(ctx context.Context, question, threadID string) (*domain.AskResult, error)
}
