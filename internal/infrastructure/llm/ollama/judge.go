package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

// Judge implements relevance scoring and intent classification on the
// generation model. Both calls request JSON-formatted output.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Score(ctx context.Context, query string, chunks []domain.Chunk) (map[string]float64, error) {
	if len(chunks) == 0 {
		return map[string]float64{}, nil
	}

	raw, err := j.client.generateJSON(ctx, buildJudgePrompt(query, chunks))
	if err != nil {
		return nil, fmt.Errorf("judge score: %w", err)
	}

	var parsed struct {
		Scores []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		} `json:"scores"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse judge response: %w", err)
	}

	scores := make(map[string]float64, len(chunks))
	for _, entry := range parsed.Scores {
		if entry.Index < 1 || entry.Index > len(chunks) {
			continue
		}
		scores[chunks[entry.Index-1].ID] = clampScore(entry.Score)
	}
	return scores, nil
}

func (j *Judge) ClassifyIntent(ctx context.Context, query string) (string, error) {
	raw, err := j.client.generateJSON(ctx, buildIntentPrompt(query))
	if err != nil {
		return "", fmt.Errorf("classify intent: %w", err)
	}

	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return "", fmt.Errorf("parse intent response: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(parsed.Intent)), nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
