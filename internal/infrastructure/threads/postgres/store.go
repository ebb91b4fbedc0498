// Package postgres persists conversation threads in a single
// conversation_turns table. Each turn is one row; per-thread ordering
// comes from an insertion sequence so equal timestamps cannot reorder
// history.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) History(ctx context.Context, threadID string) ([]domain.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT turn_id, query, reformulated_query, answer, sources, created_at
FROM conversation_turns
WHERE thread_id = $1
ORDER BY seq ASC
`, threadID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrThreadBackend, "thread history", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationTurn, 0)
	for rows.Next() {
		var (
			turn       domain.ConversationTurn
			sourcesRaw []byte
		)
		if err := rows.Scan(
			&turn.ID,
			&turn.Query,
			&turn.ReformulatedQuery,
			&turn.Answer,
			&sourcesRaw,
			&turn.CreatedAt,
		); err != nil {
			return nil, domain.WrapError(domain.ErrThreadBackend, "scan thread turn", err)
		}
		if len(sourcesRaw) > 0 {
			if err := json.Unmarshal(sourcesRaw, &turn.Sources); err != nil {
				return nil, domain.WrapError(domain.ErrThreadBackend, "decode turn sources", err)
			}
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrThreadBackend, "iterate thread turns", err)
	}
	return out, nil
}

func (s *Store) AppendTurn(ctx context.Context, threadID string, turn domain.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	sources, err := json.Marshal(turn.Sources)
	if err != nil {
		return fmt.Errorf("encode turn sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO conversation_turns (thread_id, turn_id, query, reformulated_query, answer, sources, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, threadID, turn.ID, turn.Query, turn.ReformulatedQuery, turn.Answer, sources, turn.CreatedAt)
	if err != nil {
		return domain.WrapError(domain.ErrThreadBackend, "append thread turn", err)
	}
	return nil
}
