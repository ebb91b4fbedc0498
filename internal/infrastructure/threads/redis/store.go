// Package redis keeps thread history in a Redis list per thread. RPUSH
// is atomic on the server, which gives per-thread append ordering
// without client-side locking.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, prefix: "thread:"}
}

func (s *Store) key(threadID string) string {
	return s.prefix + threadID
}

func (s *Store) History(ctx context.Context, threadID string) ([]domain.ConversationTurn, error) {
	entries, err := s.client.LRange(ctx, s.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrThreadBackend, "thread history", err)
	}

	out := make([]domain.ConversationTurn, 0, len(entries))
	for _, entry := range entries {
		var turn domain.ConversationTurn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			return nil, domain.WrapError(domain.ErrThreadBackend, "decode thread turn", err)
		}
		out = append(out, turn)
	}
	return out, nil
}

func (s *Store) AppendTurn(ctx context.Context, threadID string, turn domain.ConversationTurn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode thread turn: %w", err)
	}
	if err := s.client.RPush(ctx, s.key(threadID), payload).Err(); err != nil {
		return domain.WrapError(domain.ErrThreadBackend, "append thread turn", err)
	}
	return nil
}
