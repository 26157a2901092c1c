package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRepository tracks live refresh tokens in Redis, one key per jti.
type SessionRepository struct {
	rdb redis.Cmdable
}

func NewSessionRepository(rdb redis.Cmdable) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

func sessionKey(userID, jti string) string {
	return fmt.Sprintf("refresh:%s:%s", userID, jti)
}

// Store records jti as valid for ttl.
func (r *SessionRepository) Store(ctx context.Context, userID, jti string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, sessionKey(userID, jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Consume deletes jti and reports whether it was still valid. A token can be consumed once.
func (r *SessionRepository) Consume(ctx context.Context, userID, jti string) (bool, error) {
	n, err := r.rdb.Del(ctx, sessionKey(userID, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume session: %w", err)
	}
	return n == 1, nil
}

// RevokeAll deletes every refresh session of userID.
func (r *SessionRepository) RevokeAll(ctx context.Context, userID string) error {
	iter := r.rdb.Scan(ctx, 0, sessionKey(userID, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}
