package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps portal sessions as Redis hashes under prefix+token.
type SessionStore struct {
	prefix string
	ttl    time.Duration
	cli    redis.UniversalClient
}

func NewSessionStore(cli redis.UniversalClient, prefix string, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SessionStore{prefix: prefix, ttl: ttl, cli: cli}
}

func (s *SessionStore) key(token string) string { return s.prefix + token }

// Put stores a session payload as Redis hash + TTL.
func (s *SessionStore) Put(ctx context.Context, token string, fields map[string]string) error {
	if token == "" {
		return fmt.Errorf("token empty")
	}
	key := s.key(token)
	if err := s.cli.HSet(ctx, key, fields).Err(); err != nil {
		return err
	}
	return s.cli.Expire(ctx, key, s.ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, token string) (map[string]string, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	m, err := s.cli.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	return m, true, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.cli.Del(ctx, s.key(token)).Err()
}

type SessionGetter interface {
	Get(ctx context.Context, token string) (map[string]string, bool, error)
}

// SessionAuthenticator resolves opaque session tokens written by the portal login.
type SessionAuthenticator struct {
	Sessions SessionGetter
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	info, ok, err := a.Sessions.Get(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: session lookup: %w", err)
	}
	if !ok || info["userId"] == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: info["userId"], Role: info["role"]}, nil
}
