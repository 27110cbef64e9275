// Package session keeps per-user state between requests: the signed-in user
// and the progress of the send flow.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID     string                     `json:"id"`
	Values map[string]json.RawMessage `json:"values"`
}

func New() *Session {
	return &Session{ID: uuid.NewString(), Values: make(map[string]json.RawMessage)}
}

func (s *Session) get(key string, dst any) bool {
	raw, ok := s.Values[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (s *Session) set(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		// Only strings, ints and string maps are stored.
		panic(fmt.Sprintf("session: marshal %s: %v", key, err))
	}
	if s.Values == nil {
		s.Values = make(map[string]json.RawMessage)
	}
	s.Values[key] = raw
}

func (s *Session) Has(key string) bool {
	_, ok := s.Values[key]
	return ok
}

const keyUserID = "user_id"

// UserID is the signed-in user, set by the authentication layer.
func (s *Session) UserID() string {
	var id string
	s.get(keyUserID, &id)
	return id
}

func (s *Session) SetUserID(id string) {
	s.set(keyUserID, id)
}

// Store persists sessions. Save writes the whole session with a TTL.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(id string) string {
	return "session:" + id
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Values == nil {
		s.Values = make(map[string]json.RawMessage)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, redisKey(s.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, redisKey(id)).Err()
}
