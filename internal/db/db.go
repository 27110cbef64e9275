// Package db is the Postgres session store, used when SESSION_BACKEND is
// postgres.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"NotifyAdmin/internal/session"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, conn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{Pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure session schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS admin_sessions (
			id         TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS admin_sessions_expires_at ON admin_sessions (expires_at);
	`)
	return err
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT data FROM admin_sessions
		 WHERE id=$1 AND expires_at > NOW()`,
		id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess := &session.Session{ID: id}
	if err := json.Unmarshal(raw, &sess.Values); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Values == nil {
		sess.Values = make(map[string]json.RawMessage)
	}
	return sess, nil
}

func (s *Store) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess.Values)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO admin_sessions (id, data, expires_at, updated_at)
		 VALUES ($1,$2,$3,NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET data=EXCLUDED.data,
		     expires_at=EXCLUDED.expires_at,
		     updated_at=NOW()`,
		sess.ID,
		raw,
		time.Now().Add(ttl),
	)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM admin_sessions WHERE id=$1`, id)
	return err
}

// PurgeExpired removes sessions past their expiry and reports how many went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM admin_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
