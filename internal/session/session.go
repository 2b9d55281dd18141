// Package session holds the redis-backed session store shared by the HTTP
// login flow and the subscriber socket identity binding.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"TrackHub/pkg/config"
	rdb "TrackHub/pkg/db/redis"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

const (
	defaultKeyPrefix = "session:"
	defaultTTL       = 24 * time.Hour

	// cookiePrefix is the url-encoded "s:" marker of a signed session cookie.
	cookiePrefix = "s%3A"
)

// Session is the authenticated state stored per session key.
type Session struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Store persists sessions in redis with a TTL.
type Store struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewStore(client *redis.Client, cfg *config.SessionConfig) *Store {
	s := &Store{rdb: client, keyPrefix: defaultKeyPrefix, ttl: defaultTTL}
	if cfg != nil {
		if cfg.KeyPrefix != "" {
			s.keyPrefix = cfg.KeyPrefix
		}
		if cfg.TTLSeconds > 0 {
			s.ttl = time.Duration(cfg.TTLSeconds) * time.Second
		}
	}
	return s
}

// NewDefaultStore uses the process-wide redis client.
func NewDefaultStore(cfg *config.SessionConfig) *Store {
	return NewStore(rdb.Rdb, cfg)
}

// Create stores a fresh session and returns its key.
func (s *Store) Create(ctx context.Context, sess *Session) (string, error) {
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	key := uuid.NewString()
	if err := s.rdb.Set(ctx, s.keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return key, nil
}

// Get loads the session for key, ErrNotFound when absent or expired.
func (s *Store) Get(ctx context.Context, key string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// Destroy removes the session for key. Destroying an absent session is not
// an error.
func (s *Store) Destroy(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// ExtractKey pulls the session key out of an opaque client token. Two forms
// are accepted: a raw session key, or a url-encoded signed cookie value
// "s%3A<key>.<signature>" where the key sits between the prefix and the first
// dot. A prefixed token without a separator yields "" (invalid).
func ExtractKey(token string) string {
	if !strings.HasPrefix(token, cookiePrefix) {
		return token
	}
	rest := token[len(cookiePrefix):]
	idx := strings.Index(rest, ".")
	if idx < 0 {
		return ""
	}
	return rest[:idx]
}
