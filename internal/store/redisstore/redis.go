// Package redisstore implements store.SessionStore on Redis.
//
// Each session lives in a hash holding the JSON snapshot and its version.
// The conditional update runs as a Lua script so the version check, the
// snapshot swap, the deadline index and the live-session set all change in
// one atomic step on the server — no interleaving writer can publish a stale
// aggregate.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/streambid/internal/auction/queue"
	"github.com/mcdev12/streambid/internal/models"
	"github.com/mcdev12/streambid/internal/store"
)

const (
	sessionKeyPrefix = "session:"
	deadlineIndexKey = "auction:deadlines"
	liveSessionsKey  = "sessions:live"
)

// Store is a Redis-backed SessionStore.
type Store struct {
	client       *redis.Client
	createScript *redis.Script
	updateScript *redis.Script
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Store {
	// ARGV: snapshot JSON, session ID, deadline in unix millis ("" when no
	// auction is running), live flag "1"/"0".
	createScript := redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 1 then
			return 0
		end
		redis.call('HSET', KEYS[1], 'version', 1, 'data', ARGV[1])
		if ARGV[3] == '' then
			redis.call('ZREM', KEYS[2], ARGV[2])
		else
			redis.call('ZADD', KEYS[2], ARGV[3], ARGV[2])
		end
		if ARGV[4] == '1' then
			redis.call('SADD', KEYS[3], ARGV[2])
		else
			redis.call('SREM', KEYS[3], ARGV[2])
		end
		return 1
	`)

	// ARGV: expected version, snapshot JSON, session ID, deadline millis or
	// "", live flag. Returns the new version, -1 when the key is missing and
	// -2 when the version check fails.
	updateScript := redis.NewScript(`
		local ver = redis.call('HGET', KEYS[1], 'version')
		if not ver then
			return -1
		end
		if tonumber(ver) ~= tonumber(ARGV[1]) then
			return -2
		end
		local next = tonumber(ARGV[1]) + 1
		redis.call('HSET', KEYS[1], 'version', next, 'data', ARGV[2])
		if ARGV[4] == '' then
			redis.call('ZREM', KEYS[2], ARGV[3])
		else
			redis.call('ZADD', KEYS[2], ARGV[4], ARGV[3])
		end
		if ARGV[5] == '1' then
			redis.call('SADD', KEYS[3], ARGV[3])
		else
			redis.call('SREM', KEYS[3], ARGV[3])
		end
		return next
	`)

	return &Store{
		client:       client,
		createScript: createScript,
		updateScript: updateScript,
	}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return New(client), nil
}

var _ store.SessionStore = (*Store)(nil)

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func indexArgs(session *models.Session) (deadline, live string) {
	if d := queue.NextDeadline(session); d != nil {
		deadline = strconv.FormatInt(d.UnixMilli(), 10)
	}
	live = "0"
	if session.IsLive {
		live = "1"
	}
	return deadline, live
}

func (s *Store) Create(ctx context.Context, session *models.Session) error {
	session.Version = 1
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.SessionID, err)
	}

	deadline, live := indexArgs(session)
	keys := []string{sessionKey(session.SessionID), deadlineIndexKey, liveSessionsKey}
	created, err := s.createScript.Run(ctx, s.client, keys, data, session.SessionID, deadline, live).Int64()
	if err != nil {
		return fmt.Errorf("create session %s: %w", session.SessionID, err)
	}
	if created == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := s.client.HGet(ctx, sessionKey(sessionID), "data").Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *Store) Update(ctx context.Context, session *models.Session, expectedVersion int64) error {
	session.Version = expectedVersion + 1
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.SessionID, err)
	}

	deadline, live := indexArgs(session)
	keys := []string{sessionKey(session.SessionID), deadlineIndexKey, liveSessionsKey}
	result, err := s.updateScript.Run(ctx, s.client, keys, expectedVersion, data, session.SessionID, deadline, live).Int64()
	if err != nil {
		return fmt.Errorf("update session %s: %w", session.SessionID, err)
	}

	switch result {
	case -1:
		return store.ErrNotFound
	case -2:
		return store.ErrVersionConflict
	default:
		return nil
	}
}

func (s *Store) NextDeadline(ctx context.Context) (*store.Deadline, error) {
	entries, err := s.client.ZRangeWithScores(ctx, deadlineIndexKey, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch next deadline: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	sessionID, ok := entries[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected deadline index member %v", entries[0].Member)
	}
	return &store.Deadline{
		SessionID: sessionID,
		EndsAt:    time.UnixMilli(int64(entries[0].Score)),
	}, nil
}

func (s *Store) DueSessions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, deadlineIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch due sessions: %w", err)
	}
	return ids, nil
}

func (s *Store) ListLive(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, liveSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
