// Package redisrepo stores refresh token records in Redis. Each record is a
// hash keyed by the token fingerprint, with a per-user index set. Insert,
// rotate and revoke run as Lua scripts so each is one atomic server step.
package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/token/refresh"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "lb"

const (
	rotateStatusStale     int64 = 0
	rotateStatusRotated   int64 = 1
	rotateStatusDuplicate int64 = 2
)

const insertScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "user_id", ARGV[2], "created_at", ARGV[3], "expires_at", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`

var insertLua = redis.NewScript(insertScript)

const rotateScript = `
local owner = redis.call("HGET", KEYS[1], "user_id")
if not owner or owner ~= ARGV[3] then
  return 0
end
local expires_at = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if not expires_at or expires_at <= tonumber(ARGV[4]) then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[3], ARGV[1])
redis.call("HSET", KEYS[2], "user_id", ARGV[3], "created_at", ARGV[5], "expires_at", ARGV[6])
redis.call("PEXPIRE", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[3], ARGV[2])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

const deleteScript = `
local owner = redis.call("HGET", KEYS[1], "user_id")
if not owner then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. owner, ARGV[1])
return 1
`

var deleteLua = redis.NewScript(deleteScript)

// Token keys are derived from the index members, so this script is not
// cluster safe. The broker runs against a single Redis node.
const deleteByUserScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, fp in ipairs(members) do
  removed = removed + redis.call("DEL", ARGV[1] .. fp)
end
redis.call("DEL", KEYS[1])
return removed
`

var deleteByUserLua = redis.NewScript(deleteByUserScript)

var _ refresh.Repo = (*Repo)(nil)

// Repo is a Redis-backed refresh.Repo.
type Repo struct {
	client redis.UniversalClient
	prefix string
}

type Option func(*Repo)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(r *Repo) {
		r.prefix = prefix
	}
}

func NewRepo(client redis.UniversalClient, options ...Option) *Repo {
	r := &Repo{client: client, prefix: defaultPrefix}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Repo) tokenPrefix() string { return r.prefix + ":rt:" }

func (r *Repo) userPrefix() string { return r.prefix + ":rtu:" }

func (r *Repo) tokenKey(fingerprint string) string { return r.tokenPrefix() + fingerprint }

func (r *Repo) userKey(userID string) string { return r.userPrefix() + userID }

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func ttlMillis(record *refresh.Record) int64 {
	return max(record.ExpiresAt.Sub(record.CreatedAt).Milliseconds(), 1)
}

func (r *Repo) Insert(ctx context.Context, record *refresh.Record) error {
	fp := refresh.Fingerprint(record.Token)
	inserted, err := insertLua.Run(ctx, r.client,
		[]string{r.tokenKey(fp), r.userKey(record.UserID)},
		fp, record.UserID, millis(record.CreatedAt), millis(record.ExpiresAt), ttlMillis(record),
	).Int64()
	if err != nil {
		return fmt.Errorf("redisrepo.Insert: %w", err)
	}
	if inserted == 0 {
		return errs.ErrDuplicateToken
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, token string) (*refresh.Record, error) {
	fields, err := r.client.HGetAll(ctx, r.tokenKey(refresh.Fingerprint(token))).Result()
	if err != nil {
		return nil, fmt.Errorf("redisrepo.Get: %w", err)
	}
	if len(fields) == 0 {
		return nil, errs.ErrNotFound
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redisrepo.Get: bad created_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redisrepo.Get: bad expires_at: %w", err)
	}
	return &refresh.Record{
		Token:     token,
		UserID:    fields["user_id"],
		CreatedAt: time.UnixMilli(createdAt),
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}

func (r *Repo) Delete(ctx context.Context, token string) error {
	fp := refresh.Fingerprint(token)
	if err := deleteLua.Run(ctx, r.client, []string{r.tokenKey(fp)}, fp, r.userPrefix()).Err(); err != nil {
		return fmt.Errorf("redisrepo.Delete: %w", err)
	}
	return nil
}

func (r *Repo) Rotate(ctx context.Context, old string, next *refresh.Record, now time.Time) error {
	oldFp := refresh.Fingerprint(old)
	nextFp := refresh.Fingerprint(next.Token)
	status, err := rotateLua.Run(ctx, r.client,
		[]string{r.tokenKey(oldFp), r.tokenKey(nextFp), r.userKey(next.UserID)},
		oldFp, nextFp, next.UserID, millis(now), millis(next.CreatedAt), millis(next.ExpiresAt), ttlMillis(next),
	).Int64()
	if err != nil {
		return fmt.Errorf("redisrepo.Rotate: %w", err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusDuplicate:
		return errs.ErrDuplicateToken
	case rotateStatusStale:
		return errs.ErrStaleToken
	default:
		return fmt.Errorf("redisrepo.Rotate: unexpected status %d", status)
	}
}

func (r *Repo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	removed, err := deleteByUserLua.Run(ctx, r.client, []string{r.userKey(userID)}, r.tokenPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("redisrepo.DeleteByUser: %w", err)
	}
	return removed, nil
}

// DeleteExpired removes records expired at now and prunes index members
// whose record Redis has already expired.
func (r *Repo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	nowMillis := now.UnixMilli()

	iter := r.client.Scan(ctx, 0, r.tokenPrefix()+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.HGet(ctx, key, "expires_at").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("redisrepo.DeleteExpired: %w", err)
		}
		expiresAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || expiresAt > nowMillis {
			continue
		}
		fp := key[len(r.tokenPrefix()):]
		deleted, err := deleteLua.Run(ctx, r.client, []string{key}, fp, r.userPrefix()).Int()
		if err != nil {
			return removed, fmt.Errorf("redisrepo.DeleteExpired: %w", err)
		}
		removed += deleted
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redisrepo.DeleteExpired: %w", err)
	}

	if err := r.pruneUserIndexes(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

func (r *Repo) pruneUserIndexes(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.userPrefix()+"*", 200).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		members, err := r.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return fmt.Errorf("redisrepo.pruneUserIndexes: %w", err)
		}
		for _, fp := range members {
			exists, err := r.client.Exists(ctx, r.tokenKey(fp)).Result()
			if err != nil {
				return fmt.Errorf("redisrepo.pruneUserIndexes: %w", err)
			}
			if exists == 0 {
				if err := r.client.SRem(ctx, userKey, fp).Err(); err != nil {
					return fmt.Errorf("redisrepo.pruneUserIndexes: %w", err)
				}
			}
		}
	}
	return iter.Err()
}

// Ping reports whether Redis is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
