package repo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// KEYS[1] access key, KEYS[2] refresh key; ARGV id, access, refresh, created_at_ms
const saveSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
for _, key in ipairs(KEYS) do
  redis.call("HSET", key, "id", ARGV[1], "access_token", ARGV[2], "refresh_token", ARGV[3], "created_at_ms", ARGV[4])
end
return 1
`

// KEYS[1] refresh key; ARGV[1] access key prefix
const deleteSessionScript = `
local access = redis.call("HGET", KEYS[1], "access_token")
if not access then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. access)
return 1
`

// KEYS[1] entry key, KEYS[2] expiry index; ARGV[1] token, ARGV[2] watermark or ""
const addBlacklistScript = `
local exp = ARGV[2]
local cur = redis.call("GET", KEYS[1])
if cur then
  if cur == "" or exp == "" then
    exp = ""
  elseif tonumber(cur) > tonumber(exp) then
    exp = cur
  end
end
redis.call("SET", KEYS[1], exp)
if exp == "" then
  redis.call("ZREM", KEYS[2], ARGV[1])
else
  redis.call("ZADD", KEYS[2], exp, ARGV[1])
end
return 1
`

// KEYS[1] expiry index; ARGV[1] now, ARGV[2] entry key prefix
const sweepBlacklistScript = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, tok in ipairs(due) do
  redis.call("DEL", ARGV[2] .. tok)
end
if #due > 0 then
  redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
end
return #due
`

var (
	saveSessionLua    = redis.NewScript(saveSessionScript)
	deleteSessionLua  = redis.NewScript(deleteSessionScript)
	addBlacklistLua   = redis.NewScript(addBlacklistScript)
	sweepBlacklistLua = redis.NewScript(sweepBlacklistScript)
)

// RedisSessionStore keeps each session as a hash under two keys, one per
// token. Save and delete run as scripts so both keys change together. The
// delete script derives the access key from the stored hash, so the store
// needs a single-node client; Redis Cluster is not supported.
type RedisSessionStore struct {
	redis  *redis.Client
	prefix string
}

func NewRedisSessionStore(rdb *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisSessionStore{redis: rdb, prefix: prefix}
}

func (s *RedisSessionStore) accessPrefix() string  { return s.prefix + ":sess:at:" }
func (s *RedisSessionStore) refreshPrefix() string { return s.prefix + ":sess:rt:" }

func (s *RedisSessionStore) Save(ctx context.Context, sess auth.Session) (*auth.Session, error) {
	keys := []string{s.accessPrefix() + sess.AccessToken, s.refreshPrefix() + sess.RefreshToken}
	ok, err := saveSessionLua.Run(ctx, s.redis, keys,
		sess.ID, sess.AccessToken, sess.RefreshToken, sess.CreatedAt.UnixMilli()).Int64()
	if err != nil {
		return nil, auth.Unavailable("save session", err)
	}
	if ok == 0 {
		return nil, auth.ErrIdentifierCollision
	}
	return &sess, nil
}

func (s *RedisSessionStore) FindByAccessToken(ctx context.Context, token string) (*auth.Session, error) {
	return s.get(ctx, s.accessPrefix()+token)
}

func (s *RedisSessionStore) FindByRefreshToken(ctx context.Context, token string) (*auth.Session, error) {
	return s.get(ctx, s.refreshPrefix()+token)
}

func (s *RedisSessionStore) get(ctx context.Context, key string) (*auth.Session, error) {
	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, auth.Unavailable("find session", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	ms, _ := strconv.ParseInt(fields["created_at_ms"], 10, 64)
	return &auth.Session{
		ID:           fields["id"],
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		CreatedAt:    time.UnixMilli(ms).UTC(),
	}, nil
}

func (s *RedisSessionStore) DeleteByRefreshToken(ctx context.Context, token string) (int64, error) {
	n, err := deleteSessionLua.Run(ctx, s.redis, []string{s.refreshPrefix() + token}, s.accessPrefix()).Int64()
	if err != nil {
		return 0, auth.Unavailable("delete session", err)
	}
	return n, nil
}

// RedisBlacklist stores one key per revoked token (value: watermark or "")
// plus a sorted set of watermarks used by the sweep. The sweep script deletes
// entry keys it reads from the index, so like RedisSessionStore it needs a
// single-node client.
type RedisBlacklist struct {
	redis  *redis.Client
	prefix string
}

func NewRedisBlacklist(rdb *redis.Client, prefix string) *RedisBlacklist {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisBlacklist{redis: rdb, prefix: prefix}
}

func (b *RedisBlacklist) entryPrefix() string { return b.prefix + ":bl:tok:" }
func (b *RedisBlacklist) indexKey() string    { return b.prefix + ":bl:exp" }

func (b *RedisBlacklist) Add(ctx context.Context, token string, expiresAtSec *int64) error {
	exp := ""
	if expiresAtSec != nil {
		exp = strconv.FormatInt(*expiresAtSec, 10)
	}
	keys := []string{b.entryPrefix() + token, b.indexKey()}
	if err := addBlacklistLua.Run(ctx, b.redis, keys, token, exp).Err(); err != nil {
		return auth.Unavailable("blacklist add", err)
	}
	return nil
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.redis.Exists(ctx, b.entryPrefix()+token).Result()
	if err != nil {
		return false, auth.Unavailable("blacklist contains", err)
	}
	return n > 0, nil
}

func (b *RedisBlacklist) SweepExpired(ctx context.Context, nowSec int64) (int64, error) {
	n, err := sweepBlacklistLua.Run(ctx, b.redis, []string{b.indexKey()}, nowSec, b.entryPrefix()).Int64()
	if err != nil {
		return 0, auth.Unavailable("blacklist sweep", err)
	}
	return n, nil
}

func (b *RedisBlacklist) Remove(ctx context.Context, token string) (bool, error) {
	var del *redis.IntCmd
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, b.entryPrefix()+token)
		pipe.ZRem(ctx, b.indexKey(), token)
		return nil
	})
	if err != nil {
		return false, auth.Unavailable("blacklist remove", err)
	}
	return del.Val() > 0, nil
}
