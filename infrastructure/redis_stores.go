// infrastructure/redis_stores.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claims are hashes claim:{key} with fields owner and done. A redirect may
// take over an unfinished claim whose owner is marked revoked.
var claimScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'owner')
if not owner then
  redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'done', '0')
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
local done = redis.call('HGET', KEYS[1], 'done')
if done == '1' then
  return 0
end
if owner == ARGV[1] then
  return 1
end
if ARGV[3] == '1' and redis.call('EXISTS', ARGV[4] .. owner) == 1 then
  redis.call('HSET', KEYS[1], 'owner', ARGV[1])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var finishClaimScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'owner') == ARGV[1] then
  redis.call('HSET', KEYS[1], 'done', '1')
  return 1
end
return 0
`)

type RedisClaimStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaimStore(client *redis.Client, ttl time.Duration) *RedisClaimStore {
	return &RedisClaimStore{client: client, ttl: ttl}
}

func claimKey(key string) string {
	return "claim:" + key
}

func (s *RedisClaimStore) Claim(ctx context.Context, key, owner string, takeover bool) (bool, error) {
	flag := "0"
	if takeover {
		flag = "1"
	}
	n, err := claimScript.Run(ctx, s.client, []string{claimKey(key)}, owner, s.ttl.Milliseconds(), flag, revokedKey("")).Int()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *RedisClaimStore) Finish(ctx context.Context, key, owner string) (bool, error) {
	n, err := finishClaimScript.Run(ctx, s.client, []string{claimKey(key)}, owner).Int()
	if err != nil {
		return false, fmt.Errorf("finish claim %s: %w", key, err)
	}
	return n == 1, nil
}

// RedisRevocationStore remembers revoked task ids until their delay queue
// could no longer deliver them.
type RedisRevocationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRevocationStore(client *redis.Client, ttl time.Duration) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, ttl: ttl}
}

func revokedKey(taskID string) string {
	return "revoked:" + taskID
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, taskID string) error {
	if err := s.client.Set(ctx, revokedKey(taskID), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("mark task %s revoked: %w", taskID, err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, taskID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(taskID)).Result()
	if err != nil {
		return false, fmt.Errorf("check task %s revoked: %w", taskID, err)
	}
	return n > 0, nil
}

const accessTokenKey = "graph:access_token"

// RedisTokenStore caches the refreshed platform access token. Get falls
// back to the configured token when nothing was refreshed yet.
type RedisTokenStore struct {
	client   *redis.Client
	fallback string
}

func NewRedisTokenStore(client *redis.Client, fallback string) *RedisTokenStore {
	return &RedisTokenStore{client: client, fallback: fallback}
}

func (s *RedisTokenStore) Token(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, accessTokenKey).Result()
	if errors.Is(err, redis.Nil) || (err == nil && token == "") {
		return s.fallback, nil
	}
	if err != nil {
		return s.fallback, fmt.Errorf("read access token: %w", err)
	}
	return token, nil
}

func (s *RedisTokenStore) SetToken(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, accessTokenKey, token, ttl).Err(); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}
