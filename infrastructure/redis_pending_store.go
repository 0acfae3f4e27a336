// infrastructure/redis_pending_store.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

var _ domain.PendingStore = (*RedisPendingStore)(nil)

// Each pending action lives in a hash pending:{sender}:{refKey} with fields
// task_id, seq and data (JSON). pending_idx:{sender} indexes the ref keys and
// pending_seq:{sender} issues registration order.
var putPendingScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[3])
local old = redis.call('HGET', KEYS[1], 'data')
redis.call('HSET', KEYS[1], 'task_id', ARGV[2], 'data', ARGV[3], 'seq', seq)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
redis.call('PEXPIRE', KEYS[3], ARGV[4])
return {seq, old}
`)

var deletePendingScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'task_id') == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisPendingStore keeps records for ttl, which should outlive the
// debounce window so the deferred task can still find its own record.
func NewRedisPendingStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisPendingStore {
	return &RedisPendingStore{client: client, ttl: ttl, logger: logger.Named("RedisPendingStore")}
}

func pendingKey(senderID, refKey string) string {
	return fmt.Sprintf("pending:%s:%s", senderID, refKey)
}

func pendingIndexKey(senderID string) string {
	return fmt.Sprintf("pending_idx:%s", senderID)
}

func pendingSeqKey(senderID string) string {
	return fmt.Sprintf("pending_seq:%s", senderID)
}

func (s *RedisPendingStore) Put(ctx context.Context, action *domain.PendingAction) (*domain.PendingAction, error) {
	data, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal pending action: %w", err)
	}
	refKey := action.Reference.Key()
	keys := []string{pendingKey(action.SenderID, refKey), pendingIndexKey(action.SenderID), pendingSeqKey(action.SenderID)}

	res, err := putPendingScript.Run(ctx, s.client, keys, refKey, action.TaskID, data, s.ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("store pending action: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("store pending action: empty script result")
	}
	seq, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("store pending action: unexpected seq %v", res[0])
	}
	action.Seq = seq

	s.logger.Debug("Pending action stored",
		zap.String("senderID", action.SenderID),
		zap.String("reference", refKey),
		zap.String("taskID", action.TaskID),
		zap.Int64("seq", seq),
	)

	if len(res) < 2 || res[1] == nil {
		return nil, nil
	}
	raw, ok := res[1].(string)
	if !ok {
		return nil, nil
	}
	var replaced domain.PendingAction
	if err := json.Unmarshal([]byte(raw), &replaced); err != nil {
		s.logger.Warn("Replaced pending action is unreadable", zap.String("reference", refKey), zap.Error(err))
		return nil, nil
	}
	return &replaced, nil
}

func (s *RedisPendingStore) Delete(ctx context.Context, senderID string, ref domain.VideoReference, taskID string) (bool, error) {
	refKey := ref.Key()
	keys := []string{pendingKey(senderID, refKey), pendingIndexKey(senderID)}
	n, err := deletePendingScript.Run(ctx, s.client, keys, taskID, refKey).Int()
	if err != nil {
		return false, fmt.Errorf("delete pending action: %w", err)
	}
	return n == 1, nil
}

func (s *RedisPendingStore) ListBySender(ctx context.Context, senderID string) ([]domain.PendingAction, error) {
	indexKey := pendingIndexKey(senderID)
	refKeys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending index: %w", err)
	}
	if len(refKeys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(refKeys))
	for i, refKey := range refKeys {
		cmds[i] = pipe.HGetAll(ctx, pendingKey(senderID, refKey))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load pending actions: %w", err)
	}

	actions := make([]domain.PendingAction, 0, len(refKeys))
	var stale []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, refKeys[i])
			continue
		}
		var action domain.PendingAction
		if err := json.Unmarshal([]byte(fields["data"]), &action); err != nil {
			s.logger.Warn("Skipping unreadable pending action", zap.String("reference", refKeys[i]), zap.Error(err))
			continue
		}
		action.TaskID = fields["task_id"]
		if seq, err := strconv.ParseInt(fields["seq"], 10, 64); err == nil {
			action.Seq = seq
		}
		actions = append(actions, action)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			s.logger.Warn("Failed to prune expired pending references", zap.String("senderID", senderID), zap.Error(err))
		}
	}
	return actions, nil
}
