// Package cache provides the index cache tiers of the variable graph: a
// Redis backed index store shared by every replica and an in-process otter
// L1 that can front any index repository.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/validation"
	"github.com/rafaeljc/tally/internal/variable"
)

// Compile-time check to verify that RedisIndexStore implements IndexRepository.
var _ store.IndexRepository = (*RedisIndexStore)(nil)

const (
	valueFieldPrefix = "v:"
	idFieldPrefix    = "id:"
)

// RedisIndexStore keeps the indices of each variable in one hash:
//
//	<prefix>:index:<variable id>   v:<scope> = value JSON, id:<scope> = index id
//
// A set at <prefix>:index:variables tracks which hashes exist so that every
// index can be dropped without SCAN.
type RedisIndexStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisIndexStore creates an index store over client. The client is owned
// by the caller.
func NewRedisIndexStore(client redis.UniversalClient, prefix string) *RedisIndexStore {
	validation.AssertPresent(client, "redis client")
	if prefix == "" {
		prefix = "tally"
	}
	return &RedisIndexStore{client: client, prefix: prefix}
}

func (s *RedisIndexStore) hashKey(variableID string) string {
	return fmt.Sprintf("%s:index:%s", s.prefix, variableID)
}

func (s *RedisIndexStore) registryKey() string {
	return s.prefix + ":index:variables"
}

func (s *RedisIndexStore) IndicesByVariableID(ctx context.Context, variableID string) ([]variable.Index, error) {
	fields, err := s.client.HGetAll(ctx, s.hashKey(variableID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read indices of variable %s: %w", variableID, err)
	}

	indices := []variable.Index{}
	for field, raw := range fields {
		scope, ok := strings.CutPrefix(field, valueFieldPrefix)
		if !ok {
			continue
		}
		val, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode index %s/%s: %w", variableID, scope, err)
		}
		indices = append(indices, variable.Index{
			ID:         fields[idFieldPrefix+scope],
			VariableID: variableID,
			TimeScope:  scope,
			Value:      val,
		})
	}

	slices.SortFunc(indices, func(a, b variable.Index) int { return strings.Compare(a.TimeScope, b.TimeScope) })
	return indices, nil
}

func (s *RedisIndexStore) IndexByVariableAndScope(ctx context.Context, variableID, scope string) (*variable.Index, error) {
	vals, err := s.client.HMGet(ctx, s.hashKey(variableID), idFieldPrefix+scope, valueFieldPrefix+scope).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index %s/%s: %w", variableID, scope, err)
	}

	raw, ok := vals[1].(string)
	if !ok {
		return nil, nil
	}
	val, err := decodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode index %s/%s: %w", variableID, scope, err)
	}

	id, _ := vals[0].(string)
	return &variable.Index{ID: id, VariableID: variableID, TimeScope: scope, Value: val}, nil
}

// SaveIndex upserts the value; HSETNX keeps the id of an existing index.
func (s *RedisIndexStore) SaveIndex(ctx context.Context, idx variable.Index) error {
	data, err := primitive.Marshal(idx.Value)
	if err != nil {
		return fmt.Errorf("failed to encode index value: %w", err)
	}

	key := s.hashKey(idx.VariableID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, idFieldPrefix+idx.TimeScope, idx.ID)
		pipe.HSet(ctx, key, valueFieldPrefix+idx.TimeScope, string(data))
		pipe.SAdd(ctx, s.registryKey(), idx.VariableID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save index %s/%s: %w", idx.VariableID, idx.TimeScope, err)
	}
	return nil
}

func (s *RedisIndexStore) DeleteIndex(ctx context.Context, idx variable.Index) error {
	err := s.client.HDel(ctx, s.hashKey(idx.VariableID), idFieldPrefix+idx.TimeScope, valueFieldPrefix+idx.TimeScope).Err()
	if err != nil {
		return fmt.Errorf("failed to delete index %s/%s: %w", idx.VariableID, idx.TimeScope, err)
	}
	return nil
}

func (s *RedisIndexStore) DeleteIndicesByVariableID(ctx context.Context, variableID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.hashKey(variableID))
		pipe.SRem(ctx, s.registryKey(), variableID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete indices of variable %s: %w", variableID, err)
	}
	return nil
}

func (s *RedisIndexStore) DeleteAllIndices(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list indexed variables: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.hashKey(id))
	}
	keys = append(keys, s.registryKey())

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete indices: %w", err)
	}
	return nil
}

func decodeValue(raw string) (primitive.Value, error) {
	v, err := primitive.Unmarshal([]byte(raw))
	if err != nil {
		return nil, err
	}
	return primitive.OrNull(v), nil
}
