// Package redisstore keeps clipboard items in Redis.
//
// Layout, under a configurable prefix:
//
//	<prefix>item:<id>   hash {data: item JSON, count: access count, key: share key}
//	<prefix>key:<key>   string holding the id that owns the share key
//	<prefix>items       set of all item ids
//
// Every mutation is a Lua script, so each repository call is one atomic
// step on the server. Scripts derive some keys from ARGV, so the prefix
// always carries a hash tag and every key of a repository lands in one
// Cluster slot. Items carry no Redis TTL: expiry is decided by the
// clipboard store so that attachment blobs are always released with their
// item.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"pin-clipboard/internal/clipboard"
)

// DefaultPrefix namespaces all keys written by the repository.
const DefaultPrefix = "{clip}:"

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], 'data', ARGV[2], 'count', ARGV[3], 'key', ARGV[4])
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

var replaceScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
local old = {}
if prev then
  local pkey = ARGV[5] .. prev
  old = redis.call('HMGET', pkey, 'data', 'count')
  redis.call('DEL', pkey)
  redis.call('SREM', KEYS[3], prev)
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], 'data', ARGV[2], 'count', ARGV[3], 'key', ARGV[4])
redis.call('SADD', KEYS[3], ARGV[1])
return old
`)

var deleteScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'data', 'count', 'key')
if not v[1] then
  return {}
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
local kk = ARGV[2] .. v[3]
if redis.call('GET', kk) == ARGV[1] then
  redis.call('DEL', kk)
end
return {v[1], v[2]}
`)

var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local n = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {redis.call('HGET', KEYS[1], 'data'), n}
`)

var lookupScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then
  return false
end
local v = redis.call('HMGET', ARGV[1] .. id, 'data', 'count')
if not v[1] then
  return false
end
return v
`)

type Repository struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ clipboard.Repository = (*Repository)(nil)

// New returns a repository over rdb. An empty prefix means DefaultPrefix.
// A prefix without a hash tag is wrapped in one, so "app:" becomes
// "{app}:".
func New(rdb redis.UniversalClient, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{rdb: rdb, prefix: tagged(prefix)}
}

func tagged(prefix string) string {
	if i := strings.IndexByte(prefix, '{'); i >= 0 && strings.IndexByte(prefix[i:], '}') > 1 {
		return prefix
	}
	return "{" + strings.TrimSuffix(prefix, ":") + "}:"
}

// hashTag returns the part of key Redis Cluster hashes to pick a slot.
func hashTag(key string) string {
	i := strings.IndexByte(key, '{')
	if i < 0 {
		return key
	}
	j := strings.IndexByte(key[i+1:], '}')
	if j <= 0 {
		return key
	}
	return key[i+1 : i+1+j]
}

// Ping checks the Redis connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Repository) itemKey(id string) string  { return r.prefix + "item:" + id }
func (r *Repository) shareKey(key string) string { return r.prefix + "key:" + key }
func (r *Repository) indexKey() string           { return r.prefix + "items" }

func encode(item clipboard.Item) (string, error) {
	item.AccessCount = 0
	b, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	return string(b), nil
}

// decode builds an item from a [data, count] reply pair.
func decode(data, count any) (clipboard.Item, error) {
	s, ok := data.(string)
	if !ok {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	var it clipboard.Item
	if err := json.Unmarshal([]byte(s), &it); err != nil {
		return clipboard.Item{}, fmt.Errorf("decode item: %w", err)
	}
	n, err := toInt64(count)
	if err != nil {
		return clipboard.Item{}, fmt.Errorf("decode access count of %s: %w", it.ID, err)
	}
	it.AccessCount = n
	return it, nil
}

func toInt64(v any) (int64, error) {
	switch c := v.(type) {
	case int64:
		return c, nil
	case string:
		return strconv.ParseInt(c, 10, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected reply type %T", v)
}

func (r *Repository) Insert(ctx context.Context, item clipboard.Item) error {
	data, err := encode(item)
	if err != nil {
		return err
	}
	ok, err := insertScript.Run(ctx, r.rdb,
		[]string{r.shareKey(item.ShareKey()), r.itemKey(item.ID), r.indexKey()},
		item.ID, data, item.AccessCount, item.ShareKey()).Int64()
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	if ok == 0 {
		return clipboard.ErrDuplicatePin
	}
	return nil
}

func (r *Repository) Replace(ctx context.Context, item clipboard.Item) (*clipboard.Item, error) {
	data, err := encode(item)
	if err != nil {
		return nil, err
	}
	old, err := replaceScript.Run(ctx, r.rdb,
		[]string{r.shareKey(item.ShareKey()), r.itemKey(item.ID), r.indexKey()},
		item.ID, data, item.AccessCount, item.ShareKey(), r.prefix+"item:").Slice()
	if err != nil {
		return nil, fmt.Errorf("replace %s: %w", item.ShareKey(), err)
	}
	if len(old) < 2 || old[0] == nil {
		return nil, nil
	}
	prev, err := decode(old[0], old[1])
	if err != nil {
		return nil, err
	}
	return &prev, nil
}

func (r *Repository) GetByKey(ctx context.Context, key string) (clipboard.Item, error) {
	v, err := lookupScript.Run(ctx, r.rdb, []string{r.shareKey(key)}, r.prefix+"item:").Slice()
	if errors.Is(err, redis.Nil) {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	if err != nil {
		return clipboard.Item{}, fmt.Errorf("lookup %s: %w", key, err)
	}
	return decode(v[0], v[1])
}

func (r *Repository) GetByID(ctx context.Context, id string) (clipboard.Item, error) {
	v, err := r.rdb.HMGet(ctx, r.itemKey(id), "data", "count").Result()
	if err != nil {
		return clipboard.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return decode(v[0], v[1])
}

func (r *Repository) Delete(ctx context.Context, id string) (*clipboard.Item, error) {
	v, err := deleteScript.Run(ctx, r.rdb,
		[]string{r.itemKey(id), r.indexKey()}, id, r.prefix+"key:").Slice()
	if err != nil {
		return nil, fmt.Errorf("delete item %s: %w", id, err)
	}
	if len(v) < 2 {
		return nil, nil
	}
	it, err := decode(v[0], v[1])
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repository) IncrementAccess(ctx context.Context, id string) (clipboard.Item, error) {
	v, err := incrementScript.Run(ctx, r.rdb, []string{r.itemKey(id)}).Slice()
	if errors.Is(err, redis.Nil) {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	if err != nil {
		return clipboard.Item{}, fmt.Errorf("increment %s: %w", id, err)
	}
	return decode(v[0], v[1])
}

// List reads every indexed item in one pipeline. Items deleted between the
// index read and the pipeline are skipped.
func (r *Repository) List(ctx context.Context) ([]clipboard.Item, error) {
	ids, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HMGet(ctx, r.itemKey(id), "data", "count")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items := make([]clipboard.Item, 0, len(ids))
	for _, cmd := range cmds {
		it, err := decode(cmd.Val()[0], cmd.Val()[1])
		if errors.Is(err, clipboard.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
