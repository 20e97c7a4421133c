package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"shorturl-engine/internal/model"
)

// 所有键共享同一个 hash tag，集群模式下脚本涉及的键落在同一个槽
const (
	redisKeyPrefix = "{shorturl}:"
	redisSeqKey    = redisKeyPrefix + "seq"
	redisIndexKey  = redisKeyPrefix + "index"
)

var (
	// KEYS: 记录, 序列, 索引  ARGV: code, url, now
	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return false
end
local id = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'id', id, 'code', ARGV[1], 'url', ARGV[2],
	'created_at', ARGV[3], 'updated_at', ARGV[3], 'access_count', 0)
redis.call('ZADD', KEYS[3], id, ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

	// KEYS: 记录  ARGV: url, now
	updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HSET', KEYS[1], 'url', ARGV[1], 'updated_at', ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

	// KEYS: 记录
	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'access_count', 1)
return redis.call('HGETALL', KEYS[1])
`)

	// KEYS: 记录, 索引  ARGV: code
	deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
	return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)
)

// Redis 以 Hash 保存记录，有序集合按 ID 维护索引
// 每个写操作都是一段 Lua 脚本，在 Redis 内部原子执行
type Redis struct {
	client redis.UniversalClient
	opts   options
}

// NewRedis 创建 Redis 存储
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	return &Redis{client: client, opts: buildOptions(opts)}
}

func recordKey(code string) string {
	return redisKeyPrefix + "rec:" + code
}

func (r *Redis) CreateIfAbsent(ctx context.Context, code, url string) (*model.ShortURL, error) {
	const op = "store.Redis.CreateIfAbsent"
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	now := strconv.FormatInt(r.opts.now().UnixNano(), 10)
	reply, err := createScript.Run(ctx, r.client,
		[]string{recordKey(code), redisSeqKey, redisIndexKey}, code, url, now).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, unavailable(op, model.ErrConflict)
		}
		return nil, unavailable(op, err)
	}
	rec, err := recordFromReply(reply)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return rec, nil
}

func (r *Redis) Get(ctx context.Context, code string) (*model.ShortURL, error) {
	const op = "store.Redis.Get"
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, recordKey(code)).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if len(fields) == 0 {
		return nil, unavailable(op, model.ErrNotFound)
	}
	rec, err := recordFromHash(fields)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return rec, nil
}

func (r *Redis) UpdateURL(ctx context.Context, code, url string) (*model.ShortURL, error) {
	const op = "store.Redis.UpdateURL"
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	now := strconv.FormatInt(r.opts.now().UnixNano(), 10)
	reply, err := updateScript.Run(ctx, r.client, []string{recordKey(code)}, url, now).Result()
	return r.scriptRecord(op, reply, err)
}

func (r *Redis) IncrementAccess(ctx context.Context, code string) (*model.ShortURL, error) {
	const op = "store.Redis.IncrementAccess"
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	reply, err := incrementScript.Run(ctx, r.client, []string{recordKey(code)}).Result()
	return r.scriptRecord(op, reply, err)
}

func (r *Redis) Delete(ctx context.Context, code string) error {
	const op = "store.Redis.Delete"
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	deleted, err := deleteScript.Run(ctx, r.client, []string{recordKey(code), redisIndexKey}, code).Int64()
	if err != nil {
		return unavailable(op, err)
	}
	if deleted == 0 {
		return unavailable(op, model.ErrNotFound)
	}
	return nil
}

// ListAll 先取索引再批量读取，期间被删除的记录直接跳过
func (r *Redis) ListAll(ctx context.Context) ([]*model.ShortURL, error) {
	const op = "store.Redis.ListAll"
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	codes, err := r.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if len(codes) == 0 {
		return []*model.ShortURL{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(codes))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, code := range codes {
			cmds[i] = pipe.HGetAll(ctx, recordKey(code))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(op, err)
	}

	records := make([]*model.ShortURL, 0, len(codes))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := recordFromHash(fields)
		if err != nil {
			return nil, unavailable(op, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Redis) scriptRecord(op string, reply any, err error) (*model.ShortURL, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, unavailable(op, model.ErrNotFound)
		}
		return nil, unavailable(op, err)
	}
	rec, err := recordFromReply(reply)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return rec, nil
}

// recordFromReply 解析脚本返回的 HGETALL 扁平数组
func recordFromReply(reply any) (*model.ShortURL, error) {
	items, ok := reply.([]any)
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("意外的脚本返回值: %T", reply)
	}
	fields := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, _ := items[i].(string)
		v, _ := items[i+1].(string)
		fields[k] = v
	}
	return recordFromHash(fields)
}

func recordFromHash(fields map[string]string) (*model.ShortURL, error) {
	id, err := strconv.ParseUint(fields["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("解析 id 失败: %w", err)
	}
	count, err := strconv.ParseUint(fields["access_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("解析 access_count 失败: %w", err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("解析 created_at 失败: %w", err)
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("解析 updated_at 失败: %w", err)
	}
	return &model.ShortURL{
		ID:          id,
		ShortCode:   fields["code"],
		OriginalURL: fields["url"],
		AccessCount: count,
		CreatedAt:   time.Unix(0, created),
		UpdatedAt:   time.Unix(0, updated),
	}, nil
}
