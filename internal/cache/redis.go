package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "shortlink:"
	genPrefix = "shortlink:gen:"
	// 令牌键的存活时间，过期后视为 0，只会让回填更保守
	genTTL = 24 * time.Hour
)

// KEYS: url 键, 令牌键  ARGV: 令牌, url, ttl 毫秒
var fillScript = redis.NewScript(`
local g = redis.call('GET', KEYS[2])
if not g then
	g = '0'
end
if g ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func urlKey(code string) string {
	return keyPrefix + "{" + code + "}"
}

// 与 urlKey 共享 hash tag，集群模式下脚本的两个键落在同一个槽
func genKey(code string) string {
	return genPrefix + "{" + code + "}"
}

// Redis 多实例共享的缓存，令牌按短码维护
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis 创建 Redis 缓存，ttl 非正时使用默认值
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, code string) (string, bool, error) {
	url, err := r.client.Get(ctx, urlKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取缓存失败: %w", err)
	}
	return url, true, nil
}

func (r *Redis) Generation(ctx context.Context, code string) (uint64, error) {
	raw, err := r.client.Get(ctx, genKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取缓存令牌失败: %w", err)
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析缓存令牌失败: %w", err)
	}
	return gen, nil
}

func (r *Redis) Fill(ctx context.Context, code, url string, gen uint64) error {
	err := fillScript.Run(ctx, r.client,
		[]string{urlKey(code), genKey(code)},
		strconv.FormatUint(gen, 10), url, r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	return nil
}

// Invalidate 删除条目并递增令牌，两步在同一个事务里执行
func (r *Redis) Invalidate(ctx context.Context, code string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, urlKey(code))
		pipe.Incr(ctx, genKey(code))
		pipe.Expire(ctx, genKey(code), genTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("删除缓存失败: %w", err)
	}
	return nil
}
