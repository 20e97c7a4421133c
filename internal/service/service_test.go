package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shorturl-engine/internal/cache"
	"shorturl-engine/internal/model"
	"shorturl-engine/internal/shortcode"
	"shorturl-engine/internal/store"
	"shorturl-engine/pkg/database"
)

func newTestService(t *testing.T, recordStore store.RecordStore, c cache.Cache, recorder *AccessRecorder, opts ...shortcode.GeneratorOption) *Service {
	t.Helper()
	gen, err := shortcode.NewGenerator(opts...)
	require.NoError(t, err)
	logger := zap.NewNop().Sugar()
	return New(Deps{
		Store:     recordStore,
		Allocator: shortcode.NewAllocator(gen, recordStore, logger),
		Cache:     c,
		Recorder:  recorder,
		Logger:    logger,
	})
}

type backend struct {
	name string
	open func(t *testing.T) store.RecordStore
}

// testBackends 内存、SQLite 和 Redis 三种存储
func testBackends() []backend {
	return []backend{
		{name: "memory", open: func(*testing.T) store.RecordStore { return store.NewMemory() }},
		{name: "sqlite", open: func(t *testing.T) store.RecordStore {
			db, err := database.Open(database.Options{Driver: "sqlite", Path: ":memory:"}, zap.NewNop().Sugar())
			require.NoError(t, err)
			t.Cleanup(func() { _ = database.Close(db) })
			s := store.NewGorm(db)
			require.NoError(t, s.AutoMigrate(context.Background()))
			return s
		}},
		{name: "redis", open: func(t *testing.T) store.RecordStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return store.NewRedis(client)
		}},
	}
}

func isAlnumCode(code string) bool {
	for _, r := range code {
		if !strings.ContainsRune(shortcode.Charset, r) {
			return false
		}
	}
	return true
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), nil, nil)

	rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Len(t, rec.ShortCode, shortcode.DefaultLength)
	assert.True(t, isAlnumCode(rec.ShortCode))
	assert.Zero(t, rec.AccessCount)

	for i := 0; i < 3; i++ {
		url, err := svc.Resolve(ctx, rec.ShortCode)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", url)
	}
	stats, err := svc.GetStats(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.AccessCount)

	updated, err := svc.UpdateRecord(ctx, rec.ShortCode, "https://example.com/b")
	require.NoError(t, err)
	assert.EqualValues(t, 3, updated.AccessCount, "更新不重置计数")
	assert.Equal(t, rec.ID, updated.ID)

	url, err := svc.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", url)

	require.NoError(t, svc.DeleteRecord(ctx, rec.ShortCode))
	_, err = svc.Resolve(ctx, rec.ShortCode)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = svc.GetRecord(ctx, rec.ShortCode)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteRecord(ctx, rec.ShortCode), model.ErrNotFound)
}

func TestService_GetRecordDoesNotCount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), nil, nil)

	rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := svc.GetRecord(ctx, rec.ShortCode)
		require.NoError(t, err)
		assert.Zero(t, got.AccessCount)
	}
}

func TestService_InvalidInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), nil, nil)

	for _, url := range []string{"", "not a url", "ftp://example.com/x", "https://", "https://example.com/" + strings.Repeat("a", MaxURLLength)} {
		_, err := svc.CreateShortURL(ctx, url)
		assert.ErrorIs(t, err, model.ErrInvalidInput, "url %q", url)
	}

	rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	_, err = svc.UpdateRecord(ctx, rec.ShortCode, "javascript:alert(1)")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.CreateShortURLWithLength(ctx, "https://example.com/a", 3)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestService_UpdateMissingBeforeURLCheck(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), nil, nil)

	_, err := svc.UpdateRecord(ctx, "nosuch1", "not a url")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NotErrorIs(t, err, model.ErrInvalidInput)
}

func TestService_MalformedCodeIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), nil, nil)

	for _, code := range []string{"", "abc-12", "../etc", strings.Repeat("a", shortcode.MaxLength+1)} {
		_, err := svc.Resolve(ctx, code)
		assert.ErrorIs(t, err, model.ErrNotFound, "code %q", code)
		_, err = svc.GetRecord(ctx, code)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = svc.GetStats(ctx, code)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = svc.UpdateRecord(ctx, code, "https://example.com/b")
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.ErrorIs(t, svc.DeleteRecord(ctx, code), model.ErrNotFound)
	}
}

func TestService_CustomLength(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), nil, nil)

	rec, err := svc.CreateShortURLWithLength(ctx, "https://example.com/a", 10)
	require.NoError(t, err)
	assert.Len(t, rec.ShortCode, 10)

	url, err := svc.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", url)
}

func TestService_ExhaustedKeyspace(t *testing.T) {
	ctx := context.Background()
	// 两字符字母表的 6 位键空间只有 64 个短码，先全部占满
	recordStore := store.NewMemory()
	svc := newTestService(t, recordStore, nil, nil, shortcode.WithAlphabet("ab"))

	for i := 0; i < 64; i++ {
		code := make([]byte, 6)
		for j := range code {
			if i&(1<<j) != 0 {
				code[j] = 'b'
			} else {
				code[j] = 'a'
			}
		}
		_, err := recordStore.CreateIfAbsent(ctx, string(code), "https://example.com/x")
		require.NoError(t, err)
	}

	_, err := svc.CreateShortURL(ctx, "https://example.com/a")
	assert.ErrorIs(t, err, model.ErrExhaustedKeyspace)
}

func TestService_ConcurrentCreateUnique(t *testing.T) {
	for _, b := range testBackends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, b.open(t), nil, nil)

			const n = 200
			codes := make(chan string, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
					if assert.NoError(t, err) {
						codes <- rec.ShortCode
					}
				}()
			}
			wg.Wait()
			close(codes)

			seen := make(map[string]struct{})
			for code := range codes {
				_, dup := seen[code]
				assert.False(t, dup, "重复短码: %s", code)
				seen[code] = struct{}{}
			}
			assert.Len(t, seen, n)

			summary, err := svc.Summary(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, n, summary.TotalLinks)
		})
	}
}

func TestService_ConcurrentResolveCounts(t *testing.T) {
	cases := []struct {
		name  string
		cache func() cache.Cache
		async bool
	}{
		{name: "无缓存", cache: func() cache.Cache { return nil }},
		{name: "本地缓存同步计数", cache: func() cache.Cache { return cache.NewLocal(16, time.Minute) }},
		{name: "本地缓存异步计数", cache: func() cache.Cache { return cache.NewLocal(16, time.Minute) }, async: true},
	}

	for _, b := range testBackends() {
		for _, tc := range cases {
			t.Run(b.name+"/"+tc.name, func(t *testing.T) {
				ctx := context.Background()
				recordStore := b.open(t)

				var recorder *AccessRecorder
				if tc.async {
					recorder = NewAccessRecorder(recordStore, zap.NewNop().Sugar(), 4, 8, time.Second)
					recorder.Start()
					defer recorder.Stop()
				}
				svc := newTestService(t, recordStore, tc.cache(), recorder)

				rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
				require.NoError(t, err)

				const m = 100
				var wg sync.WaitGroup
				for i := 0; i < m; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						url, err := svc.Resolve(ctx, rec.ShortCode)
						assert.NoError(t, err)
						assert.Equal(t, "https://example.com/a", url)
					}()
				}
				wg.Wait()
				if recorder != nil {
					recorder.Flush()
				}

				stats, err := svc.GetStats(ctx, rec.ShortCode)
				require.NoError(t, err)
				assert.EqualValues(t, m, stats.AccessCount)
			})
		}
	}
}

func TestService_LocalCacheCoherence(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLocal(16, time.Minute)
	svc := newTestService(t, store.NewMemory(), c, nil)

	rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)

	url, err := svc.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", url)
	assert.Equal(t, 1, c.Len(), "未命中后应回填缓存")

	_, err = svc.UpdateRecord(ctx, rec.ShortCode, "https://example.com/b")
	require.NoError(t, err)
	url, err = svc.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", url)

	require.NoError(t, svc.DeleteRecord(ctx, rec.ShortCode))
	_, err = svc.Resolve(ctx, rec.ShortCode)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// 两个实例共享存储和 Redis 缓存，模拟多副本部署
func TestService_SharedRedisCacheCoherence(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	recordStore := store.NewMemory()
	a := newTestService(t, recordStore, cache.NewRedis(client, time.Minute), nil)
	b := newTestService(t, recordStore, cache.NewRedis(client, time.Minute), nil)

	rec, err := a.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)

	url, err := b.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", url)

	_, err = a.UpdateRecord(ctx, rec.ShortCode, "https://example.com/b")
	require.NoError(t, err)
	url, err = b.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", url)

	require.NoError(t, a.DeleteRecord(ctx, rec.ShortCode))
	_, err = b.Resolve(ctx, rec.ShortCode)
	assert.ErrorIs(t, err, model.ErrNotFound)

	stats, err := a.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalLinks)
}

// 未经失效的陈旧缓存在同步计数路径上会被存储结果纠正
func TestService_StaleHitCorrected(t *testing.T) {
	ctx := context.Background()
	recordStore := store.NewMemory()
	c := cache.NewLocal(16, time.Minute)
	svc := newTestService(t, recordStore, c, nil)

	rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NoError(t, c.Fill(ctx, rec.ShortCode, "https://example.com/stale", 0))

	url, err := svc.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", url)
	_, ok, _ := c.Get(ctx, rec.ShortCode)
	assert.False(t, ok)

	require.NoError(t, c.Fill(ctx, "zzzzzz", "https://example.com/ghost", 1))
	_, err = svc.Resolve(ctx, "zzzzzz")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

type brokenCache struct {
	cache.Nop
}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}

func (brokenCache) Invalidate(context.Context, string) error {
	return errors.New("cache down")
}

func TestService_CacheFailures(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), brokenCache{}, nil)

	rec, err := svc.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)

	// 读缓存失败时回退到存储
	url, err := svc.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", url)

	_, err = svc.UpdateRecord(ctx, rec.ShortCode, "https://example.com/b")
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	got, err := svc.GetRecord(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", got.OriginalURL, "存储已更新")

	assert.ErrorIs(t, svc.DeleteRecord(ctx, rec.ShortCode), model.ErrStoreUnavailable)
}

func TestService_ListAllAndSummary(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemory(), nil, nil)

	views, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)

	a, err := svc.CreateShortURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	b, err := svc.CreateShortURL(ctx, "https://example.com/b")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := svc.Resolve(ctx, a.ShortCode)
		require.NoError(t, err)
	}
	_, err = svc.Resolve(ctx, b.ShortCode)
	require.NoError(t, err)

	views, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, a.ShortCode, views[0].ShortCode)
	assert.Equal(t, b.ShortCode, views[1].ShortCode)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{TotalLinks: 2, TotalAccesses: 3}, summary)
}
