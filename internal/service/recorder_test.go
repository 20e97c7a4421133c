package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"shorturl-engine/internal/model"
	"shorturl-engine/internal/store"
)

func TestAccessRecorder_SyncBeforeStart(t *testing.T) {
	ctx := context.Background()
	recordStore := store.NewMemory()
	rec, err := recordStore.CreateIfAbsent(ctx, "abc123", "https://example.com/a")
	require.NoError(t, err)

	r := NewAccessRecorder(recordStore, zap.NewNop().Sugar(), 0, 0, 0)
	r.Record(rec.ShortCode)

	got, err := recordStore.Get(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.AccessCount, "未启动时同步执行")
}

func TestAccessRecorder_AsyncAndStop(t *testing.T) {
	ctx := context.Background()
	recordStore := store.NewMemory()
	_, err := recordStore.CreateIfAbsent(ctx, "abc123", "https://example.com/a")
	require.NoError(t, err)

	// 队列很小，迫使部分提交走同步回退
	r := NewAccessRecorder(recordStore, zap.NewNop().Sugar(), 2, 1, time.Second)
	r.Start()
	r.Start()

	const n = 300
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record("abc123")
		}()
	}
	wg.Wait()
	r.Flush()

	got, err := recordStore.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.EqualValues(t, n, got.AccessCount)

	r.Stop()
	r.Stop()
	r.Record("abc123")
	got, err = recordStore.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.EqualValues(t, n+1, got.AccessCount, "停止后同步执行")
}

func TestAccessRecorder_DeletedCodeIgnored(t *testing.T) {
	r := NewAccessRecorder(store.NewMemory(), zap.NewNop().Sugar(), 1, 4, time.Second)
	r.Start()
	defer r.Stop()

	r.Record("gone01")
	r.Flush()
}

// flakyStore 在 failing 置位时让自增失败
type flakyStore struct {
	store.RecordStore
	failing atomic.Bool
}

func (f *flakyStore) IncrementAccess(ctx context.Context, code string) (*model.ShortURL, error) {
	if f.failing.Load() {
		return nil, errors.New("store down")
	}
	return f.RecordStore.IncrementAccess(ctx, code)
}

func TestAccessRecorder_StoreFailureLoggedAndDropped(t *testing.T) {
	ctx := context.Background()
	backing := store.NewMemory()
	_, err := backing.CreateIfAbsent(ctx, "abc123", "https://example.com/a")
	require.NoError(t, err)

	flaky := &flakyStore{RecordStore: backing}
	core, logs := observer.New(zapcore.ErrorLevel)
	r := NewAccessRecorder(flaky, zap.New(core).Sugar(), 1, 4, time.Second)
	r.Start()
	defer r.Stop()

	flaky.failing.Store(true)
	r.Record("abc123")
	r.Flush()

	entries := logs.FilterMessageSnippet("访问计数自增失败").All()
	require.Len(t, entries, 1)
	got, err := backing.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Zero(t, got.AccessCount, "失败的自增不重试")

	flaky.failing.Store(false)
	r.Record("abc123")
	r.Flush()
	got, err = backing.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.AccessCount)
}
