package store

import (
	"context"
	"sort"
	"sync"

	"shorturl-engine/internal/model"
)

// Memory 进程内存储，一把互斥锁保证与持久化实现相同的原子性
type Memory struct {
	mu     sync.Mutex
	urls   map[string]*model.ShortURL
	nextID uint64
	opts   options
}

// NewMemory 创建内存存储
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		urls: make(map[string]*model.ShortURL),
		opts: buildOptions(opts),
	}
}

// CreateIfAbsent 检查与插入在同一把锁内完成
func (m *Memory) CreateIfAbsent(ctx context.Context, code, url string) (*model.ShortURL, error) {
	const op = "store.Memory.CreateIfAbsent"
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.urls[code]; exists {
		return nil, unavailable(op, model.ErrConflict)
	}

	m.nextID++
	now := m.opts.now()
	rec := &model.ShortURL{
		ID:          m.nextID,
		ShortCode:   code,
		OriginalURL: url,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.urls[code] = rec
	return rec.Clone(), nil
}

// Get 返回副本，防止调用方绕过锁修改计数
func (m *Memory) Get(ctx context.Context, code string) (*model.ShortURL, error) {
	const op = "store.Memory.Get"
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.urls[code]
	if !exists {
		return nil, unavailable(op, model.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *Memory) UpdateURL(ctx context.Context, code, url string) (*model.ShortURL, error) {
	const op = "store.Memory.UpdateURL"
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.urls[code]
	if !exists {
		return nil, unavailable(op, model.ErrNotFound)
	}
	rec.OriginalURL = url
	rec.UpdatedAt = m.opts.now()
	return rec.Clone(), nil
}

func (m *Memory) IncrementAccess(ctx context.Context, code string) (*model.ShortURL, error) {
	const op = "store.Memory.IncrementAccess"
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.urls[code]
	if !exists {
		return nil, unavailable(op, model.ErrNotFound)
	}
	rec.AccessCount++
	return rec.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, code string) error {
	const op = "store.Memory.Delete"
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.urls[code]; !exists {
		return unavailable(op, model.ErrNotFound)
	}
	delete(m.urls, code)
	return nil
}

func (m *Memory) ListAll(ctx context.Context) ([]*model.ShortURL, error) {
	const op = "store.Memory.ListAll"
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}

	m.mu.Lock()
	records := make([]*model.ShortURL, 0, len(m.urls))
	for _, rec := range m.urls {
		records = append(records, rec.Clone())
	}
	m.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}
