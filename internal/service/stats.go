package service

import (
	"context"
	"fmt"

	"shorturl-engine/internal/model"
	"shorturl-engine/internal/store"
)

// StatsAggregator 只读的统计视图，不触发访问计数
type StatsAggregator struct {
	store store.RecordStore
}

func NewStatsAggregator(recordStore store.RecordStore) *StatsAggregator {
	return &StatsAggregator{store: recordStore}
}

// Summary 全局统计
type Summary struct {
	TotalLinks    int    `json:"totalLinks"`
	TotalAccesses uint64 `json:"totalAccesses"`
}

func (a *StatsAggregator) StatsFor(ctx context.Context, code string) (*model.ShortURL, error) {
	rec, err := a.store.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service.StatsAggregator.StatsFor: %w", err)
	}
	return rec, nil
}

func (a *StatsAggregator) ListAll(ctx context.Context) ([]model.PublicView, error) {
	records, err := a.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.StatsAggregator.ListAll: %w", err)
	}
	views := make([]model.PublicView, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.ToPublicView())
	}
	return views, nil
}

// Summary 基于同一份 ListAll 快照计算
func (a *StatsAggregator) Summary(ctx context.Context) (Summary, error) {
	records, err := a.store.ListAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("service.StatsAggregator.Summary: %w", err)
	}
	s := Summary{TotalLinks: len(records)}
	for _, rec := range records {
		s.TotalAccesses += rec.AccessCount
	}
	return s, nil
}
