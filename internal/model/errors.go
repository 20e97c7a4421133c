package model

import "errors"

var (
	// ErrNotFound 短码没有对应的有效记录
	ErrNotFound = errors.New("short url not found")
	// ErrConflict 短码已被其他有效记录占用，仅在分配重试内部使用
	ErrConflict = errors.New("short code already exists")
	// ErrExhaustedKeyspace 分配重试次数耗尽，需要调大短码长度
	ErrExhaustedKeyspace = errors.New("short code keyspace exhausted")
	// ErrInvalidInput URL 或短码长度不合法
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable 存储暂时不可用，调用方可以退避重试
	ErrStoreUnavailable = errors.New("store unavailable")
)
