package store

import (
	"context"
	"errors"

	"dc2kook/internal/logger"
)

// Layered 本地快照叠加外部存储
//
// 读取时外部存储中的值覆盖本地快照；写入同时落到两侧。
// 外部存储不可用时退化为只读本地快照并记录警告。
type Layered struct {
	base     Store
	external Store
}

// NewLayered 创建叠加存储；external 为 nil 时等价于 base
func NewLayered(base, external Store) *Layered {
	return &Layered{base: base, external: external}
}

func (l *Layered) Get(ctx context.Context, key string) (any, error) {
	if l.external != nil {
		value, err := l.external.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			logger.L().Warnf("External option store get %s failed, using local snapshot: %v", key, err)
		}
	}
	return l.base.Get(ctx, key)
}

func (l *Layered) Set(ctx context.Context, key string, value any) error {
	if err := l.base.Set(ctx, key, value); err != nil {
		return err
	}
	if l.external != nil {
		return l.external.Set(ctx, key, value)
	}
	return nil
}

// Save 两侧都尝试保存，错误合并返回
func (l *Layered) Save(ctx context.Context) error {
	var errs []error
	if err := l.base.Save(ctx); err != nil {
		errs = append(errs, err)
	}
	if l.external != nil {
		if err := l.external.Save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Layered) All(ctx context.Context) (map[string]any, error) {
	values, err := l.base.All(ctx)
	if err != nil {
		return nil, err
	}
	if l.external == nil {
		return values, nil
	}

	overlay, err := l.external.All(ctx)
	if err != nil {
		logger.L().Warnf("External option store unavailable, using local snapshot: %v", err)
		return values, nil
	}
	for k, v := range overlay {
		values[k] = v
	}
	return values, nil
}
