// Package store 转发选项的键值存储
//
// 转发进程只通过 Store 接口访问配置：Get/Set/Save/All。
// 具体实现有本地 JSON 快照（FileStore）、管理界面共享的 MongoDB（MongoStore）
// 以及两者叠加的 Layered。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound 配置项不存在
var ErrNotFound = errors.New("option not found")

// Store 配置存储
type Store interface {
	Get(ctx context.Context, key string) (any, error)
	// Set 暂存修改，调用 Save 后才持久化
	Set(ctx context.Context, key string, value any) error
	Save(ctx context.Context) error
	All(ctx context.Context) (map[string]any, error)
}

// plain 把值转换为 JSON 可表示的基础类型
// config.Mapping 等自定义类型会被写成其文本形式
func plain(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode option value: %w", err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode option value: %w", err)
	}
	return out, nil
}
