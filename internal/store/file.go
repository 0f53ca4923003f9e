package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"dc2kook/internal/logger"
)

// FileStore 单个 JSON 对象形式的本地配置快照
//
// All 每次都重新读取文件，外部在两次访问之间对文件的修改可以被看到；
// Set 只修改内存中的待写入集合，Save 时合并到磁盘内容并原子替换。
type FileStore struct {
	path string

	mu      sync.Mutex
	pending map[string]any
}

// NewFileStore 创建文件存储；文件不存在时视为空配置
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}

	s := &FileStore{path: path, pending: make(map[string]any)}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (any, error) {
	values, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	value, ok := values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *FileStore) Set(_ context.Context, key string, value any) error {
	v, err := plain(value)
	if err != nil {
		return fmt.Errorf("option %s: %w", key, err)
	}

	s.mu.Lock()
	s.pending[key] = v
	s.mu.Unlock()
	return nil
}

// All 读取磁盘内容并叠加尚未保存的修改
func (s *FileStore) All(_ context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return nil, err
	}
	for k, v := range s.pending {
		values[k] = v
	}
	return values, nil
}

// Save 原子写入：先写同目录临时文件，再 rename 覆盖
func (s *FileStore) Save(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range s.pending {
		values[k] = v
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	logger.L().Debugf("Config snapshot saved: path=%s, keys=%d", s.path, len(values))
	s.pending = make(map[string]any)
	return nil
}

func (s *FileStore) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return make(map[string]any), nil
	}

	values := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", s.path, err)
	}
	if values == nil {
		values = make(map[string]any)
	}
	return values, nil
}
