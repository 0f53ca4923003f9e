package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dc2kook/internal/logger"
)

// Mapping 源频道 ID -> 目标频道 ID
//
// 持久化时始终使用文本形式：每行 "源 目标"，便于在外部管理界面中编辑。
// 反序列化同时接受文本形式与 JSON 对象形式。
type Mapping map[string]string

// ParseMapping 解析 "源 目标" 逐行格式
// 空行被忽略；字段数不等于 2 的行记录警告后跳过，不视为错误
func ParseMapping(text string) Mapping {
	result := make(Mapping)

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			logger.L().Warnf("Skipping malformed forward_channels line %d: %q (want \"source dest\")", i+1, line)
			continue
		}

		result[fields[0]] = fields[1]
	}

	return result
}

// String 返回文本形式（按源频道排序，保证输出稳定）
func (m Mapping) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+" "+m[k])
	}
	return strings.Join(lines, "\n")
}

// Clone 返回副本，修改副本不影响原映射
func (m Mapping) Clone() Mapping {
	clone := make(Mapping, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

func (m Mapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mapping) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = make(Mapping)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*m = ParseMapping(text)
		return nil
	}

	// UseNumber 保留大整数频道 ID 的精度
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("forward_channels must be text or object: %w", err)
	}

	result := make(Mapping, len(raw))
	for k, v := range raw {
		source := strings.TrimSpace(k)
		dest := strings.TrimSpace(fmt.Sprint(v))
		if source == "" || dest == "" || v == nil {
			logger.L().Warnf("Skipping empty forward_channels entry: %q -> %v", k, v)
			continue
		}
		result[source] = dest
	}
	*m = result
	return nil
}
