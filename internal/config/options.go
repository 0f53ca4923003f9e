package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dc2kook/internal/logger"

	"github.com/spf13/cast"
)

// Options 转发选项快照
//
// 每次处理入站消息前从配置存储重新读取，处理期间视为不可变
type Options struct {
	Enabled            bool   `json:"enabled"`
	DiscordPlatformID  string `json:"discord_platform_id"`
	KookPlatformID     string `json:"kook_platform_id"`
	ForwardAllChannels bool   `json:"forward_all_channels"`

	// 源频道 -> 目标频道（文本形式 "源 目标" 每行一条）
	ForwardChannels Mapping `json:"forward_channels"`

	// 兜底配对；空字符串视为未设置
	DefaultSourceChannel      string `json:"default_source_channel"`
	DefaultDestinationChannel string `json:"default_destination_channel"`
	// Deprecated: 旧版单频道配置，仅在 default_destination_channel 为空时生效
	DefaultKookChannel string `json:"default_kook_channel,omitempty"`

	IncludeBotMessages bool   `json:"include_bot_messages"`
	MessagePrefix      string `json:"message_prefix"`

	// 临时媒体文件保留时长（小时），0 表示不清理
	ImageCleanupHours int `json:"image_cleanup_hours"`
	VideoCleanupHours int `json:"video_cleanup_hours"`

	TranslationOptions
}

// TranslationOptions 翻译子系统配置
// 只包含可比较字段，翻译管理器用 == 判断是否需要重建
type TranslationOptions struct {
	EnableTranslation   bool   `json:"enable_translation"`
	TranslationProvider string `json:"translation_provider"`
	SourceLanguage      string `json:"source_language"`
	TargetLanguage      string `json:"target_language"`
	TranslateThreshold  int    `json:"translate_threshold"`

	TencentSecretID  string `json:"tencent_secret_id"`
	TencentSecretKey string `json:"tencent_secret_key"`
	TencentRegion    string `json:"tencent_region"`
	BaiduAppID       string `json:"baidu_app_id"`
	BaiduSecretKey   string `json:"baidu_secret_key"`
	GoogleAPIKey     string `json:"google_api_key"`
}

// Reader 可读取全部配置项的存储
type Reader interface {
	All(ctx context.Context) (map[string]any, error)
}

// DefaultOptions 返回默认转发选项
func DefaultOptions() *Options {
	return &Options{
		Enabled:           true,
		ForwardChannels:   make(Mapping),
		MessagePrefix:     "[Discord] ",
		ImageCleanupHours: 24,
		VideoCleanupHours: 6,
		TranslationOptions: TranslationOptions{
			TranslationProvider: "tencent",
			SourceLanguage:      "auto",
			TargetLanguage:      "zh",
			TranslateThreshold:  10,
			TencentRegion:       "ap-beijing",
		},
	}
}

// Decode 将扁平的配置项映射解码为 Options，未出现的字段保持默认值
//
// 逐字段解码：数字、数字字符串、"true"/"false" 字符串会被转换为目标类型；
// 无法转换的值记录警告并保留该字段默认值，不影响其他字段
func Decode(values map[string]any) *Options {
	opts := DefaultOptions()

	for key, value := range values {
		decode, ok := optionDecoders[key]
		if !ok || value == nil {
			continue
		}
		if err := decode(opts, value); err != nil {
			logger.L().Warnf("Ignoring option %s=%v (%T), keeping default: %v", key, value, value, err)
		}
	}

	opts.normalize()
	return opts
}

// Snapshot 从存储读取所有配置项并解码
func Snapshot(ctx context.Context, r Reader) (*Options, error) {
	values, err := r.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read options: %w", err)
	}
	return Decode(values), nil
}

type fieldDecoder func(o *Options, value any) error

var optionDecoders = map[string]fieldDecoder{
	"enabled":                     boolField(func(o *Options) *bool { return &o.Enabled }),
	"discord_platform_id":         stringField(func(o *Options) *string { return &o.DiscordPlatformID }),
	"kook_platform_id":            stringField(func(o *Options) *string { return &o.KookPlatformID }),
	"forward_all_channels":        boolField(func(o *Options) *bool { return &o.ForwardAllChannels }),
	"forward_channels":            decodeMapping,
	"default_source_channel":      stringField(func(o *Options) *string { return &o.DefaultSourceChannel }),
	"default_destination_channel": stringField(func(o *Options) *string { return &o.DefaultDestinationChannel }),
	"default_kook_channel":        stringField(func(o *Options) *string { return &o.DefaultKookChannel }),
	"include_bot_messages":        boolField(func(o *Options) *bool { return &o.IncludeBotMessages }),
	"message_prefix":              stringField(func(o *Options) *string { return &o.MessagePrefix }),
	"image_cleanup_hours":         intField(func(o *Options) *int { return &o.ImageCleanupHours }),
	"video_cleanup_hours":         intField(func(o *Options) *int { return &o.VideoCleanupHours }),

	"enable_translation":   boolField(func(o *Options) *bool { return &o.EnableTranslation }),
	"translation_provider": stringField(func(o *Options) *string { return &o.TranslationProvider }),
	"source_language":      stringField(func(o *Options) *string { return &o.SourceLanguage }),
	"target_language":      stringField(func(o *Options) *string { return &o.TargetLanguage }),
	"translate_threshold":  intField(func(o *Options) *int { return &o.TranslateThreshold }),
	"tencent_secret_id":    stringField(func(o *Options) *string { return &o.TencentSecretID }),
	"tencent_secret_key":   stringField(func(o *Options) *string { return &o.TencentSecretKey }),
	"tencent_region":       stringField(func(o *Options) *string { return &o.TencentRegion }),
	"baidu_app_id":         stringField(func(o *Options) *string { return &o.BaiduAppID }),
	"baidu_secret_key":     stringField(func(o *Options) *string { return &o.BaiduSecretKey }),
	"google_api_key":       stringField(func(o *Options) *string { return &o.GoogleAPIKey }),
}

// json.Number 先转成字符串，cast 对字符串的解析规则最明确
func scalar(value any) any {
	if n, ok := value.(json.Number); ok {
		return n.String()
	}
	return value
}

func boolField(field func(*Options) *bool) fieldDecoder {
	return func(o *Options, value any) error {
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		b, err := cast.ToBoolE(scalar(value))
		if err != nil {
			return err
		}
		*field(o) = b
		return nil
	}
}

func intField(field func(*Options) *int) fieldDecoder {
	return func(o *Options, value any) error {
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		n, err := cast.ToIntE(scalar(value))
		if err != nil {
			return err
		}
		*field(o) = n
		return nil
	}
}

func stringField(field func(*Options) *string) fieldDecoder {
	return func(o *Options, value any) error {
		switch value.(type) {
		case map[string]any, []any:
			return fmt.Errorf("expected text, got %T", value)
		}
		s, err := cast.ToStringE(scalar(value))
		if err != nil {
			return err
		}
		*field(o) = s
		return nil
	}
}

func decodeMapping(o *Options, value any) error {
	if text, ok := value.(string); ok {
		o.ForwardChannels = ParseMapping(text)
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	o.ForwardChannels = m
	return nil
}

func (o *Options) normalize() {
	if o.ForwardChannels == nil {
		o.ForwardChannels = make(Mapping)
	}

	o.DefaultSourceChannel = strings.TrimSpace(o.DefaultSourceChannel)
	o.DefaultDestinationChannel = strings.TrimSpace(o.DefaultDestinationChannel)
	o.DefaultKookChannel = strings.TrimSpace(o.DefaultKookChannel)
	if o.DefaultDestinationChannel == "" {
		o.DefaultDestinationChannel = o.DefaultKookChannel
	}

	if o.ImageCleanupHours < 0 {
		o.ImageCleanupHours = 0
	}
	if o.VideoCleanupHours < 0 {
		o.VideoCleanupHours = 0
	}

	t := &o.TranslationOptions
	t.TranslationProvider = strings.ToLower(strings.TrimSpace(t.TranslationProvider))
	t.SourceLanguage = strings.TrimSpace(t.SourceLanguage)
	t.TargetLanguage = strings.TrimSpace(t.TargetLanguage)
	if t.SourceLanguage == "" {
		t.SourceLanguage = "auto"
	}
	if t.TargetLanguage == "" {
		t.TargetLanguage = "zh"
	}
	if t.TranslateThreshold < 0 {
		t.TranslateThreshold = 0
	}
}
