// Package command 管理员文本命令 /discord_kook_config
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"dc2kook/internal/config"
	"dc2kook/internal/logger"
	"dc2kook/internal/store"
)

// RejectMessage 非管理员调用时的固定回复
const RejectMessage = "只有管理员可以配置转发设置"

// Binding 两端平台的 Bot 身份
type Binding struct {
	DiscordID string
	KookID    string
}

// Platforms 重新检测平台绑定
type Platforms interface {
	Refresh(ctx context.Context) (Binding, error)
}

// Cleaner 立即清理临时媒体文件
type Cleaner interface {
	CleanupAll(imageHours, videoHours int) (int, error)
}

// Handler 命令处理器；每次修改都是 Set + Save
type Handler struct {
	name      string
	store     store.Store
	platforms Platforms
	cleaner   Cleaner
}

// NewHandler 创建命令处理器，name 不带前导斜杠
func NewHandler(name string, s store.Store, platforms Platforms, cleaner Cleaner) *Handler {
	return &Handler{
		name:      strings.TrimPrefix(name, "/"),
		store:     s,
		platforms: platforms,
		cleaner:   cleaner,
	}
}

// Name 命令名
func (h *Handler) Name() string { return h.name }

// Matches 文本是否为本命令（"/name" 或 "/name ..."）
func (h *Handler) Matches(content string) bool {
	fields := strings.Fields(content)
	return len(fields) > 0 && fields[0] == "/"+h.name
}

// Handle 执行命令并返回回复文本
func (h *Handler) Handle(ctx context.Context, content string, isAdmin bool) string {
	if !isAdmin {
		return RejectMessage
	}

	fields := strings.Fields(content)
	var args []string
	if len(fields) > 1 {
		args = fields[1:]
	}

	opts, err := config.Snapshot(ctx, h.store)
	if err != nil {
		logger.L().Errorf("Command %s: failed to read options: %v", h.name, err)
		return fmt.Sprintf("❌ 读取配置失败: %v", err)
	}

	if len(args) == 0 {
		return h.status(opts)
	}

	reply, err := h.dispatch(ctx, strings.ToLower(args[0]), args[1:], opts)
	if err != nil {
		logger.L().Errorf("Command %s %s failed: %v", h.name, args[0], err)
		return fmt.Sprintf("❌ 保存配置失败: %v", err)
	}
	return reply
}

func (h *Handler) dispatch(ctx context.Context, sub string, args []string, opts *config.Options) (string, error) {
	switch {
	case sub == "enable":
		return "Discord到Kook转发已启用", h.update(ctx, map[string]any{"enabled": true})

	case sub == "disable":
		return "Discord到Kook转发已禁用", h.update(ctx, map[string]any{"enabled": false})

	case sub == "set_kook_platform" && len(args) > 0:
		return fmt.Sprintf("✅ 已手动设置Kook平台: %s", args[0]), h.update(ctx, map[string]any{"kook_platform_id": args[0]})

	case sub == "refresh_platforms":
		return h.refreshPlatforms(ctx)

	case sub == "set_default_channel" && len(args) > 0:
		return fmt.Sprintf("默认Kook频道已设置为: %s", args[0]), h.update(ctx, map[string]any{"default_destination_channel": args[0]})

	case sub == "set_default_source" && len(args) > 0:
		return fmt.Sprintf("默认Discord源频道已设置为: %s", args[0]), h.update(ctx, map[string]any{"default_source_channel": args[0]})

	case sub == "add_mapping" && len(args) > 1:
		mapping := opts.ForwardChannels.Clone()
		mapping[args[0]] = args[1]
		return fmt.Sprintf("已添加频道映射: %s -> %s", args[0], args[1]), h.update(ctx, map[string]any{"forward_channels": mapping})

	case sub == "remove_mapping" && len(args) > 0:
		if _, ok := opts.ForwardChannels[args[0]]; !ok {
			return fmt.Sprintf("未找到频道映射: %s", args[0]), nil
		}
		mapping := opts.ForwardChannels.Clone()
		delete(mapping, args[0])
		return fmt.Sprintf("已移除频道映射: %s", args[0]), h.update(ctx, map[string]any{"forward_channels": mapping})

	case sub == "toggle_all_channels":
		next := !opts.ForwardAllChannels
		return fmt.Sprintf("转发所有频道已%s", onOff(next)), h.update(ctx, map[string]any{"forward_all_channels": next})

	case sub == "quick_test" && len(args) > 0:
		err := h.update(ctx, map[string]any{
			"enabled":                     true,
			"forward_all_channels":        true,
			"default_source_channel":      "",
			"default_destination_channel": args[0],
			"include_bot_messages":        false,
		})
		return fmt.Sprintf("🚀 快速测试配置已启用！\n- 转发功能：已启用\n- 转发所有频道：已启用\n- 默认Kook频道：%s\n- 包含机器人消息：已禁用\n\n现在可以在Discord发送消息进行测试！", args[0]), err

	case sub == "cleanup":
		return h.cleanup(opts), nil

	case sub == "set_cleanup" && len(args) > 1:
		return h.setCleanup(ctx, args[0], args[1])

	default:
		return fmt.Sprintf("无效的配置命令，请使用 /%s 查看帮助", h.name), nil
	}
}

func (h *Handler) refreshPlatforms(ctx context.Context) (string, error) {
	if h.platforms == nil {
		return "❌ 平台检测不可用", nil
	}

	binding, err := h.platforms.Refresh(ctx)
	if err != nil {
		logger.L().Warnf("Platform refresh failed: %v", err)
		return fmt.Sprintf("❌ 平台检测完成，但仍未找到Kook平台: %v", err), nil
	}

	values := map[string]any{"kook_platform_id": binding.KookID}
	if binding.DiscordID != "" {
		values["discord_platform_id"] = binding.DiscordID
	}
	return fmt.Sprintf("✅ 平台检测完成，已找到Kook平台: %s", binding.KookID), h.update(ctx, values)
}

func (h *Handler) cleanup(opts *config.Options) string {
	if h.cleaner == nil {
		return "❌ 媒体清理不可用"
	}
	if opts.ImageCleanupHours == 0 && opts.VideoCleanupHours == 0 {
		return "图片与视频清理均已禁用（时长为 0）"
	}

	n, err := h.cleaner.CleanupAll(opts.ImageCleanupHours, opts.VideoCleanupHours)
	if err != nil {
		logger.L().Warnf("Manual media cleanup finished with errors: %v", err)
		return fmt.Sprintf("⚠️ 已清理 %d 个临时媒体文件，部分文件删除失败: %v", n, err)
	}
	return fmt.Sprintf("🧹 已清理 %d 个临时媒体文件", n)
}

func (h *Handler) setCleanup(ctx context.Context, class, value string) (string, error) {
	hours, err := strconv.Atoi(value)
	if err != nil || hours < 0 {
		return fmt.Sprintf("无效的小时数: %s（必须是非负整数，0 表示不清理）", value), nil
	}

	var key, label string
	switch strings.ToLower(class) {
	case "image":
		key, label = "image_cleanup_hours", "图片"
	case "video":
		key, label = "video_cleanup_hours", "视频"
	default:
		return fmt.Sprintf("无效的媒体类型: %s（可选 image / video）", class), nil
	}

	return fmt.Sprintf("%s清理时长已设置为: %d 小时", label, hours), h.update(ctx, map[string]any{key: hours})
}

func (h *Handler) update(ctx context.Context, values map[string]any) error {
	for k, v := range values {
		if err := h.store.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return h.store.Save(ctx)
}

func (h *Handler) status(opts *config.Options) string {
	kook := "❌ 未绑定"
	if opts.KookPlatformID != "" {
		kook = "✅ 已绑定"
	}

	translation := "已禁用"
	if opts.EnableTranslation {
		translation = fmt.Sprintf("%s (%s -> %s, 阈值 %d)", opts.TranslationProvider, opts.SourceLanguage, opts.TargetLanguage, opts.TranslateThreshold)
	}

	mapping := opts.ForwardChannels.String()
	if mapping == "" {
		mapping = "（无）"
	}

	var b strings.Builder
	b.WriteString("Discord到Kook转发配置:\n")
	fmt.Fprintf(&b, "启用状态: %v\n", opts.Enabled)
	fmt.Fprintf(&b, "Discord平台ID: %s\n", opts.DiscordPlatformID)
	fmt.Fprintf(&b, "Kook平台ID: %s\n", opts.KookPlatformID)
	fmt.Fprintf(&b, "Kook平台状态: %s\n", kook)
	fmt.Fprintf(&b, "转发所有频道: %v\n", opts.ForwardAllChannels)
	fmt.Fprintf(&b, "默认源频道: %s\n", opts.DefaultSourceChannel)
	fmt.Fprintf(&b, "默认Kook频道: %s\n", opts.DefaultDestinationChannel)
	fmt.Fprintf(&b, "包含机器人消息: %v\n", opts.IncludeBotMessages)
	fmt.Fprintf(&b, "消息前缀: %s\n", opts.MessagePrefix)
	fmt.Fprintf(&b, "翻译: %s\n", translation)
	fmt.Fprintf(&b, "媒体清理: 图片 %d 小时 / 视频 %d 小时\n", opts.ImageCleanupHours, opts.VideoCleanupHours)
	fmt.Fprintf(&b, "频道映射:\n%s\n\n", mapping)

	n := "/" + h.name
	b.WriteString("使用方法:\n")
	fmt.Fprintf(&b, "%s enable/disable - 启用/禁用转发\n", n)
	fmt.Fprintf(&b, "%s set_kook_platform <platform_id> - 手动设置Kook平台ID\n", n)
	fmt.Fprintf(&b, "%s refresh_platforms - 重新检测平台\n", n)
	fmt.Fprintf(&b, "%s set_default_channel <kook_channel_id> - 设置默认Kook频道\n", n)
	fmt.Fprintf(&b, "%s set_default_source <discord_channel_id> - 设置默认源频道\n", n)
	fmt.Fprintf(&b, "%s add_mapping <discord_channel_id> <kook_channel_id> - 添加频道映射\n", n)
	fmt.Fprintf(&b, "%s remove_mapping <discord_channel_id> - 移除频道映射\n", n)
	fmt.Fprintf(&b, "%s toggle_all_channels - 切换是否转发所有频道\n", n)
	fmt.Fprintf(&b, "%s quick_test <kook_channel_id> - 快速测试（转发所有频道到指定Kook频道）\n", n)
	fmt.Fprintf(&b, "%s cleanup - 立即清理过期临时媒体文件\n", n)
	fmt.Fprintf(&b, "%s set_cleanup <image|video> <hours> - 设置清理时长（0 表示不清理）", n)
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "启用"
	}
	return "禁用"
}
