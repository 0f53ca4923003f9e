package relay

import (
	"context"
	"net/url"
	"path"
	"runtime/debug"
	"strings"

	"dc2kook/internal/config"
	"dc2kook/internal/logger"
	"dc2kook/internal/media"
	"dc2kook/internal/translate"

	log "github.com/sirupsen/logrus"
)

// Sender 目标平台的文本发送
type Sender interface {
	SendText(ctx context.Context, channelID, text string) error
}

// MediaRelay 媒体转存，失败时自行发送占位文本
type MediaRelay interface {
	Relay(ctx context.Context, req media.Request) bool
}

// Dispatcher 每条入站消息调用一次 OnInboundMessage
type Dispatcher struct {
	options      config.Reader
	sender       Sender
	media        MediaRelay
	translations *translate.Manager
}

// NewDispatcher 创建分发器；translations 可以为 nil（不翻译）
func NewDispatcher(options config.Reader, sender Sender, mediaRelay MediaRelay, translations *translate.Manager) *Dispatcher {
	return &Dispatcher{
		options:      options,
		sender:       sender,
		media:        mediaRelay,
		translations: translations,
	}
}

// OnInboundMessage 刷新配置 -> 过滤 -> 转换 -> 解析目标 -> 发送
// 所有错误（包括 panic）都在这里记录并吞掉，不影响后续消息
func (d *Dispatcher) OnInboundMessage(ctx context.Context, ev *Event) {
	entry := logger.WithMessage(ev.ChannelID, ev.MessageID)

	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("Dispatcher panic recovered: %v\n%s", r, debug.Stack())
		}
	}()

	opts, err := config.Snapshot(ctx, d.options)
	if err != nil {
		entry.Errorf("Failed to refresh options, message not forwarded: %v", err)
		return
	}

	if !opts.Enabled {
		entry.Debug("Forwarding disabled, skipping message")
		return
	}

	if d.translations != nil {
		d.translations.Update(opts.TranslationOptions)
	}

	if !ShouldForward(ev, opts) {
		entry.Debugf("Message filtered: from_self=%v, forward_all=%v", ev.FromSelf, opts.ForwardAllChannels)
		return
	}

	var tr Translator
	if d.translations != nil && d.translations.IsEnabled() {
		if p := d.translations.Active(); p != nil {
			tr = p
		}
	}

	components := Transform(ctx, ev, opts, tr)

	dest, ok := Resolve(ev.ChannelID, opts)
	if !ok {
		entry.Warn("No destination channel resolved (no mapping and no default), message not forwarded")
		return
	}

	entry.Infof("Forwarding message from %s to Kook channel %s (%d components)", ev.SenderName, dest, len(components))
	d.deliver(ctx, entry, dest, components, opts)
}

// deliver 按顺序发送；相邻文本合并为一条消息
func (d *Dispatcher) deliver(ctx context.Context, entry *log.Entry, dest string, components []Component, opts *config.Options) {
	var text strings.Builder

	flush := func() {
		if strings.TrimSpace(text.String()) == "" {
			text.Reset()
			return
		}
		if err := d.sender.SendText(ctx, dest, text.String()); err != nil {
			entry.Errorf("Failed to send text to %s: %v", dest, err)
		}
		text.Reset()
	}

	for _, c := range components {
		if c.Kind == KindText {
			text.WriteString(c.Text)
			continue
		}

		flush()

		switch c.Kind {
		case KindImage:
			d.relayMedia(ctx, media.ClassImage, c, dest, opts)
		case KindVideo:
			d.relayMedia(ctx, media.ClassVideo, c, dest, opts)
		case KindFile:
			name := fileName(c)
			class := media.Classify(name)
			if class == media.ClassUnsupported {
				entry.Warnf("Unsupported file type: %s", name)
				if err := d.sender.SendText(ctx, dest, media.UnsupportedPlaceholder(name)); err != nil {
					entry.Errorf("Failed to send placeholder to %s: %v", dest, err)
				}
				continue
			}
			d.relayMedia(ctx, class, c, dest, opts)
		}
	}

	flush()
}

func (d *Dispatcher) relayMedia(ctx context.Context, class media.Class, c Component, dest string, opts *config.Options) {
	hours := opts.ImageCleanupHours
	if class == media.ClassVideo {
		hours = opts.VideoCleanupHours
	}

	d.media.Relay(ctx, media.Request{
		Class:        class,
		URL:          c.URL,
		Filename:     c.Filename,
		ChannelID:    dest,
		CleanupHours: hours,
	})
}

// fileName 文件组件的名称：元数据文件名，否则取 URL 路径末段
func fileName(c Component) string {
	if name := strings.TrimSpace(c.Filename); name != "" {
		return name
	}
	if u, err := url.Parse(c.URL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return c.URL
}
