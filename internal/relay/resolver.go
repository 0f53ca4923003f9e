package relay

import "dc2kook/internal/config"

// Resolve 源频道 -> 目标频道，第一个命中的规则生效：
//  1. forward_channels 精确匹配
//  2. 源频道等于 default_source_channel 且设置了 default_destination_channel
//  3. 未设置 default_source_channel 但设置了 default_destination_channel（旧版单频道兼容）
func Resolve(source string, opts *config.Options) (string, bool) {
	if dest, ok := opts.ForwardChannels[source]; ok && dest != "" {
		return dest, true
	}

	if opts.DefaultDestinationChannel == "" {
		return "", false
	}
	if opts.DefaultSourceChannel == "" || opts.DefaultSourceChannel == source {
		return opts.DefaultDestinationChannel, true
	}
	return "", false
}

// ShouldForward 判断事件是否需要转发
// 注意：任何能解析出目标的频道都会被转发，即使 forward_all_channels 关闭
func ShouldForward(ev *Event, opts *config.Options) bool {
	if ev.FromSelf && !opts.IncludeBotMessages {
		return false
	}
	if opts.ForwardAllChannels {
		return true
	}
	_, ok := Resolve(ev.ChannelID, opts)
	return ok
}
