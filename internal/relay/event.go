// Package relay Discord -> Kook 转发决策与分发
//
// Resolve / ShouldForward / Transform 都是纯函数，只依赖一次配置快照；
// Dispatcher 负责刷新快照并把结果交给 Kook 与媒体转存。
package relay

// Kind 消息组件类型
type Kind string

const (
	KindText       Kind = "text"
	KindImage      Kind = "image"
	KindVideo      Kind = "video"
	KindFile       Kind = "file"
	KindMention    Kind = "mention"
	KindMentionAll Kind = "mention_all"
)

// MentionAllText @全体成员 的文本形式
const MentionAllText = "@全体成员"

// TranslationMarker 原文与译文之间的标记
const TranslationMarker = "[译文]"

// Component 消息组件
type Component struct {
	Kind Kind
	// Text 用于 text
	Text string
	// URL / Filename 用于 image / video / file
	URL      string
	Filename string
	// UserID 用于 mention
	UserID string
}

// Text 构造文本组件
func Text(s string) Component { return Component{Kind: KindText, Text: s} }

// Event 入站消息（由平台适配层构造，这里只读）
type Event struct {
	SenderID   string
	SenderName string
	ChannelID  string
	MessageID  string
	// FromSelf 是否为 Bot 自己发出的消息
	FromSelf   bool
	Components []Component
}
