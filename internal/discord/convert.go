package discord

import (
	"regexp"
	"strings"

	"dc2kook/internal/relay"

	"github.com/bwmarrin/discordgo"
)

// <@123> / <@!123> 为用户提及；@everyone / @here 只在文本开头或空白之后、且后面不接单词字符时算全体提及
var mentionPattern = regexp.MustCompile(`<@!?(\d+)>|(?:^|\s)(@everyone|@here)\b`)

// ConvertMessage 把 Discord 消息转换为入站事件
// 组件顺序：正文（按提及切分）在前，附件在后
func ConvertMessage(msg *discordgo.Message, selfID string) *relay.Event {
	ev := &relay.Event{
		ChannelID:  msg.ChannelID,
		MessageID:  msg.ID,
		SenderName: DisplayName(msg),
	}
	if msg.Author != nil {
		ev.SenderID = msg.Author.ID
		ev.FromSelf = selfID != "" && msg.Author.ID == selfID
	}

	ev.Components = append(ev.Components, splitContent(msg.Content)...)

	for _, att := range msg.Attachments {
		if att == nil || att.URL == "" {
			continue
		}
		ev.Components = append(ev.Components, relay.Component{
			Kind:     attachmentKind(att.ContentType),
			URL:      att.URL,
			Filename: att.Filename,
		})
	}

	return ev
}

// DisplayName 服务器昵称 > 全局显示名 > 用户名
func DisplayName(msg *discordgo.Message) string {
	if msg.Member != nil && msg.Member.Nick != "" {
		return msg.Member.Nick
	}
	if msg.Author == nil {
		return ""
	}
	if msg.Author.GlobalName != "" {
		return msg.Author.GlobalName
	}
	return msg.Author.Username
}

func splitContent(content string) []relay.Component {
	if content == "" {
		return nil
	}

	var out []relay.Component
	last := 0
	for _, loc := range mentionPattern.FindAllStringSubmatchIndex(content, -1) {
		// 全体提及的匹配可能带着前导空白，以分组位置为准
		start := loc[0]
		if loc[2] < 0 {
			start = loc[4]
		}
		if start > last {
			out = append(out, relay.Text(content[last:start]))
		}
		if loc[2] >= 0 {
			out = append(out, relay.Component{Kind: relay.KindMention, UserID: content[loc[2]:loc[3]]})
		} else {
			out = append(out, relay.Component{Kind: relay.KindMentionAll})
		}
		last = loc[1]
	}
	if last < len(content) {
		out = append(out, relay.Text(content[last:]))
	}
	return out
}

func attachmentKind(contentType string) relay.Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return relay.KindImage
	case strings.HasPrefix(ct, "video/"):
		return relay.KindVideo
	default:
		return relay.KindFile
	}
}
