package relay

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"dc2kook/internal/config"
	"dc2kook/internal/logger"
)

// Translator 翻译服务，translate.Provider 满足该接口
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Transform 生成出站组件：前缀 + 发送者，随后按原顺序转换每个入站组件
// tr 为 nil 或未开启翻译时文本原样输出；入站事件不会被修改
func Transform(ctx context.Context, ev *Event, opts *config.Options, tr Translator) []Component {
	out := make([]Component, 0, len(ev.Components)+1)
	out = append(out, Text(opts.MessagePrefix+ev.SenderName+": "))

	for _, c := range ev.Components {
		switch c.Kind {
		case KindText:
			out = append(out, Text(translateText(ctx, c.Text, opts, tr)))
		case KindImage, KindVideo, KindFile:
			out = append(out, c)
		case KindMention:
			out = append(out, Text("@"+c.UserID))
		case KindMentionAll:
			out = append(out, Text(MentionAllText))
		default:
			logger.L().Debugf("Skipping unknown component kind %q", c.Kind)
		}
	}
	return out
}

// translateText 达到阈值才调用翻译；失败、panic 或结果与原文相同时返回原文
func translateText(ctx context.Context, text string, opts *config.Options, tr Translator) (result string) {
	if tr == nil || !opts.EnableTranslation {
		return text
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) < opts.TranslateThreshold {
		return text
	}

	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorf("Translator panic recovered: %v", r)
			result = text
		}
	}()

	translated, err := tr.Translate(ctx, text, opts.SourceLanguage, opts.TargetLanguage)
	if err != nil {
		logger.L().Warnf("Translation failed, forwarding original text: %v", err)
		return text
	}
	if translated == "" || translated == text {
		return text
	}
	return fmt.Sprintf("%s\n%s %s", text, TranslationMarker, translated)
}
