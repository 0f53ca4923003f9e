// Package media 媒体转存：下载远程资源、上传到 Kook、发送对应类型的消息
package media

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Class 媒体类别
type Class string

const (
	ClassImage       Class = "image"
	ClassVideo       Class = "video"
	ClassUnsupported Class = ""
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".mkv": true, ".avi": true, ".m4v": true,
}

// Classify 按扩展名（不区分大小写）判断图片或视频
func Classify(filename string) Class {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExts[ext]:
		return ClassImage
	case videoExts[ext]:
		return ClassVideo
	default:
		return ClassUnsupported
	}
}

// ResolveFilename 文件名优先级：URL 路径末段（带扩展名）> 元数据文件名 > 默认名
func ResolveFilename(rawURL, filename string, class Class) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if base != "." && base != "/" && path.Ext(base) != "" {
			return base
		}
	}

	if name := strings.TrimSpace(filename); name != "" {
		return filepath.Base(name)
	}

	if class == ClassVideo {
		return "video.mp4"
	}
	return "image.png"
}

// Placeholder 媒体转发失败时发送的文本
func Placeholder(class Class, name string) string {
	switch class {
	case ClassVideo:
		return fmt.Sprintf("[视频发送失败: %s]", name)
	case ClassImage:
		return fmt.Sprintf("[图片发送失败: %s]", name)
	default:
		return UnsupportedPlaceholder(name)
	}
}

// UnsupportedPlaceholder 无法识别的文件类型
func UnsupportedPlaceholder(name string) string {
	return fmt.Sprintf("[不支持的文件类型: %s]", name)
}
