package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dc2kook/internal/logger"

	"github.com/google/uuid"
)

const chunkSize = 32 * 1024

// Destination 目标平台的上传与发送能力
type Destination interface {
	UploadAsset(ctx context.Context, localPath string) (string, error)
	SendImage(ctx context.Context, channelID, url string) error
	SendVideo(ctx context.Context, channelID, url string) error
	SendText(ctx context.Context, channelID, text string) error
}

// Request 单个媒体的转发请求
type Request struct {
	Class     Class
	URL       string
	Filename  string
	ChannelID string
	// 同类临时文件的保留时长（小时），0 表示不清理
	CleanupHours int
}

// Relay 媒体转存
type Relay struct {
	dir             string
	dest            Destination
	httpClient      *http.Client
	downloadTimeout time.Duration
	now             func() time.Time
}

// Option 自定义 Relay
type Option func(*Relay)

// WithHTTPClient 自定义下载用 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Relay) {
		if hc != nil {
			r.httpClient = hc
		}
	}
}

// WithDownloadTimeout 单次下载总时长上限
func WithDownloadTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.downloadTimeout = d
		}
	}
}

// WithNowFunc 自定义清理时使用的当前时间
func WithNowFunc(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRelay 创建媒体转存，dir 下按类别建立 image/ video/ 子目录
func NewRelay(dir string, dest Destination, opts ...Option) (*Relay, error) {
	if dir == "" {
		return nil, errors.New("media dir cannot be empty")
	}

	r := &Relay{
		dir:  dir,
		dest: dest,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
		downloadTimeout: 2 * time.Minute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, class := range []Class{ClassImage, ClassVideo} {
		if err := os.MkdirAll(r.classDir(class), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media dir: %w", err)
		}
	}
	return r, nil
}

// Relay 下载 -> 清理 -> 上传 -> 发送；任一步失败都向目标频道发送占位文本
// 返回媒体本身是否发送成功
func (r *Relay) Relay(ctx context.Context, req Request) bool {
	name := ResolveFilename(req.URL, req.Filename, req.Class)

	if err := r.relay(ctx, req, name); err != nil {
		logger.L().Errorf("Media relay failed: class=%s, file=%s, channel=%s: %v", req.Class, name, req.ChannelID, err)
		if sendErr := r.dest.SendText(ctx, req.ChannelID, Placeholder(req.Class, name)); sendErr != nil {
			logger.L().Errorf("Failed to send media placeholder to %s: %v", req.ChannelID, sendErr)
		}
		return false
	}
	return true
}

func (r *Relay) relay(ctx context.Context, req Request, name string) error {
	if req.Class != ClassImage && req.Class != ClassVideo {
		return fmt.Errorf("unsupported media class %q", req.Class)
	}

	local, err := r.Download(ctx, req.Class, req.URL, name)
	if err != nil {
		return err
	}

	// 只在同类下载成功后顺带清理，不另起定时任务
	if req.CleanupHours > 0 {
		if n, err := r.Cleanup(req.Class, req.CleanupHours); err != nil {
			logger.L().Warnf("Media cleanup failed: class=%s: %v", req.Class, err)
		} else if n > 0 {
			logger.L().Infof("Media cleanup removed %d %s file(s)", n, req.Class)
		}
	}

	hosted, err := r.dest.UploadAsset(ctx, local)
	if err != nil {
		return err
	}

	if req.Class == ClassVideo {
		return r.dest.SendVideo(ctx, req.ChannelID, hosted)
	}
	return r.dest.SendImage(ctx, req.ChannelID, hosted)
}

// Download 分块下载到 <dir>/<class>/<uuid><ext>，失败时删除残留文件
func (r *Relay) Download(ctx context.Context, class Class, rawURL, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request failed: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s failed: status=%d", name, resp.StatusCode)
	}

	local := filepath.Join(r.classDir(class), uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create media file failed: %w", err)
	}

	buf := make([]byte, chunkSize)
	written, copyErr := io.CopyBuffer(f, resp.Body, buf)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(local)
		return "", fmt.Errorf("write %s failed: %w", name, err)
	}

	logger.L().Debugf("Media downloaded: %s -> %s (%d bytes)", name, local, written)
	return local, nil
}

// Cleanup 删除该类别下修改时间早于 hours 小时的文件，返回删除数量
// hours <= 0 时不做任何事
func (r *Relay) Cleanup(class Class, hours int) (int, error) {
	if hours <= 0 {
		return 0, nil
	}

	dir := r.classDir(class)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read media dir failed: %w", err)
	}

	cutoff := r.now().Add(-time.Duration(hours) * time.Hour)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// 并发清理时文件可能已被删除
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// CleanupAll 按各自时长清理图片与视频
func (r *Relay) CleanupAll(imageHours, videoHours int) (int, error) {
	images, imgErr := r.Cleanup(ClassImage, imageHours)
	videos, vidErr := r.Cleanup(ClassVideo, videoHours)
	return images + videos, errors.Join(imgErr, vidErr)
}

func (r *Relay) classDir(class Class) string {
	return filepath.Join(r.dir, string(class))
}
