// Package kook Kook（开黑啦）Bot HTTP API 客户端
package kook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dc2kook/internal/logger"
)

const DefaultBaseURL = "https://www.kookapp.cn/api/v3"

// MessageType Kook 消息类型码
type MessageType int

const (
	MessageText  MessageType = 1
	MessageImage MessageType = 2
	MessageVideo MessageType = 3
)

// Client 封装与 Kook 的 HTTP 通讯
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *RateLimiter
}

// Option 自定义客户端行为
type Option func(*Client)

// WithHTTPClient 自定义 HTTP 客户端（测试时使用）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL 覆盖 API 地址
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithRateLimiter 所有请求前等待限速器
func WithRateLimiter(l *RateLimiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient 创建 Kook 客户端
func NewClient(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("kook token cannot be empty")
	}

	client := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// APIError Kook 业务错误（code != 0）
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kook api error: code=%d, message=%s", e.Code, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// SendText 发送文本消息
func (c *Client) SendText(ctx context.Context, channelID, text string) error {
	return c.SendMessage(ctx, channelID, text, MessageText)
}

// SendImage 发送图片消息，url 必须是 Kook 资源地址
func (c *Client) SendImage(ctx context.Context, channelID, url string) error {
	return c.SendMessage(ctx, channelID, url, MessageImage)
}

// SendVideo 发送视频消息
func (c *Client) SendVideo(ctx context.Context, channelID, url string) error {
	return c.SendMessage(ctx, channelID, url, MessageVideo)
}

// SendMessage POST /message/create
func (c *Client) SendMessage(ctx context.Context, channelID, content string, msgType MessageType) error {
	payload, err := json.Marshal(map[string]any{
		"target_id": channelID,
		"content":   content,
		"type":      int(msgType),
	})
	if err != nil {
		return fmt.Errorf("encode message failed: %w", err)
	}

	if err := c.do(ctx, http.MethodPost, "message/create", jsonBody(payload), nil); err != nil {
		return fmt.Errorf("send message to %s failed: %w", channelID, err)
	}

	logger.L().Debugf("Kook message sent: channel=%s, type=%d", channelID, msgType)
	return nil
}

// UploadAsset 上传本地文件到 /asset/create，返回托管地址
// 文件以 multipart 流式发送，不整体读入内存
func (c *Client) UploadAsset(ctx context.Context, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("open asset failed: %w", err)
	}

	env, err := c.doRaw(ctx, http.MethodPost, "asset/create", multipartFile(localPath))
	if err != nil {
		return "", fmt.Errorf("upload asset failed: %w", err)
	}

	hosted := assetURL(env)
	if hosted == "" {
		return "", fmt.Errorf("upload asset failed: no url in response: %s", truncate(string(env.Data), 256))
	}

	logger.L().Debugf("Kook asset uploaded: %s -> %s", filepath.Base(localPath), hosted)
	return hosted, nil
}

// User GET /user/me 的返回
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Bot      bool   `json:"bot"`
}

// Me 返回当前 Bot 用户，用于刷新平台绑定
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "user/me", nil, &user); err != nil {
		return nil, fmt.Errorf("get current user failed: %w", err)
	}
	return &user, nil
}

// assetURL 依次尝试 data.url / data.file_url / data.asset_url / 顶层 url
func assetURL(env *rawEnvelope) string {
	var fields struct {
		URL      string `json:"url"`
		FileURL  string `json:"file_url"`
		AssetURL string `json:"asset_url"`
	}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &fields)
	}

	for _, u := range []string{fields.URL, fields.FileURL, fields.AssetURL, env.URL} {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

type rawEnvelope struct {
	envelope
	URL string `json:"url"`
}

// requestBody 每次尝试重新生成请求体（429 重试时需要）
type requestBody func() (body io.Reader, contentType string, err error)

func jsonBody(payload []byte) requestBody {
	return func() (io.Reader, string, error) {
		return bytes.NewReader(payload), "application/json", nil
	}
}

// multipartFile 通过 io.Pipe 边读文件边写 multipart，内存占用与文件大小无关
func multipartFile(localPath string) requestBody {
	return func() (io.Reader, string, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return nil, "", fmt.Errorf("open asset failed: %w", err)
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			defer f.Close()
			part, err := mw.CreateFormFile("file", filepath.Base(localPath))
			if err == nil {
				_, err = io.CopyBuffer(part, f, make([]byte, uploadChunkSize))
			}
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()

		return pr, mw.FormDataContentType(), nil
	}
}

const (
	uploadChunkSize = 32 * 1024
	// 429 之后最多重试一次
	maxAttempts = 2
	// 429 未给出重置时间时的等待
	defaultRetryAfter = time.Second
)

func (c *Client) do(ctx context.Context, method, path string, body requestBody, out any) error {
	env, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode kook data failed: %w", err)
		}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, body requestBody) (*rawEnvelope, error) {
	var lastErr error
	for i := 1; i <= maxAttempts; i++ {
		env, retryAfter, err := c.attempt(ctx, method, path, body)
		if err == nil {
			return env, nil
		}
		lastErr = err
		if retryAfter < 0 || i == maxAttempts {
			break
		}

		logger.L().Warnf("Kook rate limited on %s, retrying in %s", path, retryAfter)
		if err := c.backoff(ctx, retryAfter); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// attempt 发出一次请求；retryAfter >= 0 表示被限速，可以在等待后重试
func (c *Client) attempt(ctx context.Context, method, path string, body requestBody) (*rawEnvelope, time.Duration, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, -1, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	contentType := ""
	if body != nil {
		var err error
		if reader, contentType, err = body(); err != nil {
			return nil, -1, err
		}
	}

	endpoint := c.baseURL + "/" + strings.Trim(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		if rc, ok := reader.(io.Closer); ok {
			_ = rc.Close()
		}
		return nil, -1, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, -1, fmt.Errorf("request kook api failed: %w", err)
	}
	defer resp.Body.Close()

	if c.limiter != nil {
		if d := c.limiter.Observe(resp.Header); d > 0 {
			logger.L().Debugf("Kook rate limit bucket %q exhausted, pausing %s", resp.Header.Get(headerRateBucket), d)
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, -1, fmt.Errorf("read kook response failed: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, ok := resetAfter(resp.Header)
		if !ok {
			retryAfter = defaultRetryAfter
		}
		return nil, retryAfter, fmt.Errorf("kook rate limited: status=429, global=%s, body=%s",
			resp.Header.Get(headerRateGlobal), truncate(string(respBody), 256))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, -1, fmt.Errorf("kook http error: status=%d, body=%s", resp.StatusCode, truncate(string(respBody), 256))
	}

	var env rawEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, -1, fmt.Errorf("decode kook response failed: %w", err)
	}
	if env.Code != 0 {
		return nil, -1, &APIError{Code: env.Code, Message: env.Message}
	}
	return &env, -1, nil
}

// backoff 有限速器时交给限速器统一暂停，否则就地等待
func (c *Client) backoff(ctx context.Context, d time.Duration) error {
	if c.limiter != nil {
		c.limiter.Pause(d)
		return nil
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
