// Package translate 文本翻译（腾讯云 / 百度 / 谷歌）
//
// 每个服务商实现 Provider 接口；Manager 根据当前配置持有至多一个 Provider，
// 配置变化时重建。调用方拿到的错误一律是 *Error，由调用方决定回退到原文。
package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dc2kook/internal/config"
	"dc2kook/internal/logger"
)

const (
	ProviderTencent = "tencent"
	ProviderBaidu   = "baidu"
	ProviderGoogle  = "google"

	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20
)

// ErrMissingCredentials 所选服务商缺少必需凭据
var ErrMissingCredentials = errors.New("missing translation credentials")

// ErrUnsupportedProvider 未知的服务商名称
var ErrUnsupportedProvider = errors.New("unsupported translation provider")

// Provider 单个翻译服务商
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Kind 翻译错误分类
type Kind string

const (
	KindConfig    Kind = "config"    // 凭据缺失或配置无效
	KindTransport Kind = "transport" // 网络错误、超时、非 2xx
	KindResponse  Kind = "response"  // 响应格式不符合预期
	KindAPI       Kind = "api"       // 服务商返回业务错误
)

// Error 翻译失败
type Error struct {
	Provider string
	Kind     Kind
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s translate %s error", e.Provider, e.Kind)
	if e.Code != "" {
		msg += ": code=" + e.Code
	}
	if e.Message != "" {
		msg += ", message=" + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Option 自定义服务商客户端
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	endpoint   string
	now        func() time.Time
	salt       func() int
}

// WithHTTPClient 自定义 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithEndpoint 覆盖服务商地址（测试时指向 httptest）
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) {
		if endpoint != "" {
			o.endpoint = endpoint
		}
	}
}

// WithNowFunc 自定义签名时间
func WithNowFunc(now func() time.Time) Option {
	return func(o *clientOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSaltFunc 自定义百度签名随机数
func WithSaltFunc(salt func() int) Option {
	return func(o *clientOptions) {
		if salt != nil {
			o.salt = salt
		}
	}
}

func buildOptions(defaultEndpoint string, opts []Option) clientOptions {
	o := clientOptions{
		httpClient: &http.Client{Timeout: defaultTimeout},
		endpoint:   defaultEndpoint,
		now:        time.Now,
		salt:       randomSalt,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New 按配置选择服务商
func New(cfg config.TranslationOptions, opts ...Option) (Provider, error) {
	switch cfg.TranslationProvider {
	case ProviderTencent, "":
		return NewTencent(cfg.TencentSecretID, cfg.TencentSecretKey, cfg.TencentRegion, opts...)
	case ProviderBaidu:
		return NewBaidu(cfg.BaiduAppID, cfg.BaiduSecretKey, opts...)
	case ProviderGoogle:
		return NewGoogle(cfg.GoogleAPIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.TranslationProvider)
	}
}

func missingCredentials(provider, what string) error {
	return &Error{Provider: provider, Kind: KindConfig, Message: what, Err: ErrMissingCredentials}
}

// do 发送请求并读取响应体；网络错误归类为 transport
func do(provider string, hc *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, &Error{Provider: provider, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, &Error{Provider: provider, Kind: KindTransport, Err: err}
	}
	return resp.StatusCode, body, nil
}

func statusError(provider string, status int, body []byte) error {
	return &Error{
		Provider: provider,
		Kind:     KindTransport,
		Code:     fmt.Sprintf("http_%d", status),
		Message:  truncate(string(body), 256),
	}
}

func logTranslated(provider, text, result string) {
	logger.L().Infof("Translated via %s: %q -> %q", provider, truncate(text, 50), truncate(result, 50))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
