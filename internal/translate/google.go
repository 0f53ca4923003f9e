package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const googleEndpoint = "https://translation.googleapis.com/language/translate/v2"

// Google Cloud Translation v2（API Key）
type Google struct {
	apiKey string
	opts   clientOptions
}

// NewGoogle 创建谷歌翻译客户端
func NewGoogle(apiKey string, opts ...Option) (*Google, error) {
	if apiKey == "" {
		return nil, missingCredentials(ProviderGoogle, "google_api_key is required")
	}
	return &Google{apiKey: apiKey, opts: buildOptions(googleEndpoint, opts)}, nil
}

func (g *Google) Name() string { return ProviderGoogle }

type googleResponse struct {
	Data *struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Google) Translate(ctx context.Context, text, source, target string) (string, error) {
	form := url.Values{}
	form.Set("key", g.apiKey)
	form.Set("q", text)
	form.Set("target", googleLanguage(target))
	form.Set("format", "text")
	// auto 时不传 source，由服务端检测
	if source != "" && source != "auto" {
		form.Set("source", googleLanguage(source))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.opts.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &Error{Provider: ProviderGoogle, Kind: KindConfig, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := do(ProviderGoogle, g.opts.httpClient, req)
	if err != nil {
		return "", err
	}

	var resp googleResponse
	decodeErr := json.Unmarshal(body, &resp)
	if decodeErr == nil && resp.Error != nil {
		return "", &Error{
			Provider: ProviderGoogle,
			Kind:     KindAPI,
			Code:     strconv.Itoa(resp.Error.Code),
			Message:  resp.Error.Message,
		}
	}
	if status != http.StatusOK {
		return "", statusError(ProviderGoogle, status, body)
	}
	if decodeErr != nil {
		return "", &Error{Provider: ProviderGoogle, Kind: KindResponse, Err: decodeErr}
	}
	if resp.Data == nil || len(resp.Data.Translations) == 0 {
		return "", &Error{Provider: ProviderGoogle, Kind: KindResponse, Message: "empty data.translations"}
	}

	result := resp.Data.Translations[0].TranslatedText
	logTranslated(ProviderGoogle, text, result)
	return result, nil
}

func googleLanguage(code string) string {
	if code == "zh" {
		return "zh-CN"
	}
	return code
}
