package translate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const baiduEndpoint = "https://fanyi-api.baidu.com/api/trans/vip/translate"

// 百度使用自己的语言代码
var baiduLanguages = map[string]string{
	"ja": "jp",
	"ko": "kor",
	"fr": "fra",
	"es": "spa",
}

// Baidu 百度通用翻译（MD5 加盐签名）
type Baidu struct {
	appID     string
	secretKey string
	opts      clientOptions
}

// NewBaidu 创建百度翻译客户端
func NewBaidu(appID, secretKey string, opts ...Option) (*Baidu, error) {
	if appID == "" || secretKey == "" {
		return nil, missingCredentials(ProviderBaidu, "baidu_app_id and baidu_secret_key are required")
	}
	return &Baidu{
		appID:     appID,
		secretKey: secretKey,
		opts:      buildOptions(baiduEndpoint, opts),
	}, nil
}

func (b *Baidu) Name() string { return ProviderBaidu }

type baiduResponse struct {
	ErrorCode   json.RawMessage `json:"error_code"`
	ErrorMsg    string          `json:"error_msg"`
	TransResult []struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	} `json:"trans_result"`
}

func (b *Baidu) Translate(ctx context.Context, text, source, target string) (string, error) {
	salt := strconv.Itoa(b.opts.salt())

	form := url.Values{}
	form.Set("q", text)
	form.Set("from", baiduLanguage(source))
	form.Set("to", baiduLanguage(target))
	form.Set("appid", b.appID)
	form.Set("salt", salt)
	form.Set("sign", baiduSign(b.appID, text, salt, b.secretKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &Error{Provider: ProviderBaidu, Kind: KindConfig, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := do(ProviderBaidu, b.opts.httpClient, req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", statusError(ProviderBaidu, status, body)
	}

	var resp baiduResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Provider: ProviderBaidu, Kind: KindResponse, Err: err}
	}

	// error_code 可能是字符串也可能是数字；52000 表示成功
	if code := strings.Trim(string(resp.ErrorCode), `"`); code != "" && code != "null" && code != "52000" {
		return "", &Error{Provider: ProviderBaidu, Kind: KindAPI, Code: code, Message: resp.ErrorMsg}
	}
	if len(resp.TransResult) == 0 {
		return "", &Error{Provider: ProviderBaidu, Kind: KindResponse, Message: "empty trans_result"}
	}

	// 多行输入按行返回，按原顺序拼回
	lines := make([]string, 0, len(resp.TransResult))
	for _, r := range resp.TransResult {
		lines = append(lines, r.Dst)
	}
	result := strings.Join(lines, "\n")

	logTranslated(ProviderBaidu, text, result)
	return result, nil
}

func baiduLanguage(code string) string {
	if mapped, ok := baiduLanguages[code]; ok {
		return mapped
	}
	return code
}

// baiduSign = md5(appid + q + salt + key)
func baiduSign(appID, query, salt, key string) string {
	sum := md5.Sum([]byte(appID + query + salt + key))
	return hex.EncodeToString(sum[:])
}

// randomSalt 返回 [32768, 65536] 区间的随机数
func randomSalt() int {
	return 32768 + rand.Intn(65536-32768+1)
}
