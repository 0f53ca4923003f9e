package translate

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	tencentEndpoint = "https://tmt.tencentcloudapi.com"
	tencentService  = "tmt"
	tencentAction   = "TextTranslate"
	tencentVersion  = "2018-03-21"
	tencentAlgo     = "TC3-HMAC-SHA256"
	tencentCT       = "application/json; charset=utf-8"
)

// Tencent 腾讯云机器翻译（TC3-HMAC-SHA256 签名）
type Tencent struct {
	secretID  string
	secretKey string
	region    string
	opts      clientOptions
}

// NewTencent 创建腾讯云翻译客户端；region 为空时使用 ap-beijing
func NewTencent(secretID, secretKey, region string, opts ...Option) (*Tencent, error) {
	if secretID == "" || secretKey == "" {
		return nil, missingCredentials(ProviderTencent, "tencent_secret_id and tencent_secret_key are required")
	}
	if region == "" {
		region = "ap-beijing"
	}
	return &Tencent{
		secretID:  secretID,
		secretKey: secretKey,
		region:    region,
		opts:      buildOptions(tencentEndpoint, opts),
	}, nil
}

func (t *Tencent) Name() string { return ProviderTencent }

type tencentRequest struct {
	SourceText string `json:"SourceText"`
	Source     string `json:"Source"`
	Target     string `json:"Target"`
	ProjectId  int    `json:"ProjectId"`
}

type tencentResponse struct {
	Response struct {
		TargetText *string `json:"TargetText"`
		RequestId  string  `json:"RequestId"`
		Error      *struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Error"`
	} `json:"Response"`
}

func (t *Tencent) Translate(ctx context.Context, text, source, target string) (string, error) {
	payload, err := json.Marshal(tencentRequest{
		SourceText: text,
		Source:     source,
		Target:     target,
	})
	if err != nil {
		return "", &Error{Provider: ProviderTencent, Kind: KindConfig, Err: err}
	}

	u, err := url.Parse(t.opts.endpoint)
	if err != nil {
		return "", &Error{Provider: ProviderTencent, Kind: KindConfig, Err: err}
	}

	now := t.opts.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Provider: ProviderTencent, Kind: KindConfig, Err: err}
	}
	req.Header.Set("Authorization", tc3Authorization(t.secretID, t.secretKey, u.Host, payload, now))
	req.Header.Set("Content-Type", tencentCT)
	req.Header.Set("Host", u.Host)
	req.Header.Set("X-TC-Action", tencentAction)
	req.Header.Set("X-TC-Timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("X-TC-Version", tencentVersion)
	req.Header.Set("X-TC-Region", t.region)

	status, body, err := do(ProviderTencent, t.opts.httpClient, req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", statusError(ProviderTencent, status, body)
	}

	var resp tencentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Provider: ProviderTencent, Kind: KindResponse, Err: err}
	}
	if e := resp.Response.Error; e != nil {
		return "", &Error{Provider: ProviderTencent, Kind: KindAPI, Code: e.Code, Message: e.Message}
	}
	if resp.Response.TargetText == nil {
		return "", &Error{Provider: ProviderTencent, Kind: KindResponse, Message: "missing Response.TargetText"}
	}

	result := *resp.Response.TargetText
	logTranslated(ProviderTencent, text, result)
	return result, nil
}

// tc3Authorization 生成腾讯云 API 3.0 的 Authorization 头
func tc3Authorization(secretID, secretKey, host string, payload []byte, ts time.Time) string {
	signedHeaders := "content-type;host;x-tc-action"
	canonicalHeaders := fmt.Sprintf("content-type:%s\nhost:%s\nx-tc-action:%s\n",
		tencentCT, host, strings.ToLower(tencentAction))
	canonicalRequest := strings.Join([]string{
		http.MethodPost,
		"/",
		"",
		canonicalHeaders,
		signedHeaders,
		sha256Hex(payload),
	}, "\n")

	date := ts.UTC().Format("2006-01-02")
	scope := date + "/" + tencentService + "/tc3_request"
	stringToSign := strings.Join([]string{
		tencentAlgo,
		strconv.FormatInt(ts.Unix(), 10),
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	secretDate := hmacSHA256([]byte("TC3"+secretKey), date)
	secretService := hmacSHA256(secretDate, tencentService)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		tencentAlgo, secretID, scope, signedHeaders, signature)
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
