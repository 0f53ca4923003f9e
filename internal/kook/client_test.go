package kook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("secret-token", WithBaseURL(server.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestSendMessageTypes(t *testing.T) {
	tests := []struct {
		name     string
		send     func(c *Client) error
		wantType float64
		content  string
	}{
		{
			name:     "text",
			send:     func(c *Client) error { return c.SendText(context.Background(), "200", "hello") },
			wantType: 1,
			content:  "hello",
		},
		{
			name:     "image",
			send:     func(c *Client) error { return c.SendImage(context.Background(), "200", "https://img.kookapp.cn/a.png") },
			wantType: 2,
			content:  "https://img.kookapp.cn/a.png",
		},
		{
			name:     "video",
			send:     func(c *Client) error { return c.SendVideo(context.Background(), "200", "https://img.kookapp.cn/v.mp4") },
			wantType: 3,
			content:  "https://img.kookapp.cn/v.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/message/create" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bot secret-token" {
					t.Errorf("unexpected authorization: %s", got)
				}

				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode body: %v", err)
				}
				if body["target_id"] != "200" || body["content"] != tt.content || body["type"] != tt.wantType {
					t.Errorf("unexpected body: %v", body)
				}

				_, _ = w.Write([]byte(`{"code":0,"message":"操作成功","data":{"msg_id":"m-1"}}`))
			})

			if err := tt.send(client); err != nil {
				t.Fatalf("send failed: %v", err)
			}
		})
	}
}

func TestSendTextAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":40000,"message":"频道不存在","data":{}}`))
	})

	err := client.SendText(context.Background(), "404", "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != 40000 {
		t.Fatalf("unexpected code: %d", apiErr.Code)
	}
}

func TestSendTextHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`unauthorized`))
	})

	if err := client.SendText(context.Background(), "200", "hello"); err == nil {
		t.Fatalf("expected error for 401")
	}
}

func TestUploadAsset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "data.url", body: `{"code":0,"data":{"url":"https://img.kookapp.cn/1.png"}}`, want: "https://img.kookapp.cn/1.png"},
		{name: "data.file_url", body: `{"code":0,"data":{"file_url":"https://img.kookapp.cn/2.png"}}`, want: "https://img.kookapp.cn/2.png"},
		{name: "data.asset_url", body: `{"code":0,"data":{"asset_url":"https://img.kookapp.cn/3.png"}}`, want: "https://img.kookapp.cn/3.png"},
		{name: "top-level url", body: `{"code":0,"data":null,"url":"https://img.kookapp.cn/4.png"}`, want: "https://img.kookapp.cn/4.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/asset/create" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				file, header, err := r.FormFile("file")
				if err != nil {
					t.Errorf("read form file: %v", err)
				} else {
					data, _ := io.ReadAll(file)
					if string(data) != "png-bytes" || header.Filename != "abc.png" {
						t.Errorf("unexpected upload: %s %q", header.Filename, data)
					}
				}
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := client.UploadAsset(context.Background(), path)
			if err != nil {
				t.Fatalf("UploadAsset failed: %v", err)
			}
			if got != tt.want {
				t.Fatalf("unexpected url: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUploadAssetMissingURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.mp4")
	_ = os.WriteFile(path, []byte("x"), 0o600)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{}}`))
	})

	if _, err := client.UploadAsset(context.Background(), path); err == nil {
		t.Fatalf("expected error when no url returned")
	}
}

func TestMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/user/me" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"id":"3721","username":"relay","bot":true}}`))
	})

	user, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if user.ID != "3721" || !user.Bot {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2)
	defer limiter.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("initial tokens should be available: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on empty bucket, got %v", err)
	}

	limiter.Close()
	limiter.Close()
}

func TestClientWaitsOnRateLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer server.Close()

	limiter := NewRateLimiter(1)
	defer limiter.Close()

	client, _ := NewClient("t", WithBaseURL(server.URL), WithRateLimiter(limiter))
	if err := client.SendText(context.Background(), "1", "a"); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := client.SendText(ctx, "1", "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected rate limiter to block, got %v", err)
	}
}

func TestUploadAssetStreamsFile(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// 流式请求体没有预先确定的长度
		if r.ContentLength != -1 {
			t.Errorf("expected streamed body, got content length %d", r.ContentLength)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("read form file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if !bytes.Equal(data, content) || header.Filename != "clip.mp4" {
				t.Errorf("unexpected upload: %s (%d bytes)", header.Filename, len(data))
			}
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"url":"https://img.kookapp.cn/clip.mp4"}}`))
	})

	got, err := client.UploadAsset(context.Background(), path)
	if err != nil {
		t.Fatalf("UploadAsset failed: %v", err)
	}
	if got != "https://img.kookapp.cn/clip.mp4" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestUploadAssetMissingFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected for a missing file")
	})

	if _, err := client.UploadAsset(context.Background(), filepath.Join(t.TempDir(), "gone.png")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestRetryAfterTooManyRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	var requests atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("read form file: %v", err)
		} else if data, _ := io.ReadAll(file); string(data) != "png-bytes" {
			t.Errorf("attempt %d uploaded %q", requests.Load()+1, data)
		}

		if requests.Add(1) == 1 {
			w.Header().Set("X-Rate-Limit-Remaining", "0")
			w.Header().Set("X-Rate-Limit-Reset", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"url":"https://img.kookapp.cn/a.png"}}`))
	})

	got, err := client.UploadAsset(context.Background(), path)
	if err != nil {
		t.Fatalf("UploadAsset failed after retry: %v", err)
	}
	if got != "https://img.kookapp.cn/a.png" || requests.Load() != 2 {
		t.Fatalf("unexpected result: url=%s, requests=%d", got, requests.Load())
	}
}

func TestTooManyRequestsGivesUp(t *testing.T) {
	var requests atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("X-Rate-Limit-Reset", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.SendText(context.Background(), "1", "a")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
	if requests.Load() != 2 {
		t.Fatalf("expected exactly one retry, got %d requests", requests.Load())
	}
}

func TestRateLimiterObserve(t *testing.T) {
	limiter := NewRateLimiter(10)
	defer limiter.Close()

	h := http.Header{}
	if d := limiter.Observe(h); d != 0 {
		t.Fatalf("no headers must not pause, got %s", d)
	}

	h.Set("X-Rate-Limit-Remaining", "3")
	h.Set("X-Rate-Limit-Reset", "5")
	if d := limiter.Observe(h); d != 0 {
		t.Fatalf("remaining requests must not pause, got %s", d)
	}

	h.Set("X-Rate-Limit-Remaining", "0")
	if d := limiter.Observe(h); d != 5*time.Second {
		t.Fatalf("expected 5s pause, got %s", d)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected pause to block despite available tokens, got %v", err)
	}
}

func TestRateLimiterPauseCapped(t *testing.T) {
	limiter := NewRateLimiter(1)
	defer limiter.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }

	limiter.Pause(time.Hour)
	if got := limiter.pauseRemaining(); got != maxPause {
		t.Fatalf("expected pause capped at %s, got %s", maxPause, got)
	}

	limiter.Pause(time.Second)
	if got := limiter.pauseRemaining(); got != maxPause {
		t.Fatalf("shorter pause must not shorten the current one, got %s", got)
	}
}

func TestClientHonoursExhaustedBucket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit-Remaining", "0")
		w.Header().Set("X-Rate-Limit-Reset", "5")
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer server.Close()

	limiter := NewRateLimiter(10)
	defer limiter.Close()

	client, _ := NewClient("t", WithBaseURL(server.URL), WithRateLimiter(limiter))
	if err := client.SendText(context.Background(), "1", "a"); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := client.SendText(ctx, "1", "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected exhausted bucket to pause sends, got %v", err)
	}
}
