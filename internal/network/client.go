// Package network は、WikidotとのHTTP通信に関する機能を提供します。
// Cookie Jarによるセッション管理とホストごとのレート制限をカプセル化した、
// より高レベルなHTTPクライアントを実装しています。
package network

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"GoWikidotForum/internal/config"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

// ホストごとのリクエスト間隔のデフォルト値
const defaultIntervalMillis = 200

// HTTPError は、HTTPリクエストで発生したエラーとステータスコードを保持します。
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsRetryable は、このエラーがリトライ可能かどうかを判定します。
// 4xxエラー（クライアントエラー）はリトライ不可、5xxエラー（サーバーエラー）はリトライ可能とします。
func (e *HTTPError) IsRetryable() bool {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return false
	}
	return true
}

// Client は、Cookie Jarを内包し、HTTPセッションを管理するクライアントです。
type Client struct {
	httpClient         *http.Client
	jar                *cookiejar.Jar
	userAgent          string
	defaultHeaders     map[string]string
	rateLimiters       map[string]*rate.Limiter // ホスト名ごとのレートリミッター
	rateLimitersMutex  sync.Mutex               // rateLimitersへのアクセスを保護するMutex
	perDomainIntervals map[string]int           // ドメインごとの設定間隔
	token7             string                   // wikidot_token7 (Cookieとフォームの両方に送る)
	retryCount         int
	retryWait          time.Duration
	maxConcurrent      int
}

// NewClient は NetworkSettings に基づいて HTTP クライアントを初期化し、
// ドメインごとのレートリミッターを設定します。
func NewClient(settings config.NetworkSettings) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jarの作成に失敗しました: %w", err)
	}

	timeout := time.Duration(settings.RequestTimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second // デフォルトタイムアウト
	}

	httpClient := &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}

	rateLimiters := make(map[string]*rate.Limiter)
	for domain, intervalMillis := range settings.PerDomainIntervalMillis {
		if intervalMillis <= 0 {
			continue
		}
		// intervalMillis 毎に 1 リクエストを許可する limiter
		rateLimiters[domain] = rate.NewLimiter(rate.Every(time.Duration(intervalMillis)*time.Millisecond), 1)
	}

	userAgent := settings.UserAgent
	if userAgent == "" {
		userAgent = "GoWikidotForum/1.0"
	}
	maxConcurrent := settings.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &Client{
		httpClient:         httpClient,
		jar:                jar,
		userAgent:          userAgent,
		defaultHeaders:     settings.DefaultHeaders,
		rateLimiters:       rateLimiters,
		perDomainIntervals: settings.PerDomainIntervalMillis,
		token7:             strings.ReplaceAll(uuid.NewString(), "-", ""),
		retryCount:         settings.RetryCount,
		retryWait:          time.Duration(settings.RetryWaitMillis) * time.Millisecond,
		maxConcurrent:      maxConcurrent,
	}, nil
}

// SetCookie は、指定されたURLのドメインに対して、任意のCookieを設定します。
func (c *Client) SetCookie(domainURL string, cookie *http.Cookie) error {
	if !strings.HasPrefix(domainURL, "http") {
		domainURL = "https://" + domainURL
	}

	parsedURL, err := url.Parse(domainURL)
	if err != nil {
		return fmt.Errorf("Cookie設定のためのURL解析に失敗しました: %w", err)
	}

	c.jar.SetCookies(parsedURL, []*http.Cookie{cookie})
	return nil
}

// Get は、設定済みのCookieを使って指定されたURLにGETリクエストを送信し、
// レスポンスボディを文字列として返します。
func (c *Client) Get(ctx context.Context, reqURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("GETリクエストの作成に失敗しました (%s): %w", reqURL, err)
	}
	return c.do(req)
}

// PostForm は、フォームデータをPOSTしてレスポンスボディを文字列として返します。
func (c *Client) PostForm(ctx context.Context, reqURL string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("POSTリクエストの作成に失敗しました (%s): %w", reqURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (string, error) {
	reqURL := req.URL.String()

	// ドメインごとのレートリミッターを取得し、待機
	limiter := c.getLimiterForHost(req.URL.Hostname())
	if err := limiter.Wait(req.Context()); err != nil {
		return "", fmt.Errorf("レートリミッター待機中にエラーが発生しました: %w", err)
	}

	for key, value := range c.defaultHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeRequest(req.Method, "error", start)
		return "", fmt.Errorf("%sリクエストの送信に失敗しました (%s): %w", req.Method, reqURL, err)
	}
	defer resp.Body.Close()
	observeRequest(req.Method, fmt.Sprint(resp.StatusCode), start)

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        reqURL,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}

	return body, nil
}

// decodeBody は、Content-Typeのcharsetに従ってボディをUTF-8に変換します。
// charsetが無い、または未知の場合はそのまま読み込みます。
func decodeBody(r io.Reader, contentType string) (string, error) {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if name := params["charset"]; name != "" && !strings.EqualFold(name, "utf-8") {
			if enc, err := htmlindex.Get(name); err == nil {
				r = transform.NewReader(r, enc.NewDecoder())
			}
		}
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// getLimiterForHost は、指定されたホスト名に対応するレートリミッターを返します。
// 存在しない場合は新しく生成します。
func (c *Client) getLimiterForHost(host string) *rate.Limiter {
	c.rateLimitersMutex.Lock()
	defer c.rateLimitersMutex.Unlock()

	if limiter, exists := c.rateLimiters[host]; exists {
		return limiter
	}

	// 設定された間隔、またはデフォルトの間隔で新しいリミッターを生成
	intervalMillis := defaultIntervalMillis
	if val, ok := c.perDomainIntervals[host]; ok && val > 0 {
		intervalMillis = val
	}

	limit := rate.Every(time.Duration(intervalMillis) * time.Millisecond)
	newLimiter := rate.NewLimiter(limit, 1) // バーストは1に設定
	c.rateLimiters[host] = newLimiter
	return newLimiter
}
