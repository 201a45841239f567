package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"GoWikidotForum/internal/model"
)

// ModuleRequest は、ajax-module-connector.php に送るフォームフィールドです。
// 例: {"p": "1", "c": "123", "moduleName": "forum/ForumViewCategoryModule"}
type ModuleRequest map[string]string

// ModuleResponse は、ajax-module-connector.php が返すJSONです。
type ModuleResponse struct {
	Status  string `json:"status"`
	Body    string `json:"body"`
	Message string `json:"message,omitempty"`
}

// StatusError は、ajax応答のstatusが "ok" 以外だったことを表します。
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ajaxモジュールがエラーを返しました (status=%s): %s", e.Status, e.Message)
}

// IsRetryable は、サーバーが再試行を求めているかどうかを返します。
func (e *StatusError) IsRetryable() bool {
	return e.Status == "try_again"
}

// ModuleRequest は、複数のモジュールリクエストを並行して送信し、
// リクエストと同じ順序でレスポンスを返します。
// いずれかが失敗した場合は残りをキャンセルし、エラーのみを返します。
func (c *Client) ModuleRequest(ctx context.Context, site *model.Site, requests []ModuleRequest) ([]ModuleResponse, error) {
	responses := make([]ModuleResponse, len(requests))
	if len(requests) == 0 {
		return responses, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	semaphore := make(chan struct{}, c.maxConcurrent)

	for i, req := range requests {
		wg.Add(1)
		go func(i int, req ModuleRequest) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}

			resp, err := c.moduleRequestWithRetry(ctx, site, req)
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("モジュールリクエストに失敗しました (index=%d, module=%s): %w", i, req["moduleName"], err)
					cancel()
				})
				return
			}
			// 各goroutineは自分のインデックスにだけ書き込むので順序が保たれる
			responses[i] = resp
		}(i, req)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (c *Client) moduleRequestWithRetry(ctx context.Context, site *model.Site, req ModuleRequest) (ModuleResponse, error) {
	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		resp, err := c.moduleRequestOnce(ctx, site, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return ModuleResponse{}, err
		}
		if i < c.retryCount {
			log.Printf("WARNING: モジュールリクエストを再試行します (試行 %d/%d, module=%s): %v", i+1, c.retryCount+1, req["moduleName"], err)
			select {
			case <-ctx.Done():
				return ModuleResponse{}, ctx.Err()
			case <-time.After(c.retryWait):
			}
		}
	}
	return ModuleResponse{}, fmt.Errorf("リトライ上限に達しました (retry_count=%d): %w", c.retryCount, lastErr)
}

func (c *Client) moduleRequestOnce(ctx context.Context, site *model.Site, req ModuleRequest) (ModuleResponse, error) {
	form := url.Values{}
	for k, v := range req {
		form.Set(k, v)
	}
	form.Set("wikidot_token7", c.token7)

	if err := c.SetCookie(site.URL(), &http.Cookie{Name: "wikidot_token7", Value: c.token7, Path: "/"}); err != nil {
		return ModuleResponse{}, err
	}

	body, err := c.PostForm(ctx, site.AjaxURL(), form)
	if err != nil {
		return ModuleResponse{}, err
	}

	var resp ModuleResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return ModuleResponse{}, fmt.Errorf("ajax応答のJSON解析に失敗しました (size=%d bytes): %w", len(body), err)
	}
	if resp.Status != "ok" {
		return ModuleResponse{}, &StatusError{Status: resp.Status, Message: resp.Message}
	}
	return resp, nil
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// ネットワークエラーはリトライ可能とする
	return true
}

// SiteFetcher は、Clientを特定のサイトに束縛し、サイトを意識しない呼び出し側に提供します。
type SiteFetcher struct {
	Client *Client
	Site   *model.Site
}

// ModuleRequest は、束縛されたサイトに対してモジュールリクエストを送信します。
func (f *SiteFetcher) ModuleRequest(ctx context.Context, requests []ModuleRequest) ([]ModuleResponse, error) {
	return f.Client.ModuleRequest(ctx, f.Site, requests)
}
