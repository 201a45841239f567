package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"GoWikidotForum/internal/config"
	"GoWikidotForum/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func testSettings() config.NetworkSettings {
	return config.NetworkSettings{
		UserAgent:               "gwf-test",
		PerDomainIntervalMillis: map[string]int{"127.0.0.1": 1},
		RetryCount:              2,
		RetryWaitMillis:         1,
		MaxConcurrentRequests:   3,
	}
}

func siteFor(server *httptest.Server) *model.Site {
	return &model.Site{UnixName: "test", Domain: strings.TrimPrefix(server.URL, "http://")}
}

func TestClient_CookieIntegration(t *testing.T) {
	// 1. Arrange (準備) - ダミーサーバーの構築
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "abc" {
			http.Error(w, "Cookie 'session' not found", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "gwf-test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Success"))
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)
	require.NoError(t, client.SetCookie(server.URL, &http.Cookie{Name: "session", Value: "abc", Path: "/"}))

	// 2. Act (実行)
	body, err := client.Get(context.Background(), server.URL)

	// 3. Assert (検証)
	require.NoError(t, err)
	assert.Equal(t, "Success", body)
}

func TestClient_Get_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)

	_, err = client.Get(context.Background(), server.URL)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, httpErr.IsRetryable())
}

func TestDecodeBody_ShiftJIS(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String("フォーラム")
	require.NoError(t, err)

	got, err := decodeBody(strings.NewReader(encoded), "text/html; charset=Shift_JIS")
	require.NoError(t, err)
	assert.Equal(t, "フォーラム", got)

	got, err = decodeBody(strings.NewReader("plain"), "")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func writeModuleResponse(w http.ResponseWriter, status, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(ModuleResponse{Status: status, Body: body})
}

func TestModuleRequest_PreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/ajax-module-connector.php", r.URL.Path)
		assert.Equal(t, "forum/ForumViewCategoryModule", r.PostForm.Get("moduleName"))

		cookie, err := r.Cookie("wikidot_token7")
		if assert.NoError(t, err) {
			assert.NotEmpty(t, cookie.Value)
			assert.Equal(t, cookie.Value, r.PostForm.Get("wikidot_token7"))
		}

		// 若いページほど遅く返し、完了順とリクエスト順をずらす
		page, _ := strconv.Atoi(r.PostForm.Get("p"))
		time.Sleep(time.Duration(10-page) * 3 * time.Millisecond)
		writeModuleResponse(w, "ok", fmt.Sprintf("page-%d", page))
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)

	var requests []ModuleRequest
	for p := 2; p <= 6; p++ {
		requests = append(requests, ModuleRequest{"p": strconv.Itoa(p), "c": "1", "moduleName": "forum/ForumViewCategoryModule"})
	}

	responses, err := client.ModuleRequest(context.Background(), siteFor(server), requests)
	require.NoError(t, err)
	require.Len(t, responses, 5)
	for i, resp := range responses {
		assert.Equal(t, fmt.Sprintf("page-%d", i+2), resp.Body)
	}
}

func TestModuleRequest_RetriesTryAgain(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeModuleResponse(w, "try_again", "")
			return
		}
		writeModuleResponse(w, "ok", "body")
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)

	responses, err := client.ModuleRequest(context.Background(), siteFor(server), []ModuleRequest{{"moduleName": "Empty"}})
	require.NoError(t, err)
	assert.Equal(t, "body", responses[0].Body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestModuleRequest_StatusErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"no_permission","message":"forbidden"}`))
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)

	_, err = client.ModuleRequest(context.Background(), siteFor(server), []ModuleRequest{{"moduleName": "Empty"}})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "no_permission", statusErr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestModuleRequest_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)

	_, err = client.ModuleRequest(context.Background(), siteFor(server), []ModuleRequest{{"moduleName": "Empty"}})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, int32(3), calls.Load())
}

func TestModuleRequest_OneFailureFailsBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("p") == "3" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		writeModuleResponse(w, "ok", "body")
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)

	responses, err := client.ModuleRequest(context.Background(), siteFor(server), []ModuleRequest{{"p": "2"}, {"p": "3"}, {"p": "4"}})
	assert.Error(t, err)
	assert.Nil(t, responses)
}

func TestSiteFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeModuleResponse(w, "ok", "<p>hi</p>")
	}))
	defer server.Close()

	client, err := NewClient(testSettings())
	require.NoError(t, err)
	fetcher := &SiteFetcher{Client: client, Site: siteFor(server)}

	responses, err := fetcher.ModuleRequest(context.Background(), []ModuleRequest{{"moduleName": "Empty"}})
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", responses[0].Body)
}
