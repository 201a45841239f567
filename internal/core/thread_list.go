package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"

	"GoWikidotForum/internal/adapter"
	"GoWikidotForum/internal/model"
	"GoWikidotForum/internal/network"
)

const forumCategoryModule = "forum/ForumViewCategoryModule"

// PageFetcher は、モジュールリクエストをまとめて送信し、
// リクエストと同じ順序でレスポンスを返す通信層です。
type PageFetcher interface {
	ModuleRequest(ctx context.Context, requests []network.ModuleRequest) ([]network.ModuleResponse, error)
}

// AcquireOptions は、AcquireAllInCategory の任意設定です。
type AcquireOptions struct {
	Logger *log.Logger // nilの場合は出力しない
}

func categoryPageRequest(categoryID, page int) network.ModuleRequest {
	return network.ModuleRequest{
		"p":          strconv.Itoa(page),
		"c":          strconv.Itoa(categoryID),
		"moduleName": forumCategoryModule,
	}
}

// AcquireAllInCategory は、カテゴリ内の全ページを取得し、スレッドをページ順・行順に並べて返します。
// 1ページ目を取得してページャーから最終ページを判定し、2ページ目以降は一度のバッチで取得します。
// いずれかのページの取得や解析に失敗した場合は、部分的な結果を返さずにエラーを返します。
func AcquireAllInCategory(ctx context.Context, fetcher PageFetcher, category *model.ForumCategory, opts AcquireOptions) (*model.ThreadCollection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if category == nil || category.Site == nil {
		return nil, fmt.Errorf("カテゴリとそのサイトを指定する必要があります")
	}
	site := category.Site

	firstResponses, err := fetcher.ModuleRequest(ctx, []network.ModuleRequest{categoryPageRequest(category.ID, 1)})
	if err != nil {
		return nil, fmt.Errorf("カテゴリの1ページ目の取得に失敗しました (category_id=%d): %w", category.ID, err)
	}
	if len(firstResponses) != 1 {
		return nil, fmt.Errorf("1ページ目のレスポンス数が不正です (category_id=%d, expected=1, actual=%d)", category.ID, len(firstResponses))
	}

	firstDoc, err := adapter.NewDocumentFromString(firstResponses[0].Body)
	if err != nil {
		return nil, fmt.Errorf("ページ 1 の解析に失敗しました (category_id=%d): %w", category.ID, err)
	}
	threads, err := adapter.ParseThreadList(firstDoc, site, category)
	if err != nil {
		return nil, fmt.Errorf("ページ 1 の解析に失敗しました (category_id=%d): %w", category.ID, err)
	}

	lastPage, hasPager, err := adapter.ParseLastPage(firstDoc)
	if err != nil {
		return nil, fmt.Errorf("ページャーの解析に失敗しました (category_id=%d): %w", category.ID, err)
	}
	if !hasPager || lastPage <= 1 {
		logger.Printf("DEBUG: カテゴリ %d は1ページのみです (threads=%d)", category.ID, len(threads))
		return model.NewThreadCollection(site, threads)
	}

	logger.Printf("DEBUG: カテゴリ %d の残り %d ページを取得します", category.ID, lastPage-1)

	requests := make([]network.ModuleRequest, 0, lastPage-1)
	for page := 2; page <= lastPage; page++ {
		requests = append(requests, categoryPageRequest(category.ID, page))
	}

	responses, err := fetcher.ModuleRequest(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの2ページ目以降の取得に失敗しました (category_id=%d, last_page=%d): %w", category.ID, lastPage, err)
	}
	if len(responses) != len(requests) {
		return nil, fmt.Errorf("レスポンス数が不正です (category_id=%d, expected=%d, actual=%d)", category.ID, len(requests), len(responses))
	}

	for i, resp := range responses {
		page := i + 2
		doc, err := adapter.NewDocumentFromString(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ページ %d の解析に失敗しました (category_id=%d): %w", page, category.ID, err)
		}
		pageThreads, err := adapter.ParseThreadList(doc, site, category)
		if err != nil {
			return nil, fmt.Errorf("ページ %d の解析に失敗しました (category_id=%d): %w", page, category.ID, err)
		}
		threads = append(threads, pageThreads...)
	}

	logger.Printf("DEBUG: カテゴリ %d から %d 件のスレッドを取得しました (pages=%d)", category.ID, len(threads), lastPage)
	return model.NewThreadCollection(site, threads)
}
