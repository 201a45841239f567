package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"GoWikidotForum/internal/adapter"
	"GoWikidotForum/internal/model"
	"GoWikidotForum/internal/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher は、ページ番号ごとに用意したHTMLを返し、呼び出しを記録します。
type fakeFetcher struct {
	pages map[string]string
	calls [][]network.ModuleRequest
	err   error
}

func (f *fakeFetcher) ModuleRequest(_ context.Context, requests []network.ModuleRequest) ([]network.ModuleResponse, error) {
	f.calls = append(f.calls, requests)
	if f.err != nil {
		return nil, f.err
	}
	responses := make([]network.ModuleResponse, 0, len(requests))
	for _, req := range requests {
		body, ok := f.pages[req["p"]]
		if !ok {
			return nil, fmt.Errorf("unexpected page %s", req["p"])
		}
		responses = append(responses, network.ModuleResponse{Status: "ok", Body: body})
	}
	return responses, nil
}

func threadRow(id int) string {
	return fmt.Sprintf(`<tr>
<td class="name"><div class="title"><a href="/forum/t-%d/thread-%d">Thread %d</a></div><div class="description">About %d</div></td>
<td class="started"><span class="printuser"><a href="http://www.wikidot.com/user:info/u%d" onclick="WIKIDOT.page.listeners.userInfo(%d); return false;">U%d</a></span><span class="odate time_%d">date</span></td>
<td class="posts">%d</td>
</tr>`, id, id, id, id, id, id, id, 1600000000+id, id%7)
}

// categoryPage は、ForumViewCategoryModule のHTMLを組み立てます。lastPage が0ならページャーを出力しません。
func categoryPage(lastPage int, ids ...int) string {
	var b strings.Builder
	b.WriteString(`<div class="forum-category-box">`)
	if lastPage > 0 {
		b.WriteString(`<div class="pager"><span class="pager-no">page 1 of ` + fmt.Sprint(lastPage) + `</span><span class="current">1</span>`)
		for p := 2; p <= lastPage; p++ {
			fmt.Fprintf(&b, `<span class="target"><a href="javascript:;">%d</a></span>`, p)
		}
		if lastPage == 1 {
			b.WriteString(`<span class="target"><a href="javascript:;">1</a></span>`)
		}
		b.WriteString(`<span class="target"><a href="javascript:;">next &raquo;</a></span></div>`)
	}
	b.WriteString(`<table class="table"><tr class="head"><td>Thread name</td><td>Started</td><td>Posts</td></tr>`)
	for _, id := range ids {
		b.WriteString(threadRow(id))
	}
	b.WriteString(`</table></div>`)
	return b.String()
}

func testCategory() *model.ForumCategory {
	site := model.NewSite("test", true)
	return &model.ForumCategory{Site: site, ID: 321, Title: "General"}
}

func threadIDs(c *model.ThreadCollection) []int {
	var ids []int
	for _, th := range c.All() {
		ids = append(ids, th.ID)
	}
	return ids
}

func TestAcquireAllInCategory_SinglePage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"1": categoryPage(0, 10, 11)}}
	category := testCategory()

	collection, err := AcquireAllInCategory(context.Background(), fetcher, category, AcquireOptions{})

	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, threadIDs(collection))
	assert.Same(t, category.Site, collection.Site())
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, network.ModuleRequest{"p": "1", "c": "321", "moduleName": "forum/ForumViewCategoryModule"}, fetcher.calls[0][0])
}

func TestAcquireAllInCategory_EmptyCategory(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"1": categoryPage(0)}}
	category := testCategory()

	collection, err := AcquireAllInCategory(context.Background(), fetcher, category, AcquireOptions{})

	require.NoError(t, err)
	assert.Equal(t, 0, collection.Len())
	assert.Same(t, category.Site, collection.Site())
}

func TestAcquireAllInCategory_MultiPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"1": categoryPage(3, 10, 11),
		"2": categoryPage(3, 12),
		"3": categoryPage(3, 13),
	}}
	category := testCategory()

	collection, err := AcquireAllInCategory(context.Background(), fetcher, category, AcquireOptions{})

	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12, 13}, threadIDs(collection))
	// 全ページのスレッドにカテゴリを付与する
	for _, th := range collection.All() {
		assert.Same(t, category, th.Category)
		assert.Same(t, category.Site, th.Site)
	}
}

func TestAcquireAllInCategory_BatchesRemainingPages(t *testing.T) {
	pages := map[string]string{"1": categoryPage(5, 1, 2)}
	for p := 2; p <= 5; p++ {
		pages[fmt.Sprint(p)] = categoryPage(5, p*10, p*10+1)
	}
	fetcher := &fakeFetcher{pages: pages}

	collection, err := AcquireAllInCategory(context.Background(), fetcher, testCategory(), AcquireOptions{})

	require.NoError(t, err)
	require.Len(t, fetcher.calls, 2, "1ページ目と残りページのバッチの2回だけ送信するべきです")
	var batchPages []string
	for _, req := range fetcher.calls[1] {
		batchPages = append(batchPages, req["p"])
	}
	assert.Equal(t, []string{"2", "3", "4", "5"}, batchPages)
	assert.Equal(t, []int{1, 2, 20, 21, 30, 31, 40, 41, 50, 51}, threadIDs(collection))
}

func TestAcquireAllInCategory_PagerWithLastPageOne(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"1": categoryPage(1, 10)}}

	collection, err := AcquireAllInCategory(context.Background(), fetcher, testCategory(), AcquireOptions{})

	require.NoError(t, err)
	assert.Equal(t, []int{10}, threadIDs(collection))
	assert.Len(t, fetcher.calls, 1)
}

func TestAcquireAllInCategory_MissingDescriptionFailsWhole(t *testing.T) {
	broken := strings.Replace(categoryPage(3, 13), `<div class="description">About 13</div>`, "", 1)
	fetcher := &fakeFetcher{pages: map[string]string{
		"1": categoryPage(3, 10, 11),
		"2": categoryPage(3, 12),
		"3": broken,
	}}

	collection, err := AcquireAllInCategory(context.Background(), fetcher, testCategory(), AcquireOptions{})

	require.Error(t, err)
	assert.Nil(t, collection)
	var noElem *adapter.NoElementError
	require.True(t, errors.As(err, &noElem))
	assert.Equal(t, "Description element is not found", noElem.Field)
	assert.Contains(t, err.Error(), "ページ 3")
}

func TestAcquireAllInCategory_FetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}

	collection, err := AcquireAllInCategory(context.Background(), fetcher, testCategory(), AcquireOptions{})

	assert.Error(t, err)
	assert.Nil(t, collection)
}

// shortFetcher は、バッチに対して足りない数のレスポンスを返します。
type shortFetcher struct{ fakeFetcher }

func (f *shortFetcher) ModuleRequest(ctx context.Context, requests []network.ModuleRequest) ([]network.ModuleResponse, error) {
	responses, err := f.fakeFetcher.ModuleRequest(ctx, requests)
	if err != nil || len(responses) < 2 {
		return responses, err
	}
	return responses[:1], nil
}

func TestAcquireAllInCategory_ResponseCountMismatch(t *testing.T) {
	fetcher := &shortFetcher{fakeFetcher{pages: map[string]string{
		"1": categoryPage(3, 10),
		"2": categoryPage(3, 12),
		"3": categoryPage(3, 13),
	}}}

	_, err := AcquireAllInCategory(context.Background(), fetcher, testCategory(), AcquireOptions{})
	assert.Error(t, err)
}

func TestAcquireAllInCategory_RequiresSite(t *testing.T) {
	_, err := AcquireAllInCategory(context.Background(), &fakeFetcher{}, &model.ForumCategory{ID: 1}, AcquireOptions{})
	assert.Error(t, err)
}
