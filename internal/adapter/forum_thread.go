package adapter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"GoWikidotForum/internal/model"

	"github.com/PuerkitoBio/goquery"
)

const (
	threadRowSelector   = "table.table tr.head ~ tr"
	titleSelector       = "div.title a"
	descriptionSelector = "div.description"
	userSelector        = "span.printuser"
	odateSelector       = "span.odate"
	postsSelector       = "td.posts"
	pagerSelector       = "div.pager"
)

// スレッドURL中のID (例: /forum/t-4217/some-thread)
var threadIDPattern = regexp.MustCompile(`t-(\d+)`)

// ParseThreadList は、ForumViewCategoryModuleのHTMLからスレッド一覧を抽出します。
// 1行でも必須要素が欠けていればページ全体をエラーとし、部分的な結果は返しません。
func ParseThreadList(doc *goquery.Document, site *model.Site, category *model.ForumCategory) ([]model.ForumThread, error) {
	var threads []model.ForumThread
	var parseErr error

	doc.Find(threadRowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		thread, err := parseThreadRow(row, site, category)
		if err != nil {
			parseErr = err
			return false
		}
		threads = append(threads, thread)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return threads, nil
}

func parseThreadRow(row *goquery.Selection, site *model.Site, category *model.ForumCategory) (model.ForumThread, error) {
	title := row.Find(titleSelector).First()
	if title.Length() == 0 {
		return model.ForumThread{}, missing("Title element is not found")
	}

	href, ok := title.Attr("href")
	if !ok {
		return model.ForumThread{}, missing("Title href is not found")
	}

	idMatch := threadIDPattern.FindStringSubmatch(href)
	if idMatch == nil {
		return model.ForumThread{}, missing("Thread ID is not found")
	}
	threadID, err := strconv.Atoi(idMatch[1])
	if err != nil {
		return model.ForumThread{}, fmt.Errorf("スレッドIDの変換に失敗しました (href=%s): %w", href, err)
	}
	if threadID <= 0 {
		return model.ForumThread{}, fmt.Errorf("スレッドIDが不正です (href=%s, thread_id=%d)", href, threadID)
	}

	description := row.Find(descriptionSelector).First()
	if description.Length() == 0 {
		return model.ForumThread{}, missing("Description element is not found")
	}
	userElem := row.Find(userSelector).First()
	if userElem.Length() == 0 {
		return model.ForumThread{}, missing("User element is not found")
	}
	odateElem := row.Find(odateSelector).First()
	if odateElem.Length() == 0 {
		return model.ForumThread{}, missing("Odate element is not found")
	}
	postsElem := row.Find(postsSelector).First()
	if postsElem.Length() == 0 {
		return model.ForumThread{}, missing("Posts count element is not found")
	}

	createdBy, err := ParseUser(userElem)
	if err != nil {
		return model.ForumThread{}, fmt.Errorf("作成者の解析に失敗しました (thread_id=%d): %w", threadID, err)
	}
	createdAt, err := ParseOdate(odateElem)
	if err != nil {
		return model.ForumThread{}, fmt.Errorf("作成日時の解析に失敗しました (thread_id=%d): %w", threadID, err)
	}
	postCount, err := strconv.Atoi(strings.TrimSpace(postsElem.Text()))
	if err != nil {
		return model.ForumThread{}, fmt.Errorf("投稿数の変換に失敗しました (thread_id=%d): %w", threadID, err)
	}
	if postCount < 0 {
		return model.ForumThread{}, fmt.Errorf("投稿数が負の値です (thread_id=%d, post_count=%d)", threadID, postCount)
	}

	return model.ForumThread{
		Site:        site,
		ID:          threadID,
		Title:       title.Text(),
		Description: description.Text(),
		CreatedBy:   createdBy,
		CreatedAt:   createdAt,
		PostCount:   postCount,
		Category:    category,
	}, nil
}

// ParseLastPage は、ページャーから最終ページ番号を取得します。
// ページャーが無い場合は found=false を返します。
// 末尾のリンクは「次へ」なので、その一つ前のリンクを最終ページとみなします。
func ParseLastPage(doc *goquery.Document) (last int, found bool, err error) {
	pager := doc.Find(pagerSelector).First()
	if pager.Length() == 0 {
		return 0, false, nil
	}

	anchors := pager.Find("a")
	if anchors.Length() < 2 {
		return 0, true, missing("Pager last page element is not found")
	}

	text := strings.TrimSpace(anchors.Eq(anchors.Length() - 2).Text())
	last, err = strconv.Atoi(text)
	if err != nil {
		return 0, true, fmt.Errorf("最終ページ番号の変換に失敗しました (text=%q): %w", text, err)
	}
	return last, true, nil
}
