package model

import (
	"errors"
	"iter"
	"strings"
)

// ErrSiteRequired は、サイトを推測できない空のコレクションを生成しようとした場合に返されます。
var ErrSiteRequired = errors.New("スレッドが空のため、サイトを指定する必要があります")

// ThreadCollection は、単一サイトに属するスレッドの順序付きコレクションです。
// 生成後は読み取り専用です。
type ThreadCollection struct {
	site    *Site
	threads []ForumThread
}

// NewThreadCollection は、スレッドのスライスからコレクションを生成します。
// siteがnilの場合は先頭のスレッドのサイトを使用します。
func NewThreadCollection(site *Site, threads []ForumThread) (*ThreadCollection, error) {
	if site == nil {
		if len(threads) == 0 {
			return nil, ErrSiteRequired
		}
		site = threads[0].Site
		if site == nil {
			return nil, ErrSiteRequired
		}
	}

	copied := make([]ForumThread, len(threads))
	copy(copied, threads)

	return &ThreadCollection{site: site, threads: copied}, nil
}

// Site は、コレクションが属するサイトを返します。
func (c *ThreadCollection) Site() *Site {
	return c.site
}

// Len は、スレッド数を返します。
func (c *ThreadCollection) Len() int {
	return len(c.threads)
}

// At は、i番目のスレッドのコピーを返します。
func (c *ThreadCollection) At(i int) ForumThread {
	return c.threads[i]
}

// Threads は、全スレッドを順序を保ったままコピーして返します。
func (c *ThreadCollection) Threads() []ForumThread {
	out := make([]ForumThread, len(c.threads))
	copy(out, c.threads)
	return out
}

// All は、インデックスとスレッドを順に返すイテレータです。
func (c *ThreadCollection) All() iter.Seq2[int, ForumThread] {
	return func(yield func(int, ForumThread) bool) {
		for i, t := range c.threads {
			if !yield(i, t) {
				return
			}
		}
	}
}

// FindByID は、指定IDのスレッドを返します。
func (c *ThreadCollection) FindByID(id int) (ForumThread, bool) {
	for _, t := range c.threads {
		if t.ID == id {
			return t, true
		}
	}
	return ForumThread{}, false
}

func (c *ThreadCollection) String() string {
	var b strings.Builder
	b.WriteString("ThreadCollection[")
	for i, t := range c.threads {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString("]")
	return b.String()
}
