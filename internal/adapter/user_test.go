package adapter

import (
	"errors"
	"testing"
	"time"

	"GoWikidotForum/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectFirst(t *testing.T, html, selector string) *goquery.Selection {
	t.Helper()
	doc, err := NewDocumentFromString(html)
	require.NoError(t, err)
	sel := doc.Find(selector).First()
	require.Equal(t, 1, sel.Length(), "要素 %s が見つかりません", selector)
	return sel
}

func TestParseUser(t *testing.T) {
	tests := []struct {
		name string
		html string
		want model.User
	}{
		{
			name: "登録ユーザー",
			html: `<span class="printuser avatarhover"><a href="http://www.wikidot.com/user:info/alice" onclick="WIKIDOT.page.listeners.userInfo(42); return false;"><img class="small" src="x.png"/></a><a href="http://www.wikidot.com/user:info/alice" onclick="WIKIDOT.page.listeners.userInfo(42); return false;">Alice</a></span>`,
			want: model.User{Kind: model.UserRegistered, ID: 42, Name: "Alice", UnixName: "alice"},
		},
		{
			name: "削除済みユーザー",
			html: `<span class="printuser deleted" data-id="99"><img class="small" src="a16.png"/>(account deleted)</span>`,
			want: model.User{Kind: model.UserDeleted, ID: 99},
		},
		{
			name: "匿名ユーザー",
			html: `<span class="printuser anonymous"><a href="javascript:;">Anonymous <span class="ip">(198.51.100.7)</span></a></span>`,
			want: model.User{Kind: model.UserAnonymous, IP: "198.51.100.7"},
		},
		{
			name: "Wikidotシステムユーザー",
			html: `<span class="printuser">Wikidot</span>`,
			want: model.User{Kind: model.UserWikidot, Name: "Wikidot"},
		},
		{
			name: "ゲスト",
			html: `<span class="printuser avatarhover"><img class="small" src="http://www.gravatar.com/avatar.php?gravatar_id=abc"/>Guest Name</span>`,
			want: model.User{Kind: model.UserGuest, Name: "Guest Name", AvatarURL: "http://www.gravatar.com/avatar.php?gravatar_id=abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUser(selectFirst(t, tt.html, "span.printuser"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUser_Unrecognized(t *testing.T) {
	_, err := ParseUser(selectFirst(t, `<span class="printuser">someone</span>`, "span.printuser"))
	var noElem *NoElementError
	assert.True(t, errors.As(err, &noElem))
}

func TestParseOdate(t *testing.T) {
	got, err := ParseOdate(selectFirst(t, `<span class="odate time_1234567890 format_%25e">13 Feb 2009</span>`, "span.odate"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2009, 2, 13, 23, 31, 30, 0, time.UTC), got)
}

func TestParseOdate_Invalid(t *testing.T) {
	_, err := ParseOdate(selectFirst(t, `<span class="odate">13 Feb 2009</span>`, "span.odate"))
	var noElem *NoElementError
	assert.True(t, errors.As(err, &noElem))

	_, err = ParseOdate(selectFirst(t, `<span class="odate time_abc">x</span>`, "span.odate"))
	assert.Error(t, err)
}
