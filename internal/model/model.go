// Package model は、Wikidotのサイト・フォーラムカテゴリ・ユーザー・スレッドを表す
// データ型を定義します。
package model

import (
	"fmt"
	"time"
)

// Site は、Wikidot上の単一サイトを表します。
type Site struct {
	ID       int
	Title    string
	UnixName string // 例: "scp-jp"
	Domain   string // 例: "scp-jp.wikidot.com"
	SSL      bool
}

// NewSite は、UnixNameから標準的なwikidot.comドメインのSiteを生成します。
func NewSite(unixName string, ssl bool) *Site {
	return &Site{
		UnixName: unixName,
		Domain:   unixName + ".wikidot.com",
		SSL:      ssl,
	}
}

// URL は、サイトのベースURLを返します。
func (s *Site) URL() string {
	scheme := "http"
	if s.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.Domain)
}

// AjaxURL は、ajax-module-connector.php のURLを返します。
func (s *Site) AjaxURL() string {
	return s.URL() + "/ajax-module-connector.php"
}

func (s *Site) String() string {
	return fmt.Sprintf("Site(unix_name=%s, domain=%s)", s.UnixName, s.Domain)
}

// ForumCategory は、フォーラム内のカテゴリを表します。
type ForumCategory struct {
	Site  *Site
	ID    int
	Title string
}

func (c *ForumCategory) String() string {
	return fmt.Sprintf("ForumCategory(id=%d, title=%s)", c.ID, c.Title)
}

// UserKind は、printuser要素から判別されたユーザーの種別です。
type UserKind string

const (
	UserRegistered UserKind = "registered"
	UserDeleted    UserKind = "deleted"
	UserAnonymous  UserKind = "anonymous"
	UserGuest      UserKind = "guest"
	UserWikidot    UserKind = "wikidot"
)

// User は、スレッド作成者などとして参照されるユーザーです。
// 種別によって有効なフィールドが異なります。
type User struct {
	Kind      UserKind `json:"kind" yaml:"kind"`
	ID        int      `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	UnixName  string   `json:"unix_name,omitempty" yaml:"unix_name,omitempty"`
	IP        string   `json:"ip,omitempty" yaml:"ip,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
}

func (u User) String() string {
	switch u.Kind {
	case UserRegistered:
		return fmt.Sprintf("User(id=%d, name=%s, unix_name=%s)", u.ID, u.Name, u.UnixName)
	case UserDeleted:
		return fmt.Sprintf("DeletedUser(id=%d)", u.ID)
	case UserAnonymous:
		return fmt.Sprintf("AnonymousUser(ip=%s)", u.IP)
	case UserGuest:
		return fmt.Sprintf("GuestUser(name=%s)", u.Name)
	case UserWikidot:
		return "WikidotUser()"
	default:
		return "User(unknown)"
	}
}

// ForumThread は、カテゴリのスレッド一覧から抽出されたスレッドの基本情報を保持します。
// 値として扱い、生成後に変更しません。
type ForumThread struct {
	Site        *Site
	ID          int
	Title       string
	Description string
	CreatedBy   User
	CreatedAt   time.Time
	PostCount   int
	Category    *ForumCategory // カテゴリ外で取得された場合はnil
}

func (t ForumThread) String() string {
	return fmt.Sprintf("ForumThread(id=%d, title=%s, description=%s, created_by=%s, created_at=%s, post_count=%d)",
		t.ID, t.Title, t.Description, t.CreatedBy, t.CreatedAt.Format(time.RFC3339), t.PostCount)
}

// URL は、スレッドページのURLを返します。
func (t ForumThread) URL() string {
	if t.Site == nil {
		return fmt.Sprintf("/forum/t-%d", t.ID)
	}
	return fmt.Sprintf("%s/forum/t-%d", t.Site.URL(), t.ID)
}
