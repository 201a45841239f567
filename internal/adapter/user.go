package adapter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"GoWikidotForum/internal/model"

	"github.com/PuerkitoBio/goquery"
)

var (
	// onclick="WIKIDOT.page.listeners.userInfo(1234); return false;"
	userInfoPattern = regexp.MustCompile(`userInfo\((\d+)\)`)
	// href="http://www.wikidot.com/user:info/unix-name"
	userUnixNamePattern = regexp.MustCompile(`user:info/([^/?#]+)`)
)

// ParseUser は、span.printuser要素からユーザーを判別します。
func ParseUser(sel *goquery.Selection) (model.User, error) {
	switch {
	case sel.HasClass("deleted"):
		raw, ok := sel.Attr("data-id")
		if !ok {
			return model.User{}, missing("Deleted user id is not found")
		}
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return model.User{}, fmt.Errorf("削除済みユーザーIDの変換に失敗しました (data-id=%s): %w", raw, err)
		}
		return model.User{Kind: model.UserDeleted, ID: id}, nil

	case sel.HasClass("anonymous"):
		ipElem := sel.Find("span.ip").First()
		if ipElem.Length() == 0 {
			return model.User{}, missing("Anonymous user ip is not found")
		}
		ip := strings.NewReplacer("(", "", ")", "").Replace(ipElem.Text())
		return model.User{Kind: model.UserAnonymous, IP: strings.TrimSpace(ip)}, nil

	case strings.TrimSpace(sel.Text()) == "Wikidot":
		return model.User{Kind: model.UserWikidot, Name: "Wikidot"}, nil
	}

	anchors := sel.Find("a")
	last := anchors.Last()
	onclick, hasOnclick := last.Attr("onclick")

	// ゲストはGravatar画像のみでuserInfoリンクを持たない
	if !hasOnclick || !userInfoPattern.MatchString(onclick) {
		img := sel.Find("img").First()
		if img.Length() == 0 {
			return model.User{}, missing("User link is not found")
		}
		avatar, _ := img.Attr("src")
		return model.User{
			Kind:      model.UserGuest,
			Name:      strings.TrimSpace(sel.Text()),
			AvatarURL: avatar,
		}, nil
	}

	id, err := strconv.Atoi(userInfoPattern.FindStringSubmatch(onclick)[1])
	if err != nil {
		return model.User{}, fmt.Errorf("ユーザーIDの変換に失敗しました (onclick=%s): %w", onclick, err)
	}

	user := model.User{
		Kind: model.UserRegistered,
		ID:   id,
		Name: last.Text(),
	}
	if href, ok := last.Attr("href"); ok {
		if m := userUnixNamePattern.FindStringSubmatch(href); m != nil {
			user.UnixName = m[1]
		}
	}
	return user, nil
}
