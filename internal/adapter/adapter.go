// Package adapter は、Wikidotが返すHTML断片からデータを抽出する処理をまとめます。
// サイト側のマークアップに依存するセレクタや正規表現はすべてこのパッケージに閉じ込め、
// マークアップが変わった場合の修正箇所を一か所にします。
package adapter

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NoElementError は、期待したHTML要素や属性が見つからなかったことを表します。
type NoElementError struct {
	Field string
}

func (e *NoElementError) Error() string {
	return e.Field
}

func missing(field string) error {
	return &NoElementError{Field: field}
}

// NewDocumentFromString は、HTML文字列からgoquery.Documentを生成するヘルパー関数です。
func NewDocumentFromString(body string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTMLの解析に失敗しました (size=%d bytes): %w", len(body), err)
	}
	return doc, nil
}
