package core

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"GoWikidotForum/internal/model"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// 出力形式
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

// threadRecord は、出力ファイル上のスレッドの表現です。
type threadRecord struct {
	ID          int        `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	CreatedBy   model.User `json:"created_by" yaml:"created_by"`
	CreatedAt   string     `json:"created_at" yaml:"created_at"`
	PostCount   int        `json:"post_count" yaml:"post_count"`
	CategoryID  int        `json:"category_id,omitempty" yaml:"category_id,omitempty"`
	URL         string     `json:"url" yaml:"url"`
}

type listingDocument struct {
	Site    string         `json:"site" yaml:"site"`
	Count   int            `json:"count" yaml:"count"`
	Threads []threadRecord `json:"threads" yaml:"threads"`
}

func toListingDocument(collection *model.ThreadCollection) listingDocument {
	doc := listingDocument{
		Site:    collection.Site().UnixName,
		Count:   collection.Len(),
		Threads: make([]threadRecord, 0, collection.Len()),
	}
	for _, th := range collection.All() {
		rec := threadRecord{
			ID:          th.ID,
			Title:       th.Title,
			Description: th.Description,
			CreatedBy:   th.CreatedBy,
			CreatedAt:   th.CreatedAt.UTC().Format(time.RFC3339),
			PostCount:   th.PostCount,
			URL:         th.URL(),
		}
		if th.Category != nil {
			rec.CategoryID = th.Category.ID
		}
		doc.Threads = append(doc.Threads, rec)
	}
	return doc
}

// WriteThreads は、スレッド一覧を指定された形式で w に書き出します。
func WriteThreads(w io.Writer, format string, collection *model.ThreadCollection) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(toListingDocument(collection))
	case FormatYAML:
		data, err := yaml.Marshal(toListingDocument(collection))
		if err != nil {
			return fmt.Errorf("YAMLへの変換に失敗しました: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatText:
		for _, th := range collection.All() {
			if _, err := fmt.Fprintln(w, th.String()); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("未対応の出力形式です: %q", format)
	}
}

// ExportThreads は、スレッド一覧をファイルに書き出します。
// 書き込み途中のファイルが残らないよう、一時ファイルに書いてからリネームします。
func ExportThreads(fs afero.Fs, path, format string, collection *model.ThreadCollection) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("出力ディレクトリの作成に失敗しました (path=%s): %w", dir, err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("出力ファイルの作成に失敗しました (path=%s): %w", tmpPath, err)
	}
	if err := WriteThreads(f, format, collection); err != nil {
		f.Close()
		fs.Remove(tmpPath)
		return fmt.Errorf("スレッド一覧の書き出しに失敗しました (path=%s, format=%s): %w", path, format, err)
	}
	if err := f.Close(); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("出力ファイルのクローズに失敗しました (path=%s): %w", tmpPath, err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("出力ファイルのリネームに失敗しました (path=%s): %w", path, err)
	}
	return nil
}
