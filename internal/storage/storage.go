// Package storage は、カテゴリごとのスレッド一覧のスナップショットをSQLiteに保存します。
// 前回取得時との差分（新規スレッド・投稿数の増加）を検出するために使用します。
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"GoWikidotForum/internal/model"

	_ "modernc.org/sqlite"
)

// ThreadSnapshot は、前回取得時のスレッドの状態です。
type ThreadSnapshot struct {
	ThreadID  int
	Title     string
	PostCount int
	LastSeen  time.Time
}

// Store は、SQLiteを使ったスナップショットの永続化を提供します。
type Store struct {
	db *sql.DB
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS thread_snapshots (
	site TEXT NOT NULL,
	category_id INTEGER NOT NULL,
	thread_id INTEGER NOT NULL,
	title TEXT,
	post_count INTEGER,
	last_seen INTEGER,
	PRIMARY KEY (site, category_id, thread_id)
);
`

// Open は、dbPathのデータベースを開き、テーブルが無ければ作成します。
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベースを開けませんでした (path=%s): %w", dbPath, err)
	}
	// 全タスクで共有するため、書き込みは1接続に直列化する
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("busy_timeoutの設定に失敗しました: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("WALモードの設定に失敗しました: %w", err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("テーブルの作成に失敗しました: %w", err)
	}

	return &Store{db: db}, nil
}

// Close は、データベース接続を閉じます。
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadCategory は、カテゴリの前回のスナップショットをスレッドIDをキーにして返します。
// 保存されていない場合は空のマップを返します。
func (s *Store) LoadCategory(ctx context.Context, site string, categoryID int) (map[int]ThreadSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, title, post_count, last_seen FROM thread_snapshots WHERE site = ? AND category_id = ?`,
		site, categoryID)
	if err != nil {
		return nil, fmt.Errorf("スナップショットの読み込みに失敗しました (site=%s, category_id=%d): %w", site, categoryID, err)
	}
	defer rows.Close()

	snapshots := make(map[int]ThreadSnapshot)
	for rows.Next() {
		var snap ThreadSnapshot
		var lastSeen int64
		if err := rows.Scan(&snap.ThreadID, &snap.Title, &snap.PostCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("スナップショットの読み込みに失敗しました: %w", err)
		}
		snap.LastSeen = time.Unix(lastSeen, 0).UTC()
		snapshots[snap.ThreadID] = snap
	}
	return snapshots, rows.Err()
}

// SaveCategory は、カテゴリのスナップショットを現在のスレッド一覧で置き換えます。
func (s *Store) SaveCategory(ctx context.Context, site string, categoryID int, threads []model.ForumThread, seenAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM thread_snapshots WHERE site = ? AND category_id = ?`, site, categoryID); err != nil {
		return fmt.Errorf("古いスナップショットの削除に失敗しました (site=%s, category_id=%d): %w", site, categoryID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO thread_snapshots (site, category_id, thread_id, title, post_count, last_seen) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("INSERT文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, th := range threads {
		if _, err := stmt.ExecContext(ctx, site, categoryID, th.ID, th.Title, th.PostCount, seenAt.Unix()); err != nil {
			return fmt.Errorf("スナップショットの保存に失敗しました (thread_id=%d): %w", th.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}
