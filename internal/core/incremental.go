package core

import (
	"context"
	"time"

	"GoWikidotForum/internal/model"
	"GoWikidotForum/internal/storage"
)

// SnapshotStore は、前回取得時のスレッド一覧を保存・読み込みする永続化層です。
type SnapshotStore interface {
	LoadCategory(ctx context.Context, site string, categoryID int) (map[int]storage.ThreadSnapshot, error)
	SaveCategory(ctx context.Context, site string, categoryID int, threads []model.ForumThread, seenAt time.Time) error
}

// ThreadChanges は、前回のスナップショットと比較した差分です。
type ThreadChanges struct {
	New     []model.ForumThread // 前回存在しなかったスレッド
	Updated []model.ForumThread // 投稿数が増えたスレッド
}

// NeedsUpdate は、スレッドが前回から更新されているかどうかを判定します。
func NeedsUpdate(snapshot *storage.ThreadSnapshot, currentPostCount int) bool {
	if snapshot == nil {
		return true // 初回
	}
	return currentPostCount > snapshot.PostCount
}

// DiffThreads は、現在のスレッド一覧を前回のスナップショットと比較します。
// 結果はスレッド一覧と同じ順序で並びます。
func DiffThreads(previous map[int]storage.ThreadSnapshot, threads []model.ForumThread) ThreadChanges {
	var changes ThreadChanges
	for _, th := range threads {
		snap, ok := previous[th.ID]
		if !ok {
			changes.New = append(changes.New, th)
			continue
		}
		if NeedsUpdate(&snap, th.PostCount) {
			changes.Updated = append(changes.Updated, th)
		}
	}
	return changes
}
