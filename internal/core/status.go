// Package core は、フォーラムのスレッド一覧取得とタスク実行の中核となるロジックを実装します。
package core

import (
	"sort"
	"sync"
	"time"
)

// TaskState はタスクの現在の状態を表すenumです。
type TaskState int

const (
	StateIdle     TaskState = iota // アイドル
	StateRunning                   // 実行中
	StateWatching                  // 監視中（次回実行待ち）
	StateError                     // エラー
)

// String は TaskState を人間可読な文字列に変換します。
func (s TaskState) String() string {
	switch s {
	case StateIdle:
		return "アイドル"
	case StateRunning:
		return "実行中"
	case StateWatching:
		return "監視中"
	case StateError:
		return "エラー"
	default:
		return "不明"
	}
}

// MarshalText は、状態をJSON出力用の文字列にします。
func (s TaskState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TaskStatus は、タスクの直近の実行結果です。
type TaskStatus struct {
	TaskName       string    `json:"task_name"`
	State          TaskState `json:"state"`
	LastRun        time.Time `json:"last_run"`
	ThreadCount    int       `json:"thread_count"`
	NewThreads     int       `json:"new_threads"`
	UpdatedThreads int       `json:"updated_threads"`
	LastError      string    `json:"last_error,omitempty"`
}

// StatusBoard は、全タスクの状態を保持します。複数のgoroutineから安全に使用できます。
type StatusBoard struct {
	mu       sync.RWMutex
	statuses map[string]TaskStatus
}

// NewStatusBoard は、空の StatusBoard を作成します。
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{statuses: make(map[string]TaskStatus)}
}

// SetState は、タスクの状態のみを更新します。
func (b *StatusBoard) SetState(taskName string, state TaskState) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.statuses[taskName]
	st.TaskName = taskName
	st.State = state
	b.statuses[taskName] = st
}

// Record は、1回の実行結果を記録します。
func (b *StatusBoard) Record(status TaskStatus) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[status.TaskName] = status
}

// Snapshot は、タスク名順に並べた全タスクの状態を返します。
func (b *StatusBoard) Snapshot() []TaskStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TaskStatus, 0, len(b.statuses))
	for _, st := range b.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskName < out[j].TaskName })
	return out
}
