package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"GoWikidotForum/internal/config"
	"GoWikidotForum/internal/model"
	"GoWikidotForum/internal/network"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
)

const defaultWatchInterval = 15 * time.Minute

// TaskDeps は、タスクの実行に必要な共有コンポーネントです。
type TaskDeps struct {
	Store  SnapshotStore // nilの場合は差分検出を行わない
	Status *StatusBoard  // nilの場合は状態を記録しない
	Fs     afero.Fs      // nilの場合はOSのファイルシステム
}

// ExecuteTask は、単一のタスクの全ライフサイクルを管理・実行します。
// 監視モードでは、watch_schedule (cron式) または watch_interval_ms の間隔で繰り返し実行します。
func ExecuteTask(ctx context.Context, task config.Task, globalNetworkSettings config.NetworkSettings, deps TaskDeps, isWatchMode bool) {
	logger := newTaskLogger(task.TaskName)
	logger.Println("タスクを開始します。")

	// --- コンポーネントの初期化 ---
	client, err := network.NewClient(globalNetworkSettings)
	if err != nil {
		logger.Printf("FATAL: ネットワーククライアントの初期化に失敗しました: %v", err)
		deps.Status.Record(TaskStatus{TaskName: task.TaskName, State: StateError, LastError: err.Error()})
		return
	}
	site := model.NewSite(task.Site, task.UseSSL)
	fetcher := &network.SiteFetcher{Client: client, Site: site}

	runCycle := func() {
		deps.Status.SetState(task.TaskName, StateRunning)
		status, err := RunTaskOnce(ctx, task, site, fetcher, deps, logger)
		if err != nil {
			logger.Printf("ERROR: スレッド一覧の取得に失敗しました: %v。次のサイクルで再試行します。", err)
		}
		if isWatchMode && status.State != StateError {
			status.State = StateWatching
		}
		deps.Status.Record(status)
	}

	switch {
	case !isWatchMode:
		runCycle()
	case task.WatchSchedule != "":
		runWithSchedule(ctx, task.WatchSchedule, runCycle, logger)
	default:
		runWithInterval(ctx, time.Duration(task.WatchIntervalMillis)*time.Millisecond, runCycle, logger)
	}

	logger.Println("タスクを終了します。")
}

// newTaskLogger は、タスク名を接頭辞とするロガーを作成します。
// 出力先は標準ロガーと同じなので、ログファイルへの出力設定も反映されます。
func newTaskLogger(taskName string) *log.Logger {
	return log.New(log.Writer(), fmt.Sprintf("[%s] ", taskName), log.LstdFlags)
}

// runWithSchedule は、cron式に従って run を繰り返し実行します。前回の実行が終わっていない場合はスキップします。
func runWithSchedule(ctx context.Context, schedule string, run func(), logger *log.Logger) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, run); err != nil {
		logger.Printf("FATAL: 監視スケジュールの解析に失敗しました (schedule=%s): %v", schedule, err)
		return
	}

	run()
	logger.Printf("スケジュール '%s' で監視します。", schedule)
	c.Start()
	<-ctx.Done()
	logger.Println("シャットダウンシグナルを受信しました。実行中のサイクルの完了を待機します...")
	<-c.Stop().Done()
}

// runWithInterval は、一定間隔で run を繰り返し実行します。
func runWithInterval(ctx context.Context, interval time.Duration, run func(), logger *log.Logger) {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	for {
		run()
		logger.Printf("次のチェックまで %v 待機します...", interval)
		select {
		case <-ctx.Done():
			logger.Println("シャットダウンシグナルを受信しました。タスクを終了します。")
			return
		case <-time.After(interval):
		}
	}
}

// RunTaskOnce は、タスクのカテゴリを1回取得し、フィルタリング・差分検出・スナップショット保存・出力を行います。
// 返される TaskStatus はエラー時も LastRun と LastError が設定されます。
func RunTaskOnce(ctx context.Context, task config.Task, site *model.Site, fetcher PageFetcher, deps TaskDeps, logger *log.Logger) (TaskStatus, error) {
	status := TaskStatus{TaskName: task.TaskName, State: StateIdle, LastRun: time.Now()}
	fail := func(err error) (TaskStatus, error) {
		status.State = StateError
		status.LastError = err.Error()
		return status, err
	}

	category := &model.ForumCategory{Site: site, ID: task.CategoryID}
	collection, err := AcquireAllInCategory(ctx, fetcher, category, AcquireOptions{Logger: logger})
	if err != nil {
		return fail(fmt.Errorf("カテゴリの取得に失敗しました (site=%s, category_id=%d): %w", site.UnixName, task.CategoryID, err))
	}

	threads := filterThreads(collection.Threads(), task.SearchKeyword, task.ExcludeKeywords)
	status.ThreadCount = len(threads)
	logger.Printf("%d件のスレッドを取得しました (フィルタ後: %d件)。", collection.Len(), len(threads))

	if deps.Store != nil {
		previous, err := deps.Store.LoadCategory(ctx, site.UnixName, task.CategoryID)
		if err != nil {
			return fail(err)
		}
		changes := DiffThreads(previous, threads)
		status.NewThreads = len(changes.New)
		status.UpdatedThreads = len(changes.Updated)

		if len(previous) > 0 {
			for _, th := range changes.New {
				logger.Printf("INFO: 新しいスレッド: %s (%s)", th.Title, th.URL())
			}
			for _, th := range changes.Updated {
				logger.Printf("INFO: 更新されたスレッド: %s (posts=%d)", th.Title, th.PostCount)
			}
		}

		if err := deps.Store.SaveCategory(ctx, site.UnixName, task.CategoryID, threads, status.LastRun); err != nil {
			return fail(err)
		}
	}

	if task.OutputPath != "" {
		filtered, err := model.NewThreadCollection(site, threads)
		if err != nil {
			return fail(err)
		}
		fs := deps.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		if err := ExportThreads(fs, task.OutputPath, task.OutputFormat, filtered); err != nil {
			return fail(err)
		}
		logger.Printf("スレッド一覧を '%s' に出力しました。", task.OutputPath)
	}

	return status, nil
}

// filterThreads は、タイトルがキーワードを含み、除外キーワードを含まないスレッドのみを返します。
func filterThreads(threads []model.ForumThread, keyword string, excludes []string) []model.ForumThread {
	filtered := make([]model.ForumThread, 0, len(threads))
	for _, th := range threads {
		matchKeyword := keyword == "" || strings.Contains(th.Title, keyword)
		exclude := containsAny(th.Title, excludes)
		if matchKeyword && !exclude {
			filtered = append(filtered, th)
		}
	}
	return filtered
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
