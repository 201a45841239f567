package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"GoWikidotForum/internal/config"
	"GoWikidotForum/internal/core"
	"GoWikidotForum/internal/model"
	"GoWikidotForum/internal/network"
	"GoWikidotForum/internal/storage"
	"GoWikidotForum/internal/webui"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

// グローバル変数
var (
	// ログファイル管理用
	logFile *os.File

	// コマンドラインフラグ
	configFile   *string
	watchMode    *bool
	siteName     *string
	categoryID   *int
	outputFormat *string
	useSSL       *bool
)

func init() {
	configFile = flag.String("config", "config.json", "設定ファイルのパス (環境変数 GWF_CONFIG でも指定可)")
	watchMode = flag.Bool("watch", false, "監視モードで実行します。")
	siteName = flag.String("site", "", "設定ファイルを使わず、指定サイトのカテゴリを一度だけ取得します。")
	categoryID = flag.Int("category", 0, "-site と併用するカテゴリID")
	outputFormat = flag.String("format", core.FormatText, "-site 指定時の出力形式 (json, yaml, text)")
	useSSL = flag.Bool("ssl", true, "-site 指定時にHTTPSを使用します。")
}

// main関数はアプリケーションのエントリーポイントです。
func main() {
	flag.Parse()
	log.SetOutput(os.Stdout)

	// .env があれば読み込む（無くてもよい）
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: .env の読み込みに失敗しました: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("終了シグナルを受信しました。シャットダウンを開始します...")
		cancel()
	}()

	if *siteName != "" {
		if err := runOneShot(ctx, os.Stdout); err != nil {
			log.Fatalf("ERROR: %v", err)
		}
		return
	}

	path := *configFile
	if env := os.Getenv("GWF_CONFIG"); env != "" && !isFlagSet("config") {
		path = env
	}
	cfg, err := config.LoadAndResolve(afero.NewOsFs(), path)
	if err != nil {
		log.Fatalf("設定ファイルの読み込みに失敗しました: %v", err)
	}
	applyEnvOverrides(cfg)
	setupLogger(cfg)
	defer func() {
		if logFile != nil {
			logFile.Close()
		}
	}()

	runCliMode(ctx, cfg, *watchMode)
	log.Println("アプリケーションが正常にシャットダウンしました。")
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// applyEnvOverrides は、環境変数による設定の上書きを適用します。
func applyEnvOverrides(cfg *config.Config) {
	if ua := os.Getenv("GWF_USER_AGENT"); ua != "" {
		cfg.Network.UserAgent = ua
	}
}

// runOneShot は、-site/-category で指定されたカテゴリを取得して w に出力します。
func runOneShot(ctx context.Context, w io.Writer) error {
	if *categoryID <= 0 {
		return fmt.Errorf("-category に正のカテゴリIDを指定してください")
	}
	settings := config.NetworkSettings{UserAgent: os.Getenv("GWF_USER_AGENT")}
	client, err := network.NewClient(settings)
	if err != nil {
		return fmt.Errorf("ネットワーククライアントの初期化に失敗しました: %w", err)
	}

	site := model.NewSite(*siteName, *useSSL)
	category := &model.ForumCategory{Site: site, ID: *categoryID}
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", site.UnixName), log.LstdFlags)

	collection, err := core.AcquireAllInCategory(ctx, &network.SiteFetcher{Client: client, Site: site}, category, core.AcquireOptions{Logger: logger})
	if err != nil {
		return err
	}
	return core.WriteThreads(w, *outputFormat, collection)
}

// setupLogger はログ出力先を設定します。
// config.EnableLogFile が true の場合、ファイルにも出力します。
func setupLogger(cfg *config.Config) {
	if !cfg.EnableLogFile {
		return
	}
	path := cfg.LogFilePath
	if path == "" {
		// デフォルトは日付形式
		path = fmt.Sprintf("gwf_%s.log", time.Now().Format("2006-01-02"))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("WARNING: ログファイルを開けませんでした: %v", err)
		return
	}
	logFile = f
	// 標準出力とファイルの両方に出力
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("INFO: ログ出力をファイル '%s' に開始しました", path)
}

// runCliMode は、設定ファイルの全タスクを実行します。
func runCliMode(ctx context.Context, cfg *config.Config, isWatch bool) {
	log.Printf("CLIモードを開始します (監視モード: %v)", isWatch)

	var tasks []config.Task
	for _, task := range cfg.Tasks {
		if task.IsEnabled() {
			tasks = append(tasks, task)
		}
	}
	if len(tasks) == 0 {
		log.Println("有効なタスクがありません。終了します。")
		return
	}

	deps := core.TaskDeps{Status: core.NewStatusBoard(), Fs: afero.NewOsFs()}

	if cfg.SnapshotDBPath != "" {
		store, err := storage.Open(cfg.SnapshotDBPath)
		if err != nil {
			log.Printf("ERROR: スナップショットDBを開けませんでした。差分検出を無効にします: %v", err)
		} else {
			defer store.Close()
			deps.Store = store
		}
	}

	if cfg.StatusAddr != "" {
		server, err := webui.Start(cfg.StatusAddr, deps.Status)
		if err != nil {
			log.Printf("ERROR: %v", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Printf("ERROR: %v", err)
				}
			}()
		}
	}

	// 並行実行数の制限。監視モードでは全タスクが常駐するため制限しない
	maxConcurrent := cfg.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if isWatch {
		maxConcurrent = len(tasks)
	}
	taskSemaphore := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	log.Printf("タスク数: %d, 最大並行数: %d", len(tasks), maxConcurrent)

loop:
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			log.Println("コンテキストがキャンセルされたため、新規タスクの開始を中断します。")
			break loop
		case taskSemaphore <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer func() { <-taskSemaphore }()
			defer wg.Done()
			core.ExecuteTask(ctx, task, cfg.Network, deps, isWatch)
		}()
	}
	wg.Wait()
	log.Println("全てのタスクが完了しました。")
}
