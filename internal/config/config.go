// Package config は、アプリケーションの設定ファイル(config.json)の構造定義と、
// その読み込み、解決（テンプレートのマージなど）に関する機能を提供します。
package config

// Config は config.json ファイル全体を表すルート構造体です。
type Config struct {
	ConfigVersion      string          `json:"config_version" validate:"required"`
	Network            NetworkSettings `json:"network"`
	SnapshotDBPath     string          `json:"snapshot_db_path,omitempty"`
	StatusAddr         string          `json:"status_addr,omitempty" validate:"omitempty,hostname_port"`
	MaxConcurrentTasks int             `json:"max_concurrent_tasks,omitempty" validate:"gte=0"` // 0以下の場合は1
	TaskTemplates      map[string]Task `json:"task_templates,omitempty"`
	Tasks              []Task          `json:"tasks" validate:"dive"`
	EnableLogFile      bool            `json:"enable_log_file"`
	LogFilePath        string          `json:"log_file_path,omitempty"`
}

// NetworkSettings は、HTTPリクエストに関するグローバルな設定を保持します。
type NetworkSettings struct {
	UserAgent               string            `json:"user_agent"`
	DefaultHeaders          map[string]string `json:"default_headers,omitempty"`
	PerDomainIntervalMillis map[string]int    `json:"per_domain_interval_ms,omitempty"`
	RequestTimeoutMillis    int               `json:"request_timeout_ms" validate:"gte=0"`
	RetryCount              int               `json:"retry_count" validate:"gte=0"`
	RetryWaitMillis         int               `json:"retry_wait_ms" validate:"gte=0"`
	MaxConcurrentRequests   int               `json:"max_concurrent_requests" validate:"gte=0"`
}

// Task は、単一フォーラムカテゴリのスレッド一覧取得タスクを定義します。
type Task struct {
	Enabled             *bool    `json:"enabled,omitempty"`
	TaskName            string   `json:"task_name,omitempty" validate:"required"`
	UseTemplate         string   `json:"use_template,omitempty"`
	Site                string   `json:"site,omitempty" validate:"required"`
	UseSSL              bool     `json:"use_ssl,omitempty"`
	CategoryID          int      `json:"category_id,omitempty" validate:"gt=0"`
	OutputPath          string   `json:"output_path,omitempty"`
	OutputFormat        string   `json:"output_format,omitempty" validate:"omitempty,oneof=json yaml text"`
	SearchKeyword       string   `json:"search_keyword,omitempty"`
	ExcludeKeywords     []string `json:"exclude_keywords,omitempty"`
	WatchSchedule       string   `json:"watch_schedule,omitempty" validate:"omitempty,cron"`
	WatchIntervalMillis int      `json:"watch_interval_ms,omitempty" validate:"gte=0"`
}

// IsEnabled は、タスクが有効かどうかを返します。未指定の場合は有効とみなします。
func (t Task) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}
