package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
)

// taskPatch は、タスク設定をデコードするための中間ヘルパー構造体です。
type taskPatch struct {
	Enabled             *bool     `json:"enabled,omitempty"`
	TaskName            *string   `json:"task_name,omitempty"`
	UseTemplate         string    `json:"use_template,omitempty"`
	Site                *string   `json:"site,omitempty"`
	UseSSL              *bool     `json:"use_ssl,omitempty"`
	CategoryID          *int      `json:"category_id,omitempty"`
	OutputPath          *string   `json:"output_path,omitempty"`
	OutputFormat        *string   `json:"output_format,omitempty"`
	SearchKeyword       *string   `json:"search_keyword,omitempty"`
	ExcludeKeywords     *[]string `json:"exclude_keywords,omitempty"`
	WatchSchedule       *string   `json:"watch_schedule,omitempty"`
	WatchIntervalMillis *int      `json:"watch_interval_ms,omitempty"`
}

// rawConfig は、設定ファイルをデコードするための中間構造体です。
type rawConfig struct {
	ConfigVersion      string          `json:"config_version"`
	Network            NetworkSettings `json:"network"`
	SnapshotDBPath     string          `json:"snapshot_db_path"`
	StatusAddr         string          `json:"status_addr"`
	MaxConcurrentTasks int             `json:"max_concurrent_tasks"`
	TaskTemplates      map[string]Task `json:"task_templates"`
	Tasks              []taskPatch     `json:"tasks"`
	EnableLogFile      bool            `json:"enable_log_file"`
	LogFilePath        string          `json:"log_file_path"`
}

var validate = newValidator()

// newValidator は、cron式の検証 ("cron" タグ) を追加したバリデータを生成します。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// LoadAndResolve は、指定されたパスから設定ファイルを読み込み、解析と解決を行います。
func LoadAndResolve(fs afero.Fs, path string) (*Config, error) {
	absPath, _ := filepath.Abs(path)

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル '%s' の読み込みに失敗しました (Abs: '%s'): %w", path, absPath, err)
	}
	return ParseAndResolve(data)
}

// ParseAndResolve は、設定データのバイトスライスを解析し、テンプレートを解決して最終的な設定を返します。
// この関数はテストのために分離されています。
func ParseAndResolve(data []byte) (*Config, error) {
	var rawCfg rawConfig
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError

		if errors.As(err, &syntaxErr) {
			line, col := computeLineAndColumn(data, syntaxErr.Offset)
			return nil, fmt.Errorf("設定ファイルのJSON構文エラー (行 %d, 列 %d): %w", line, col, err)
		}
		if errors.As(err, &typeErr) {
			line, col := computeLineAndColumn(data, typeErr.Offset)
			return nil, fmt.Errorf("設定ファイルの型エラー (行 %d, 列 %d, フィールド '%s'): 期待値 %v, 実際 %v - %w",
				line, col, typeErr.Field, typeErr.Type, typeErr.Value, err)
		}
		return nil, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}

	const compatibleVersion = "1.0"
	if rawCfg.ConfigVersion != compatibleVersion {
		return nil, fmt.Errorf("サポートされていない設定バージョン '%s' です。'%s' が必要です。", rawCfg.ConfigVersion, compatibleVersion)
	}

	resolvedConfig := &Config{
		ConfigVersion:      rawCfg.ConfigVersion,
		Network:            rawCfg.Network,
		SnapshotDBPath:     rawCfg.SnapshotDBPath,
		StatusAddr:         rawCfg.StatusAddr,
		MaxConcurrentTasks: rawCfg.MaxConcurrentTasks,
		TaskTemplates:      rawCfg.TaskTemplates,
		Tasks:              make([]Task, 0, len(rawCfg.Tasks)),
		EnableLogFile:      rawCfg.EnableLogFile,
		LogFilePath:        rawCfg.LogFilePath,
	}

	for _, patch := range rawCfg.Tasks {
		var resolvedTask Task
		if patch.UseTemplate != "" {
			template, ok := rawCfg.TaskTemplates[patch.UseTemplate]
			if !ok {
				taskName := "unknown"
				if patch.TaskName != nil {
					taskName = *patch.TaskName
				}
				return nil, fmt.Errorf("タスク '%s' が未定義のテンプレート '%s' を使用しています", taskName, patch.UseTemplate)
			}
			resolvedTask = template
		}
		applyPatch(&resolvedTask, &patch)
		resolvedConfig.Tasks = append(resolvedConfig.Tasks, resolvedTask)
	}

	if err := validate.Struct(resolvedConfig); err != nil {
		return nil, fmt.Errorf("設定ファイルの検証に失敗しました: %w", err)
	}

	return resolvedConfig, nil
}

// applyPatch は、patchの非nilフィールドをtargetに上書きします。
func applyPatch(target *Task, patch *taskPatch) {
	target.UseTemplate = patch.UseTemplate
	if patch.Enabled != nil {
		target.Enabled = patch.Enabled
	}
	if patch.TaskName != nil {
		target.TaskName = *patch.TaskName
	}
	if patch.Site != nil {
		target.Site = *patch.Site
	}
	if patch.UseSSL != nil {
		target.UseSSL = *patch.UseSSL
	}
	if patch.CategoryID != nil {
		target.CategoryID = *patch.CategoryID
	}
	if patch.OutputPath != nil {
		target.OutputPath = *patch.OutputPath
	}
	if patch.OutputFormat != nil {
		target.OutputFormat = *patch.OutputFormat
	}
	if patch.SearchKeyword != nil {
		target.SearchKeyword = *patch.SearchKeyword
	}
	if patch.ExcludeKeywords != nil {
		target.ExcludeKeywords = *patch.ExcludeKeywords
	}
	if patch.WatchSchedule != nil {
		target.WatchSchedule = *patch.WatchSchedule
	}
	if patch.WatchIntervalMillis != nil {
		target.WatchIntervalMillis = *patch.WatchIntervalMillis
	}
}

// computeLineAndColumn は、バイトオフセットから行番号と列番号（1始まり）を計算します。
func computeLineAndColumn(data []byte, offset int64) (int, int) {
	if offset < 0 || int(offset) > len(data) {
		return 0, 0
	}
	line := 1
	lastLineStart := 0
	for i, b := range data {
		if int64(i) == offset {
			return line, i - lastLineStart + 1
		}
		if b == '\n' {
			line++
			lastLineStart = i + 1
		}
	}
	return line, int(offset) - lastLineStart + 1
}
