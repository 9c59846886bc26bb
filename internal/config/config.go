// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port          string // APIサーバーのポート番号
	GinMode       string // Ginの実行モード (debug, release, test)
	SessionSecret string // セッション署名用の秘密鍵

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// アップロード制限
	MaxFileSize int64 // 単一ファイルの最大サイズ（バイト）
	MaxCopies   int   // 印刷部数の上限

	// 料金設定
	PriceMonochrome decimal.Decimal // モノクロ1ページあたりの単価
	PriceColor      decimal.Decimal // カラー1ページあたりの単価
	DuplexFactor    decimal.Decimal // 両面印刷時に単価へ掛ける係数
	Currency        string          // 見積もりに付与する通貨コード

	// ページ数解析設定
	PageCountTimeoutSeconds int    // PDF解析の上限時間（秒）
	WorkspaceDir            string // アップロードファイルの一時保存先

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq用Redis接続URL（空なら同期処理のみ）
	AsyncThresholdBytes int64  // 同期処理から非同期へ切り替えるサイズ閾値
	JobExpireMinutes    int    // ジョブの有効期限（分）

	// 印刷バックエンド設定
	BackendURL            string // 印刷設定の送信先ベースURL
	BackendTimeoutSeconds int    // バックエンド呼び出しのタイムアウト（秒）

	// ログ設定
	LogLevel      string
	LogPretty     bool
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:          getEnv("PORT", "8080"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		SessionSecret: getEnv("SESSION_SECRET", ""),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// アップロード制限
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 52428800), // 50MB
		MaxCopies:   getEnvAsInt("MAX_COPIES", 100),

		// 料金設定
		PriceMonochrome: getEnvAsDecimal("PRICE_MONOCHROME", decimal.NewFromInt(5)),
		PriceColor:      getEnvAsDecimal("PRICE_COLOR", decimal.NewFromInt(10)),
		DuplexFactor:    getEnvAsDecimal("DUPLEX_FACTOR", decimal.NewFromInt(2)),
		Currency:        getEnv("CURRENCY", "INR"),

		// ページ数解析設定
		PageCountTimeoutSeconds: getEnvAsInt("PAGE_COUNT_TIMEOUT_SECONDS", 20),
		WorkspaceDir:            getEnv("WORKSPACE_DIR", filepath.Join(os.TempDir(), "kagpatra")),

		// ジョブ/キュー設定
		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", ""),
		AsyncThresholdBytes: getEnvAsInt64("ASYNC_THRESHOLD_BYTES", 10*1024*1024), // 10MB
		JobExpireMinutes:    getEnvAsInt("JOB_EXPIRE_MINUTES", 10),

		// 印刷バックエンド設定
		BackendURL:            strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
		BackendTimeoutSeconds: getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 10),

		// ログ設定
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("LOG_PRETTY", false),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 7),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.PriceMonochrome.IsNegative() {
		return fmt.Errorf("PRICE_MONOCHROME must not be negative")
	}
	if c.PriceColor.IsNegative() {
		return fmt.Errorf("PRICE_COLOR must not be negative")
	}
	if !c.DuplexFactor.IsPositive() {
		return fmt.Errorf("DUPLEX_FACTOR must be greater than zero")
	}
	if c.MaxCopies < 1 {
		return fmt.Errorf("MAX_COPIES must be at least 1")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be greater than zero")
	}

	// ローカル開発ではセッション鍵は任意
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDecimal は料金などの小数値を取得します。
func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
