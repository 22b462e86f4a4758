package config

import (
	"fmt"
	"os"
	"time"

	"toomi/internal/capture"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CaptureConfig はキャプチャセッションの設定
type CaptureConfig struct {
	// プロファイル交渉の条件
	MinWidth        int `yaml:"min_width"`         // 最低画像幅
	MinHeight       int `yaml:"min_height"`        // 最低画像高さ
	TargetFrameRate int `yaml:"target_frame_rate"` // 目標フレームレート (fps)

	// MRC合成の不透明度
	MrcOpacity float64 `yaml:"mrc_opacity"`
}

// LogConfig は診断ログの設定
type LogConfig struct {
	File string `yaml:"file"` // 出力先ファイルパス（空なら出力しない）
}

// Load は設定を読み込む
// 環境変数による上書きを受け付け、残りはデフォルト値を使う
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsIntOrDefault("PORT", 8080),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Capture: CaptureConfig{
			MinWidth:        getEnvAsIntOrDefault("CAPTURE_MIN_WIDTH", 1280),
			MinHeight:       getEnvAsIntOrDefault("CAPTURE_MIN_HEIGHT", 720),
			TargetFrameRate: getEnvAsIntOrDefault("CAPTURE_TARGET_FPS", 30),
			MrcOpacity:      0.9,
		},
		Log: LogConfig{
			File: getEnvOrDefault("LOG_FILE", ""),
		},
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// キャプチャ設定の検証
	if c.Capture.MinWidth < 1 || c.Capture.MinHeight < 1 {
		return fmt.Errorf("無効な最低解像度: %dx%d", c.Capture.MinWidth, c.Capture.MinHeight)
	}
	if c.Capture.TargetFrameRate < 1 {
		return fmt.Errorf("無効な目標フレームレート: %d", c.Capture.TargetFrameRate)
	}
	if c.Capture.MrcOpacity < 0 || c.Capture.MrcOpacity > 1 {
		return fmt.Errorf("無効な不透明度: %f", c.Capture.MrcOpacity)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CaptureOptions はキャプチャセッションの動作パラメータへ変換する
func (c *Config) CaptureOptions() capture.Options {
	opts := capture.DefaultOptions()
	opts.MinWidth = c.Capture.MinWidth
	opts.MinHeight = c.Capture.MinHeight
	opts.TargetFrameRate = c.Capture.TargetFrameRate
	opts.MrcOpacity = c.Capture.MrcOpacity
	return opts
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
