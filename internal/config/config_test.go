package config

import (
	"os"
	"testing"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	// 設定を読み込む
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// 基本的な設定値を検証
	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		t.Errorf("無効なポート番号: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}

	// キャプチャ設定の検証
	if cfg.Capture.MinWidth <= 0 {
		t.Error("最低画像幅が設定されていません")
	}
	if cfg.Capture.MinHeight <= 0 {
		t.Error("最低画像高さが設定されていません")
	}
	if cfg.Capture.TargetFrameRate <= 0 {
		t.Error("目標フレームレートが設定されていません")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	validCapture := CaptureConfig{
		MinWidth:        1280,
		MinHeight:       720,
		TargetFrameRate: 30,
		MrcOpacity:      0.9,
	}

	testCases := []struct {
		name      string
		config    *Config
		expectErr bool
	}{
		{
			name: "正常な設定",
			config: &Config{
				Server:  ServerConfig{Host: "localhost", Port: 8080},
				Capture: validCapture,
			},
			expectErr: false,
		},
		{
			name: "無効なポート番号",
			config: &Config{
				Server:  ServerConfig{Host: "localhost", Port: 99999}, // 無効なポート
				Capture: validCapture,
			},
			expectErr: true,
		},
		{
			name: "無効な最低解像度",
			config: &Config{
				Server: ServerConfig{Host: "localhost", Port: 8080},
				Capture: CaptureConfig{
					MinWidth:        0, // 無効な幅
					MinHeight:       720,
					TargetFrameRate: 30,
					MrcOpacity:      0.9,
				},
			},
			expectErr: true,
		},
		{
			name: "無効な目標フレームレート",
			config: &Config{
				Server: ServerConfig{Host: "localhost", Port: 8080},
				Capture: CaptureConfig{
					MinWidth:        1280,
					MinHeight:       720,
					TargetFrameRate: 0, // 無効なフレームレート
					MrcOpacity:      0.9,
				},
			},
			expectErr: true,
		},
		{
			name: "無効な不透明度",
			config: &Config{
				Server: ServerConfig{Host: "localhost", Port: 8080},
				Capture: CaptureConfig{
					MinWidth:        1280,
					MinHeight:       720,
					TargetFrameRate: 30,
					MrcOpacity:      1.5, // 範囲外
				},
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestCaptureOptions は動作パラメータへの変換をテストする
func TestCaptureOptions(t *testing.T) {
	cfg := &Config{
		Capture: CaptureConfig{
			MinWidth:        1920,
			MinHeight:       1080,
			TargetFrameRate: 60,
			MrcOpacity:      0.5,
		},
	}

	opts := cfg.CaptureOptions()
	if opts.MinWidth != 1920 || opts.MinHeight != 1080 {
		t.Errorf("解像度条件が反映されていません: %dx%d", opts.MinWidth, opts.MinHeight)
	}
	if opts.TargetFrameRate != 60 {
		t.Errorf("フレームレート条件が反映されていません: %d", opts.TargetFrameRate)
	}
	if opts.MrcOpacity != 0.5 {
		t.Errorf("不透明度が反映されていません: %f", opts.MrcOpacity)
	}
	// 同期ブリッジの待機時間はデフォルトのまま
	if opts.EnumerateTimeout <= 0 || opts.VideoEffectTimeout <= 0 || opts.AudioEffectTimeout <= 0 {
		t.Error("待機時間のデフォルト値が設定されていません")
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestEnvironmentVariables(t *testing.T) {
	// テスト用の環境変数を設定
	originalHost := os.Getenv("SERVER_HOST")
	originalPort := os.Getenv("PORT")

	defer func() {
		// テスト後に環境変数を復元
		_ = os.Setenv("SERVER_HOST", originalHost)
		_ = os.Setenv("PORT", originalPort)
	}()

	// 環境変数を設定
	_ = os.Setenv("SERVER_HOST", "test.example.com")
	_ = os.Setenv("PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
}
