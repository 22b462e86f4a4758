package main

import (
	"context"
	"log"
	"os"

	"toomi/internal/capture"
	"toomi/internal/config"
	"toomi/internal/logsink"
	"toomi/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// 診断ログの出力先を接続する
	if cfg.Log.File != "" {
		logsink.AttachFile(logsink.Default(), cfg.Log.File)
	}

	// セッションマネージャーを作成
	manager := capture.NewManager(
		capture.NewV4L2Enumerator(),
		capture.NewV4L2Platform,
		cfg.CaptureOptions(),
	)

	// サーバーを作成
	srv := server.New(cfg, manager)

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
		os.Exit(1)
	}
}
