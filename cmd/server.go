// Package main はToomiサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"toomi/internal/capture"
	"toomi/internal/config"
	"toomi/internal/logsink"
	"toomi/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host    = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port    = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		logFile = flag.String("log-file", "", "診断ログの出力先ファイル")
		help    = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Toomi")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
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
	log.Printf("Toomi サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
