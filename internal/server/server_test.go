package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"toomi/internal/capture"
	"toomi/internal/config"
)

// テスト用の設定を作成する
func newTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         8081,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Capture: config.CaptureConfig{
			MinWidth:        1280,
			MinHeight:       720,
			TargetFrameRate: 30,
			MrcOpacity:      0.9,
		},
	}
}

// テスト用のサーバーをモックプラットフォームの上に構築する
func newTestServer(cfg *config.Config) *Server {
	enum := capture.NewMockEnumerator()
	enum.SetDevices(capture.DeviceClassVideoCapture, []capture.DeviceID{"/dev/video0"})

	manager := capture.NewManager(enum, func() capture.Platform {
		platform := capture.NewMockPlatform()
		platform.SetProfiles([]capture.Profile{{Width: 1920, Height: 1080, FrameRate: 30}})
		return platform
	}, cfg.CaptureOptions())

	return New(cfg, manager)
}

// doJSON はJSONボディ付きのリクエストを実行する
func doJSON(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// TestServerEndpoints は基本エンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv := newTestServer(newTestConfig())

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
	}{
		{"ヘルスチェックエンドポイント", "/health", http.StatusOK},
		{"ステータスエンドポイント", "/api/status", http.StatusOK},
		{"セッション一覧エンドポイント", "/api/sessions", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(srv, http.MethodGet, tc.endpoint, nil)
			if rec.Code != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d", rec.Code, tc.expectedStatus)
			}
		})
	}
}

// TestSessionLifecycleAPI はセッションAPIの一連の操作をテストする
func TestSessionLifecycleAPI(t *testing.T) {
	srv := newTestServer(newTestConfig())

	// 配信先のダミーリスナーを用意する
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("リスナーの起動に失敗しました: %v", err)
	}
	defer func() { _ = listener.Close() }()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				buf := make([]byte, 4096)
				for {
					if _, err := conn.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()

	// 生成
	rec := doJSON(srv, http.MethodPost, "/api/sessions", map[string]any{"enable_audio": false})
	if rec.Code != http.StatusCreated {
		t.Fatalf("セッション生成に失敗しました: %d %s", rec.Code, rec.Body.String())
	}

	var created sessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("応答の解析に失敗しました: %v", err)
	}
	if created.State != string(capture.StateReady) {
		t.Errorf("生成直後の状態が期待と異なります: %s", created.State)
	}
	if created.Profile.Width != 1920 || created.Profile.Height != 1080 {
		t.Errorf("交渉済みプロファイルが期待と異なります: %dx%d", created.Profile.Width, created.Profile.Height)
	}

	// 取得
	rec = doJSON(srv, http.MethodGet, "/api/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("セッション取得に失敗しました: %d", rec.Code)
	}

	// 開始
	rec = doJSON(srv, http.MethodPost, fmt.Sprintf("/api/sessions/%s/start", created.ID), map[string]any{
		"enable_mrc": false,
		"address":    listener.Addr().String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("セッション開始に失敗しました: %d %s", rec.Code, rec.Body.String())
	}

	var started sessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("応答の解析に失敗しました: %v", err)
	}
	if started.State != string(capture.StateStreaming) {
		t.Errorf("開始後の状態が期待と異なります: %s", started.State)
	}

	// 停止（後始末まで連鎖してClosedになる）
	rec = doJSON(srv, http.MethodPost, fmt.Sprintf("/api/sessions/%s/stop", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("セッション停止に失敗しました: %d %s", rec.Code, rec.Body.String())
	}

	var stopped sessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &stopped); err != nil {
		t.Fatalf("応答の解析に失敗しました: %v", err)
	}
	if stopped.State != string(capture.StateClosed) {
		t.Errorf("停止後の状態が期待と異なります: %s", stopped.State)
	}

	// 終了
	rec = doJSON(srv, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("セッション終了に失敗しました: %d", rec.Code)
	}

	// 終了済みセッションの取得は404
	rec = doJSON(srv, http.MethodGet, "/api/sessions/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("終了済みセッションの取得が404になっていません: %d", rec.Code)
	}
}

// TestSessionAPIErrors はセッションAPIのエラー応答をテストする
func TestSessionAPIErrors(t *testing.T) {
	srv := newTestServer(newTestConfig())

	// 存在しないセッション
	rec := doJSON(srv, http.MethodGet, "/api/sessions/存在しないID", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("存在しないセッションの取得が404になっていません: %d", rec.Code)
	}

	// アドレスなしの開始リクエスト
	recCreate := doJSON(srv, http.MethodPost, "/api/sessions", map[string]any{"enable_audio": false})
	if recCreate.Code != http.StatusCreated {
		t.Fatalf("セッション生成に失敗しました: %d", recCreate.Code)
	}
	var created sessionInfo
	if err := json.Unmarshal(recCreate.Body.Bytes(), &created); err != nil {
		t.Fatalf("応答の解析に失敗しました: %v", err)
	}

	rec = doJSON(srv, http.MethodPost, fmt.Sprintf("/api/sessions/%s/start", created.ID), map[string]any{
		"enable_mrc": false,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("アドレスなしの開始が400になっていません: %d", rec.Code)
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.Port = 18082
	srv := newTestServer(cfg)

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	// エラーチャンネルから結果を受信
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}
