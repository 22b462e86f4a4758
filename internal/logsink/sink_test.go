package logsink

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// collectLines は記録された全書き込みを行単位へ分解する
func collectLines(store *MockStore) []string {
	var joined bytes.Buffer
	for _, data := range store.Appends() {
		joined.Write(data)
	}
	text := joined.String()
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// TestSinkOrderingAndNoLoss はメッセージが欠落・重複・順序入れ替えなしで
// 永続化されることをテストする
func TestSinkOrderingAndNoLoss(t *testing.T) {
	sink := New()
	store := NewMockStore()

	// ストア接続前のメッセージはバッファされる
	sink.Log("メッセージ 0")
	sink.Log("メッセージ 1")

	if got := sink.Pending(); got != 2 {
		t.Fatalf("接続前のバッファ数が一致しません: got %d, want 2", got)
	}

	// 接続を契機にフラッシュされる
	sink.Attach(store)

	// 接続後のメッセージも追記順で書き出される
	for i := 2; i < 10; i++ {
		sink.Log(fmt.Sprintf("メッセージ %d", i))
	}

	if !sink.Drain(time.Second) {
		t.Fatal("排出がタイムアウトしました")
	}

	lines := collectLines(store)
	if len(lines) != 10 {
		t.Fatalf("永続化されたメッセージ数が一致しません: got %d, want 10", len(lines))
	}
	for i, line := range lines {
		want := fmt.Sprintf("メッセージ %d", i)
		if line != want {
			t.Errorf("順序が入れ替わっています: got %q, want %q", line, want)
		}
	}
}

// TestSinkSingleFlight はフラッシュが同時に1サイクルのみ実行され、
// 飛行中の追記が次のサイクルで回収されることをテストする
func TestSinkSingleFlight(t *testing.T) {
	sink := New()
	store := NewMockStore()
	store.SetManual(true)
	sink.Attach(store)

	// 最初のフラッシュを開始（Appendが保留のまま飛行中になる）
	sink.Log("最初")

	if got := store.PendingAppends(); got != 1 {
		t.Fatalf("飛行中のAppend数が一致しません: got %d, want 1", got)
	}

	// 飛行中の追記は新しいフラッシュを開始しない
	sink.Log("飛行中 1")
	sink.Log("飛行中 2")

	if got := store.PendingAppends(); got != 1 {
		t.Fatalf("フラッシュが並行実行されています: 飛行中のAppend数 got %d, want 1", got)
	}

	// 最初のサイクルを完了させると、次のサイクルが残りを回収する
	if !store.ReleaseAppend(nil) {
		t.Fatal("保留中のAppendがありません")
	}
	if !store.ReleaseSync(nil) {
		t.Fatal("保留中のSyncがありません")
	}

	if got := store.PendingAppends(); got != 1 {
		t.Fatalf("次のサイクルが開始されていません: got %d, want 1", got)
	}

	store.ReleaseAppend(nil)
	store.ReleaseSync(nil)

	if !sink.Drain(time.Second) {
		t.Fatal("排出がタイムアウトしました")
	}

	lines := collectLines(store)
	want := []string{"最初", "飛行中 1", "飛行中 2"}
	if len(lines) != len(want) {
		t.Fatalf("メッセージ数が一致しません: got %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("メッセージが一致しません: got %q, want %q", lines[i], want[i])
		}
	}

	// 2つの書き込みに分かれていること（各サイクルは交換時点の内容を消化する）
	if got := len(store.Appends()); got != 2 {
		t.Errorf("フラッシュサイクル数が一致しません: got %d, want 2", got)
	}
}

// TestSinkWriteFailureRetry は書き込み失敗がサイクルを静かに中断し、
// 次のLogで再試行されることをテストする
func TestSinkWriteFailureRetry(t *testing.T) {
	sink := New()
	store := NewMockStore()
	store.SetFailAppend(true)
	sink.Attach(store)

	// 失敗するフラッシュ。呼び出し元にはエラーが返らない
	sink.Log("失敗する")

	// フラッシュフラグが下りており、次のLogが再試行する
	store.SetFailAppend(false)
	sink.Log("再試行")

	if !sink.Drain(time.Second) {
		t.Fatal("排出がタイムアウトしました")
	}

	lines := collectLines(store)
	// 失敗サイクルで交換されたメッセージはベストエフォートで破棄される
	found := false
	for _, line := range lines {
		if line == "再試行" {
			found = true
		}
	}
	if !found {
		t.Errorf("再試行のメッセージが永続化されていません: %v", lines)
	}
}

// TestSinkSyncFailureClearsFlag は同期失敗後もシンクが回復することをテストする
func TestSinkSyncFailureClearsFlag(t *testing.T) {
	sink := New()
	store := NewMockStore()
	store.SetFailSync(true)
	sink.Attach(store)

	sink.Log("同期失敗")

	store.SetFailSync(false)
	sink.Log("回復")

	if !sink.Drain(time.Second) {
		t.Fatal("排出がタイムアウトしました")
	}

	if store.Syncs() == 0 {
		t.Error("回復後のSyncが実行されていません")
	}
}

// TestSinkDrainTimeout は排出の期限切れをテストする
func TestSinkDrainTimeout(t *testing.T) {
	sink := New()
	store := NewMockStore()
	store.SetManual(true)
	sink.Attach(store)

	sink.Log("完了しないフラッシュ")

	if sink.Drain(50 * time.Millisecond) {
		t.Error("飛行中のフラッシュがあるのに排出が成功しました")
	}

	// 解放すれば排出は成功する
	store.ReleaseAppend(nil)
	store.ReleaseSync(nil)
	if !sink.Drain(time.Second) {
		t.Error("解放後の排出に失敗しました")
	}
}

// TestFileStore はファイルベースのストアへの書き出しをテストする
func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toomi.log")

	sink := New()
	op := AttachFile(sink, path)
	store, err := op.Wait(time.Second)
	if err != nil {
		t.Fatalf("ログファイルのオープンに失敗しました: %v", err)
	}
	defer func() { _ = store.Close() }()

	sink.Log("1行目")
	sink.Log("2行目")

	if !sink.Drain(time.Second) {
		t.Fatal("排出がタイムアウトしました")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ログファイルの読み込みに失敗しました: %v", err)
	}

	want := "1行目\n2行目\n"
	if string(data) != want {
		t.Errorf("ログファイルの内容が一致しません: got %q, want %q", string(data), want)
	}
}

// TestDefaultSink はプロセス共有シンクの遅延生成をテストする
func TestDefaultSink(t *testing.T) {
	first := Default()
	second := Default()

	if first == nil {
		t.Fatal("デフォルトシンクがnilです")
	}
	if first != second {
		t.Error("デフォルトシンクが同一インスタンスではありません")
	}
}
