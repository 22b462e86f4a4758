package asyncop

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestOperationCompleteOnce は終端状態への遷移がちょうど1回であることをテストする
func TestOperationCompleteOnce(t *testing.T) {
	op := New[int]()

	op.Complete(42, nil)
	op.Complete(99, errors.New("2回目の完了"))

	result, err := op.Wait(time.Second)
	if err != nil {
		t.Fatalf("予期しないエラーが発生しました: %v", err)
	}
	if result != 42 {
		t.Errorf("最初の完了結果が保持されていません: got %d, want 42", result)
	}
}

// TestOperationThenBeforeComplete は完了前に登録した継続が呼ばれることをテストする
func TestOperationThenBeforeComplete(t *testing.T) {
	op := New[string]()

	resultCh := make(chan string, 1)
	op.Then(func(result string, err error) {
		if err != nil {
			t.Errorf("予期しないエラー: %v", err)
		}
		resultCh <- result
	})

	op.Complete("done", nil)

	select {
	case result := <-resultCh:
		if result != "done" {
			t.Errorf("継続の結果が一致しません: got %s, want done", result)
		}
	case <-time.After(time.Second):
		t.Fatal("継続が呼び出されませんでした")
	}
}

// TestOperationThenAfterComplete は完了後の継続登録が即座に呼ばれることをテストする
func TestOperationThenAfterComplete(t *testing.T) {
	op := Completed(7, nil)

	var called atomic.Bool
	op.Then(func(result int, err error) {
		if result != 7 {
			t.Errorf("結果が一致しません: got %d, want 7", result)
		}
		called.Store(true)
	})

	// 完了済みのため同期的に呼び出されているはず（取りこぼしなし）
	if !called.Load() {
		t.Error("完了後に登録した継続が即座に呼び出されていません")
	}
}

// TestOperationThenExactlyOnce は継続がちょうど1回だけ呼ばれることをテストする
func TestOperationThenExactlyOnce(t *testing.T) {
	op := New[struct{}]()

	var count atomic.Int32
	op.Then(func(_ struct{}, _ error) {
		count.Add(1)
	})

	op.Complete(struct{}{}, nil)
	op.Complete(struct{}{}, errors.New("重複完了"))

	if got := count.Load(); got != 1 {
		t.Errorf("継続の呼び出し回数が一致しません: got %d, want 1", got)
	}
}

// TestOperationWaitTimeout は待機のタイムアウトをテストする
func TestOperationWaitTimeout(t *testing.T) {
	op := New[int]()

	_, err := op.Wait(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("タイムアウトエラーが期待されましたが: %v", err)
	}

	// タイムアウト後に完了しても待機側は再度結果を取得できる
	op.Complete(1, nil)
	result, err := op.Wait(time.Second)
	if err != nil || result != 1 {
		t.Errorf("完了後の再待機に失敗: result=%d err=%v", result, err)
	}
}

// TestOperationWaitInfinite はタイムアウト0以下での無期限待機をテストする
func TestOperationWaitInfinite(t *testing.T) {
	op := New[bool]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		op.Complete(true, nil)
	}()

	result, err := op.Wait(0)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !result {
		t.Error("完了結果が一致しません")
	}
}

// TestOperationNilHandle はnilハンドルが即座にErrInvalidArgumentとなることをテストする
func TestOperationNilHandle(t *testing.T) {
	var op *Operation[int]

	if _, err := op.Wait(time.Second); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Wait: ErrInvalidArgumentが期待されましたが: %v", err)
	}

	called := false
	op.Then(func(_ int, err error) {
		called = true
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Then: ErrInvalidArgumentが期待されましたが: %v", err)
		}
	})
	if !called {
		t.Error("nilハンドルへの継続登録が即座に呼び出されていません")
	}
}

// TestOperationStart はゴルーチン上での実行ヘルパーをテストする
func TestOperationStart(t *testing.T) {
	op := Start(func() (int, error) {
		return 10, nil
	})

	result, err := op.Wait(time.Second)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if result != 10 {
		t.Errorf("結果が一致しません: got %d, want 10", result)
	}

	failOp := Start(func() (int, error) {
		return 0, errors.New("処理に失敗")
	})
	if _, err := failOp.Wait(time.Second); err == nil {
		t.Error("エラーが期待されましたが、エラーが発生しませんでした")
	}
}

// TestOperationChain は依存操作の連鎖で最初の失敗が伝播することをテストする
func TestOperationChain(t *testing.T) {
	chainErr := errors.New("最初の失敗")

	first := Start(func() (int, error) {
		return 0, chainErr
	})

	final := New[int]()
	first.Then(func(result int, err error) {
		if err != nil {
			// 最初の失敗は残りの連鎖を短絡する
			final.Complete(0, err)
			return
		}
		second := Start(func() (int, error) { return result * 2, nil })
		second.Then(final.Complete)
	})

	if _, err := final.Wait(time.Second); !errors.Is(err, chainErr) {
		t.Errorf("最初の失敗が伝播していません: %v", err)
	}
}

// TestOperationDoneHelper は結果値を持たないActionヘルパーをテストする
func TestOperationDoneHelper(t *testing.T) {
	ok := Done(nil)
	if _, err := ok.Wait(time.Second); err != nil {
		t.Errorf("予期しないエラー: %v", err)
	}

	failed := Done(errors.New("失敗"))
	if _, err := failed.Wait(time.Second); err == nil {
		t.Error("エラーが期待されましたが、エラーが発生しませんでした")
	}
}
