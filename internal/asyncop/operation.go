package asyncop

import (
	"errors"
	"sync"
	"time"
)

// パッケージ共通のエラー
var (
	// ErrTimeout は同期待機が制限時間内に完了しなかったことを表す
	ErrTimeout = errors.New("非同期操作の待機がタイムアウトしました")

	// ErrInvalidArgument は操作ハンドルが存在しない（nil）ことを表す
	ErrInvalidArgument = errors.New("非同期操作のハンドルが不正です")
)

// Operation は1つの保留中非同期操作の最終結果を保持するハンドル
//
// 発行者が所有し、継続へ渡した時点で所有権は継続側へ移る。
// 結果は pending から terminal へちょうど1回だけ遷移する。
type Operation[T any] struct {
	mu   sync.Mutex
	done chan struct{}

	result    T
	err       error
	completed bool

	// 登録できる継続は1つのみ（単一消費者の連鎖を前提とする）
	continuation func(T, error)
}

// Action は結果値を持たない操作のハンドル
type Action = Operation[struct{}]

// New は保留状態の新しいOperationを作成する
func New[T any]() *Operation[T] {
	return &Operation[T]{done: make(chan struct{})}
}

// Completed は完了済みのOperationを作成する
func Completed[T any](result T, err error) *Operation[T] {
	op := New[T]()
	op.Complete(result, err)
	return op
}

// Fail は失敗で完了済みのOperationを作成する
func Fail[T any](err error) *Operation[T] {
	var zero T
	return Completed(zero, err)
}

// Done は結果値を持たない完了済みのActionを作成する
func Done(err error) *Action {
	return Completed(struct{}{}, err)
}

// Start はfnを新しいゴルーチンで実行し、その結果で完了するOperationを返す
//
// 外部プラットフォームが自前のスレッドプールで完了を配送する動きを、
// プロセス内の処理に対して再現するためのヘルパー
func Start[T any](fn func() (T, error)) *Operation[T] {
	op := New[T]()
	go func() {
		result, err := fn()
		op.Complete(result, err)
	}()
	return op
}

// Complete は操作を終端状態へ遷移させる
//
// 2回目以降の呼び出しは無視される（遷移はちょうど1回）。
// 登録済みの継続があれば、呼び出し元のゴルーチン上で起動する
func (o *Operation[T]) Complete(result T, err error) {
	o.mu.Lock()
	if o.completed {
		o.mu.Unlock()
		return
	}
	o.completed = true
	o.result = result
	o.err = err
	cont := o.continuation
	o.continuation = nil
	close(o.done)
	o.mu.Unlock()

	// ロックの外で継続を起動する（継続内での再登録や待機を妨げないため）
	if cont != nil {
		cont(result, err)
	}
}

// Then は統一された結果（成功値またはエラー）を受け取る継続を登録する
//
// 既に完了している場合は即座に呼び出される。登録できる継続は1つのみで、
// 2回目のThenの動作は未定義。ファンアウトが必要な場合は所有側が
// 結果を明示的に複製すること。
// 継続は完了を配送したゴルーチン上で実行されるため、ブロックしてはならない
func (o *Operation[T]) Then(fn func(T, error)) {
	if o == nil {
		var zero T
		fn(zero, ErrInvalidArgument)
		return
	}

	o.mu.Lock()
	if !o.completed {
		o.continuation = fn
		o.mu.Unlock()
		return
	}
	result, err := o.result, o.err
	o.mu.Unlock()

	fn(result, err)
}

// Wait は終端状態になるまで呼び出し元のゴルーチンをブロックする
//
// timeout が0以下の場合は無期限に待つ。制限時間を超えた場合は
// ErrTimeout を返す。完了を配送するゴルーチン上で呼ぶと
// 自己デッドロックするため、短時間の境界付き待機にのみ使用すること
func (o *Operation[T]) Wait(timeout time.Duration) (T, error) {
	if o == nil {
		var zero T
		return zero, ErrInvalidArgument
	}

	if timeout <= 0 {
		<-o.done
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-o.done:
		case <-timer.C:
			var zero T
			return zero, ErrTimeout
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.err
}

// Completed は操作が終端状態へ到達したかどうかを返す
func (o *Operation[T]) Completed() bool {
	if o == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}
