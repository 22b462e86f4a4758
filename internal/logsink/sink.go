package logsink

import (
	"bytes"
	"sync"
	"time"
)

// Sink は書き込み合流型のログシンク
//
// Logは呼び出し元をブロックしない。ストアが未接続の間はバッファに
// 溜め込み、接続後のフラッシュでまとめて書き出す
type Sink struct {
	mu       sync.Mutex
	idle     *sync.Cond
	messages []string
	flushing bool
	store    Store
}

// New は新しいSinkを作成する
func New() *Sink {
	s := &Sink{}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Attach はバッキングストアを接続する
//
// 接続前に記録されたメッセージは、接続を契機に開始される
// フラッシュで書き出される
func (s *Sink) Attach(store Store) {
	s.mu.Lock()
	s.store = store
	start := store != nil && !s.flushing && len(s.messages) > 0
	if start {
		s.flushing = true
	}
	s.mu.Unlock()

	if start {
		s.flush()
	}
}

// Log はメッセージをバッファへ追記する
//
// ストアが接続済みでフラッシュが飛行中でなければフラッシュを開始する。
// それ以外は即座に戻る（ライトビハインド）。エラーは呼び出し元へ
// 一切返さない
func (s *Sink) Log(message string) {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	start := s.store != nil && !s.flushing
	if start {
		s.flushing = true
	}
	s.mu.Unlock()

	if start {
		s.flush()
	}
}

// flush はバッファを空のバッファと交換し、非同期書き込みを発行する
//
// flushing=trueを前提に、ロックなしで呼ばれる。交換したバッファが
// 空ならフラグを下ろして終了する。書き込みと耐久化の完了後に
// 自身を再度呼び出し、飛行中に追記されたメッセージを回収する。
// 各サイクルは交換時点の内容を必ず消化するため、この再帰は停止する。
// ロックの保持区間は交換のみのO(1)で、非同期呼び出しを跨がない
func (s *Sink) flush() {
	s.mu.Lock()
	msgs := s.messages
	s.messages = nil

	if len(msgs) == 0 {
		s.flushing = false
		s.idle.Broadcast()
		s.mu.Unlock()
		return
	}
	store := s.store
	s.mu.Unlock()

	var buf bytes.Buffer
	for _, m := range msgs {
		buf.WriteString(m)
		buf.WriteByte('\n')
	}

	store.Append(buf.Bytes()).Then(func(_ int, err error) {
		if err != nil {
			s.abortFlush()
			return
		}
		store.Sync().Then(func(_ bool, err error) {
			if err != nil {
				s.abortFlush()
				return
			}
			s.flush()
		})
	})
}

// abortFlush は失敗したサイクルを中断し、次のLogで再試行できるようにする
func (s *Sink) abortFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushing = false
	s.idle.Broadcast()
}

// Pending は未永続化のメッセージ数を返す
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Drain はバッファが空になりフラッシュが完了するまで待機する
//
// プロセス終了時の排出フックとして使用する。制限時間内に排出が
// 完了した場合はtrueを返す
func (s *Sink) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	// 条件変数の待機を定期的に起こし、期限切れを検出できるようにする
	stopCh := make(chan struct{})
	defer close(stopCh)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.idle.Broadcast()
			}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.flushing || (s.store != nil && len(s.messages) > 0) {
		if !time.Now().Before(deadline) {
			return false
		}
		s.idle.Wait()
	}

	return true
}

// プロセス全体で共有するデフォルトシンク
var (
	defaultOnce sync.Once
	defaultSink *Sink
)

// Default は遅延生成されるプロセス共有のシンクを返す
func Default() *Sink {
	defaultOnce.Do(func() {
		defaultSink = New()
	})
	return defaultSink
}
