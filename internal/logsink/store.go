package logsink

import (
	"fmt"
	"os"
	"sync"

	"toomi/internal/asyncop"
)

// Store はログのバッキングストアを表すインターフェース
type Store interface {
	// Append はバイト列を末尾へ非同期に書き込み、書き込んだバイト数を返す
	Append(data []byte) *asyncop.Operation[int]

	// Sync は書き込み済みデータの耐久化を非同期に要求する
	Sync() *asyncop.Operation[bool]
}

// FileStore はフラットな追記専用テキストファイルへのStore実装
type FileStore struct {
	file *os.File
}

// OpenFileStore はログファイルを非同期に作成して開く
//
// 既存のファイルは置き換えられる。開く処理自体も非同期操作として
// 扱い、完了後にシンクへ接続できるようにする
func OpenFileStore(path string) *asyncop.Operation[*FileStore] {
	return asyncop.Start(func() (*FileStore, error) {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("ログファイルのオープンに失敗: %w", err)
		}
		return &FileStore{file: file}, nil
	})
}

// Append はファイル末尾へ非同期に書き込む
func (f *FileStore) Append(data []byte) *asyncop.Operation[int] {
	return asyncop.Start(func() (int, error) {
		n, err := f.file.Write(data)
		if err != nil {
			return n, fmt.Errorf("ログファイルへの書き込みに失敗: %w", err)
		}
		return n, nil
	})
}

// Sync はファイルの内容をディスクへ同期する
func (f *FileStore) Sync() *asyncop.Operation[bool] {
	return asyncop.Start(func() (bool, error) {
		if err := f.file.Sync(); err != nil {
			return false, fmt.Errorf("ログファイルの同期に失敗: %w", err)
		}
		return true, nil
	})
}

// Close はファイルを閉じる
func (f *FileStore) Close() error {
	return f.file.Close()
}

// AttachFile はログファイルを非同期に開き、完了後にシンクへ接続する
//
// ファイルが開くまでの間に記録されたメッセージはシンク内に
// バッファされ、接続後のフラッシュで書き出される
func AttachFile(sink *Sink, path string) *asyncop.Operation[*FileStore] {
	op := OpenFileStore(path)
	op.Then(func(store *FileStore, err error) {
		if err != nil {
			// ベストエフォート。接続失敗でホストを巻き込まない
			return
		}
		sink.Attach(store)
	})
	return op
}

// MockStore はテスト用のStore実装
//
// 手動完了モードでは、Append/Syncが返す操作を呼び出し側が
// 明示的に完了させるまで保留にできる
type MockStore struct {
	mu sync.Mutex

	appends [][]byte
	syncs   int

	failAppend bool
	failSync   bool

	manual         bool
	pendingAppends []*asyncop.Operation[int]
	pendingSyncs   []*asyncop.Operation[bool]
}

// NewMockStore は新しいMockStoreを作成する
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Append は書き込み内容を記録する
func (m *MockStore) Append(data []byte) *asyncop.Operation[int] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAppend {
		return asyncop.Fail[int](fmt.Errorf("モック: 書き込みに失敗"))
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	m.appends = append(m.appends, copied)

	if m.manual {
		op := asyncop.New[int]()
		m.pendingAppends = append(m.pendingAppends, op)
		return op
	}

	return asyncop.Completed(len(copied), nil)
}

// Sync は耐久化要求を記録する
func (m *MockStore) Sync() *asyncop.Operation[bool] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSync {
		return asyncop.Fail[bool](fmt.Errorf("モック: 同期に失敗"))
	}

	m.syncs++

	if m.manual {
		op := asyncop.New[bool]()
		m.pendingSyncs = append(m.pendingSyncs, op)
		return op
	}

	return asyncop.Completed(true, nil)
}

// SetManual は手動完了モードを設定する
func (m *MockStore) SetManual(manual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manual = manual
}

// SetFailAppend はテスト用にAppend失敗を設定する
func (m *MockStore) SetFailAppend(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAppend = fail
}

// SetFailSync はテスト用にSync失敗を設定する
func (m *MockStore) SetFailSync(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSync = fail
}

// ReleaseAppend は保留中の最初のAppend操作を完了させる
func (m *MockStore) ReleaseAppend(err error) bool {
	m.mu.Lock()
	if len(m.pendingAppends) == 0 {
		m.mu.Unlock()
		return false
	}
	op := m.pendingAppends[0]
	m.pendingAppends = m.pendingAppends[1:]
	var size int
	if len(m.appends) > 0 {
		size = len(m.appends[len(m.appends)-1])
	}
	m.mu.Unlock()

	// 継続はロックの外で起動する
	op.Complete(size, err)
	return true
}

// ReleaseSync は保留中の最初のSync操作を完了させる
func (m *MockStore) ReleaseSync(err error) bool {
	m.mu.Lock()
	if len(m.pendingSyncs) == 0 {
		m.mu.Unlock()
		return false
	}
	op := m.pendingSyncs[0]
	m.pendingSyncs = m.pendingSyncs[1:]
	m.mu.Unlock()

	op.Complete(err == nil, err)
	return true
}

// Appends は記録された書き込み内容を返す
func (m *MockStore) Appends() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([][]byte, len(m.appends))
	copy(result, m.appends)
	return result
}

// Syncs は耐久化要求の回数を返す
func (m *MockStore) Syncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

// PendingAppends は保留中のAppend操作数を返す
func (m *MockStore) PendingAppends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingAppends)
}
