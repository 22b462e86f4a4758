package capture

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"toomi/internal/asyncop"
)

// Manager は複数のキャプチャセッションをIDで管理する
//
// セッションの生成・取得・終了を一元化し、外部からは
// 不透明なIDでセッションを参照させる
type Manager struct {
	mu         sync.RWMutex
	enumerator Enumerator
	platform   func() Platform
	opts       Options
	sessions   map[string]*Session
}

// NewManager は新しいManagerを作成する
//
// platformFactory はセッション生成のたびに呼ばれ、セッションが
// 排他的に所有するプラットフォームハンドルを返す
func NewManager(enumerator Enumerator, platformFactory func() Platform, opts Options) *Manager {
	return &Manager{
		enumerator: enumerator,
		platform:   platformFactory,
		opts:       opts,
		sessions:   make(map[string]*Session),
	}
}

// Create はセッションを生成して初期化し、IDを割り当てる
func (m *Manager) Create(enableAudio bool) *asyncop.Operation[string] {
	op := asyncop.New[string]()

	CreateSessionAsync(m.enumerator, m.platform(), m.opts, enableAudio).Then(func(session *Session, err error) {
		if err != nil {
			op.Complete("", err)
			return
		}

		id := uuid.New().String()
		m.mu.Lock()
		m.sessions[id] = session
		m.mu.Unlock()

		op.Complete(id, nil)
	})
	return op
}

// Get はIDでセッションを取得する
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("セッションが見つかりません: %s", id)
	}
	return session, nil
}

// List は登録中のセッションIDを返す
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close はセッションを終了して登録から外す
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("セッションが見つかりません: %s", id)
	}
	return session.Close()
}

// CloseAll は全セッションを終了する
//
// 個々の終了の失敗は最初の1件だけを返し、残りの終了は続行する
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
