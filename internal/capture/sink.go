package capture

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// Connection はエンコード済みサンプルを送り出す先のコネクション
//
// ワイヤプロトコルの詳細はこの境界の外側にある
type Connection interface {
	// Send はペイロードを1つ送信する
	Send(payload []byte) error

	// Close はコネクションを閉じる
	Close() error
}

// NetworkSink は与えられたコネクションとエンコードプロパティから
// 構築されるシンクアダプタ
//
// プラットフォームが押し込むサンプルをコネクションへ転送する。
// ライフサイクルはストリーミング中のセッションが所有するが、
// フレーム書き込みのために呼び出し元も参照を保持できる
type NetworkSink struct {
	mu sync.Mutex

	audioProps *AudioProperties
	videoProps VideoProperties
	conn       Connection

	spatialRef SpatialReference
	samples    int
}

// NewNetworkSink はシンクアダプタを構築する
//
// ビデオプロパティとコネクションは必須。音声プロパティは
// 音声トラックがある場合のみ渡される
func NewNetworkSink(audioProps *AudioProperties, videoProps VideoProperties, conn Connection) (*NetworkSink, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: コネクションがnilです", ErrSinkCreationFailed)
	}
	if videoProps.Width <= 0 || videoProps.Height <= 0 {
		return nil, fmt.Errorf("%w: ビデオプロパティが不正です (%dx%d)",
			ErrSinkCreationFailed, videoProps.Width, videoProps.Height)
	}

	return &NetworkSink{
		audioProps: audioProps,
		videoProps: videoProps,
		conn:       conn,
	}, nil
}

// WriteSample はエンコード済みサンプルをコネクションへ転送する
func (s *NetworkSink) WriteSample(sample Sample) error {
	s.mu.Lock()
	conn := s.conn
	s.samples++
	s.mu.Unlock()

	if err := conn.Send(sample.Data); err != nil {
		return fmt.Errorf("サンプルの送信に失敗: %w", err)
	}
	return nil
}

// SetSpatialReference は空間参照ハンドルを設定する
func (s *NetworkSink) SetSpatialReference(ref SpatialReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spatialRef = ref
}

// SpatialReference は現在の空間参照ハンドルを返す
func (s *NetworkSink) SpatialReference() SpatialReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spatialRef
}

// VideoProperties はシンクが受け取ったビデオプロパティを返す
func (s *NetworkSink) VideoProperties() VideoProperties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoProps
}

// AudioProperties はシンクが受け取った音声プロパティを返す（なければnil）
func (s *NetworkSink) AudioProperties() *AudioProperties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioProps
}

// Samples は転送したサンプル数を返す
func (s *NetworkSink) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// TCPConnection は長さプレフィックス付きでペイロードを送る最小のConnection実装
type TCPConnection struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialTCP は指定アドレスへTCPコネクションを確立する
func DialTCP(address string) (*TCPConnection, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("コネクションの確立に失敗: %w", err)
	}
	return &TCPConnection{conn: conn}, nil
}

// Send はペイロードを4バイトの長さプレフィックス付きで送信する
func (c *TCPConnection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := c.conn.Write(header[:]); err != nil {
		return fmt.Errorf("ヘッダの送信に失敗: %w", err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("ペイロードの送信に失敗: %w", err)
	}
	return nil
}

// Close はコネクションを閉じる
func (c *TCPConnection) Close() error {
	return c.conn.Close()
}

// MockConnection はテスト用のConnection実装
type MockConnection struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
	sendErr  error
}

// NewMockConnection は新しいMockConnectionを作成する
func NewMockConnection() *MockConnection {
	return &MockConnection{}
}

// Send は送信内容を記録する
func (c *MockConnection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}

	copied := make([]byte, len(payload))
	copy(copied, payload)
	c.payloads = append(c.payloads, copied)
	return nil
}

// Close はクローズを記録する
func (c *MockConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SetSendError はテスト用に送信失敗を設定する
func (c *MockConnection) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Payloads は送信されたペイロードを返す
func (c *MockConnection) Payloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([][]byte, len(c.payloads))
	copy(result, c.payloads)
	return result
}
