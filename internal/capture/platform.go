package capture

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"toomi/internal/asyncop"
)

// Enumerator はキャプチャデバイスの列挙機能を提供する
type Enumerator interface {
	// FindDevices は指定クラスの利用可能なデバイス一覧を非同期に解決する
	FindDevices(class DeviceClass) *asyncop.Operation[[]DeviceID]
}

// Platform はキャプチャプラットフォームの境界インターフェース
//
// 実体は外部の能力オブジェクトとして存在し、完了は自前の
// スレッドプール上で配送されるものとして扱う
type Platform interface {
	// Initialize は初期化パラメータでデバイスを非同期に初期化する
	Initialize(settings InitSettings) *asyncop.Action

	// AvailableProfiles はデバイスが公開するキャプチャプロファイルを返す
	AvailableProfiles(device DeviceID) ([]Profile, error)

	// StreamProperties は初期化済みデバイスの交渉済み
	// 録画ストリームプロパティを返す
	StreamProperties() (VideoProperties, error)

	// SetOptimization はデバイスへ最適化ヒントを伝える
	SetOptimization(opt Optimization) error

	// AddVideoEffect はビデオエフェクトを非同期に取り付ける
	AddVideoEffect(def VideoEffectDefinition) *asyncop.Action

	// AddAudioEffect は音声エフェクトを非同期に取り付ける
	AddAudioEffect(def AudioEffectDefinition) *asyncop.Action

	// ClearEffects は対象ストリームのエフェクトを非同期に取り外す
	ClearEffects(stream StreamType) *asyncop.Action

	// StartRecording はシンクへの録画を非同期に開始する
	StartRecording(profile EncodingProfile, sink MediaSink) *asyncop.Action

	// StopRecording は録画を非同期に停止する
	StopRecording() *asyncop.Action

	// SubscribeFailed はプラットフォーム障害通知を購読する
	SubscribeFailed(handler func(reason string)) string

	// SubscribeRecordLimit は録画上限超過通知を購読する
	SubscribeRecordLimit(handler func()) string

	// Unsubscribe はトークンで購読を解除する。存在しないトークンは何もしない
	Unsubscribe(token string) error

	// Close はデバイスハンドルを解放する
	Close() error
}

// MediaSink はプラットフォームがエンコード済みサンプルを押し込む先
type MediaSink interface {
	WriteSample(sample Sample) error
}

// MockEnumerator はテスト用のEnumerator実装
type MockEnumerator struct {
	mu      sync.Mutex
	devices map[DeviceClass][]DeviceID
	failErr error
}

// NewMockEnumerator は新しいMockEnumeratorを作成する
func NewMockEnumerator() *MockEnumerator {
	return &MockEnumerator{devices: make(map[DeviceClass][]DeviceID)}
}

// SetDevices はテスト用にデバイス一覧を設定する
func (m *MockEnumerator) SetDevices(class DeviceClass, devices []DeviceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[class] = devices
}

// SetFailure はテスト用に列挙失敗を設定する
func (m *MockEnumerator) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// FindDevices は設定済みのデバイス一覧を返す
func (m *MockEnumerator) FindDevices(class DeviceClass) *asyncop.Operation[[]DeviceID] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return asyncop.Fail[[]DeviceID](m.failErr)
	}

	devices := make([]DeviceID, len(m.devices[class]))
	copy(devices, m.devices[class])
	return asyncop.Completed(devices, nil)
}

// MockPlatform はテスト用のPlatform実装
//
// 購読数カウンタと取り付け・取り外しの記録を公開し、
// 部分失敗後の後始末を検証できるようにする
type MockPlatform struct {
	mu sync.Mutex

	profiles    []Profile
	streamProps VideoProperties
	initialized bool
	recording   bool
	closed      bool

	failInit        bool
	failVideoEffect bool
	failAudioEffect bool
	failStart       bool
	failStop        bool

	initSettings   *InitSettings
	optimization   Optimization
	startedProfile *EncodingProfile
	startedSink    MediaSink

	videoEffects  []VideoEffectDefinition
	audioEffects  []AudioEffectDefinition
	clearedTypes  []StreamType
	failedSubs    map[string]func(string)
	recLimitSubs  map[string]func()
	unsubscribed  []string
	unsubscribeErr error
}

// NewMockPlatform は新しいMockPlatformを作成する
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		failedSubs:   make(map[string]func(string)),
		recLimitSubs: make(map[string]func()),
		streamProps:  VideoProperties{Width: 1920, Height: 1080, FrameRate: 30},
	}
}

// SetProfiles はテスト用に公開プロファイルを設定する
func (m *MockPlatform) SetProfiles(profiles []Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = profiles
}

// SetStreamProperties はテスト用に交渉済みプロパティを設定する
func (m *MockPlatform) SetStreamProperties(props VideoProperties) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamProps = props
}

// SetFailInit はテスト用に初期化失敗を設定する
func (m *MockPlatform) SetFailInit(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInit = fail
}

// SetFailVideoEffect はテスト用にビデオエフェクト失敗を設定する
func (m *MockPlatform) SetFailVideoEffect(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failVideoEffect = fail
}

// SetFailAudioEffect はテスト用に音声エフェクト失敗を設定する
func (m *MockPlatform) SetFailAudioEffect(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAudioEffect = fail
}

// SetFailStart はテスト用に録画開始失敗を設定する
func (m *MockPlatform) SetFailStart(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStart = fail
}

// SetUnsubscribeError はテスト用に購読解除失敗を設定する
func (m *MockPlatform) SetUnsubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribeErr = err
}

// Initialize は初期化パラメータを記録して完了する
func (m *MockPlatform) Initialize(settings InitSettings) *asyncop.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInit {
		return asyncop.Done(fmt.Errorf("モック: 初期化に失敗"))
	}

	copied := settings
	m.initSettings = &copied
	m.initialized = true
	return asyncop.Done(nil)
}

// AvailableProfiles は設定済みプロファイルを返す
func (m *MockPlatform) AvailableProfiles(_ DeviceID) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles := make([]Profile, len(m.profiles))
	copy(profiles, m.profiles)
	return profiles, nil
}

// StreamProperties は交渉済みプロパティを返す
func (m *MockPlatform) StreamProperties() (VideoProperties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return VideoProperties{}, fmt.Errorf("モック: 未初期化です")
	}
	return m.streamProps, nil
}

// SetOptimization は最適化ヒントを記録する
func (m *MockPlatform) SetOptimization(opt Optimization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optimization = opt
	return nil
}

// AddVideoEffect はビデオエフェクトの取り付けを記録する
func (m *MockPlatform) AddVideoEffect(def VideoEffectDefinition) *asyncop.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failVideoEffect {
		return asyncop.Done(fmt.Errorf("モック: ビデオエフェクトの取り付けに失敗"))
	}
	m.videoEffects = append(m.videoEffects, def)
	return asyncop.Done(nil)
}

// AddAudioEffect は音声エフェクトの取り付けを記録する
func (m *MockPlatform) AddAudioEffect(def AudioEffectDefinition) *asyncop.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAudioEffect {
		return asyncop.Done(fmt.Errorf("モック: 音声エフェクトの取り付けに失敗"))
	}
	m.audioEffects = append(m.audioEffects, def)
	return asyncop.Done(nil)
}

// ClearEffects は取り外し対象のストリームを記録する
func (m *MockPlatform) ClearEffects(stream StreamType) *asyncop.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearedTypes = append(m.clearedTypes, stream)
	return asyncop.Done(nil)
}

// StartRecording は録画開始を記録する
func (m *MockPlatform) StartRecording(profile EncodingProfile, sink MediaSink) *asyncop.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failStart {
		return asyncop.Done(fmt.Errorf("モック: 録画開始に失敗"))
	}

	copied := profile
	m.startedProfile = &copied
	m.startedSink = sink
	m.recording = true
	return asyncop.Done(nil)
}

// StopRecording は録画停止を記録する
func (m *MockPlatform) StopRecording() *asyncop.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failStop {
		return asyncop.Done(fmt.Errorf("モック: 録画停止に失敗"))
	}
	m.recording = false
	return asyncop.Done(nil)
}

// SubscribeFailed は障害通知の購読を登録する
func (m *MockPlatform) SubscribeFailed(handler func(reason string)) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.New().String()
	m.failedSubs[token] = handler
	return token
}

// SubscribeRecordLimit は録画上限超過通知の購読を登録する
func (m *MockPlatform) SubscribeRecordLimit(handler func()) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.New().String()
	m.recLimitSubs[token] = handler
	return token
}

// Unsubscribe はトークンで購読を解除する
func (m *MockPlatform) Unsubscribe(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsubscribed = append(m.unsubscribed, token)
	if m.unsubscribeErr != nil {
		return m.unsubscribeErr
	}
	delete(m.failedSubs, token)
	delete(m.recLimitSubs, token)
	return nil
}

// Close はデバイスハンドルの解放を記録する
func (m *MockPlatform) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.recording = false
	return nil
}

// FireFailed はテスト用にプラットフォーム障害を発火させる
func (m *MockPlatform) FireFailed(reason string) {
	m.mu.Lock()
	handlers := make([]func(string), 0, len(m.failedSubs))
	for _, h := range m.failedSubs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(reason)
	}
}

// FireRecordLimit はテスト用に録画上限超過を発火させる
func (m *MockPlatform) FireRecordLimit() {
	m.mu.Lock()
	handlers := make([]func(), 0, len(m.recLimitSubs))
	for _, h := range m.recLimitSubs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// SubscriptionCount は有効な購読の総数を返す
func (m *MockPlatform) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failedSubs) + len(m.recLimitSubs)
}

// VideoEffects は取り付けられたビデオエフェクトを返す
func (m *MockPlatform) VideoEffects() []VideoEffectDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]VideoEffectDefinition, len(m.videoEffects))
	copy(result, m.videoEffects)
	return result
}

// AudioEffects は取り付けられた音声エフェクトを返す
func (m *MockPlatform) AudioEffects() []AudioEffectDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]AudioEffectDefinition, len(m.audioEffects))
	copy(result, m.audioEffects)
	return result
}

// ClearedTypes は取り外されたストリーム種別を返す
func (m *MockPlatform) ClearedTypes() []StreamType {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]StreamType, len(m.clearedTypes))
	copy(result, m.clearedTypes)
	return result
}

// InitSettings は記録された初期化パラメータを返す
func (m *MockPlatform) InitSettings() *InitSettings {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initSettings == nil {
		return nil
	}
	copied := *m.initSettings
	return &copied
}

// Optimization は記録された最適化ヒントを返す
func (m *MockPlatform) Optimization() Optimization {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.optimization
}

// StartedProfile は録画開始時のエンコードプロファイルを返す
func (m *MockPlatform) StartedProfile() *EncodingProfile {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startedProfile == nil {
		return nil
	}
	copied := *m.startedProfile
	return &copied
}

// StartedSink は録画開始時に渡されたシンクを返す
func (m *MockPlatform) StartedSink() MediaSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedSink
}

// Closed はデバイスハンドルが解放されたかを返す
func (m *MockPlatform) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
