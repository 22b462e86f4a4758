package capture

import "time"

// State はキャプチャセッションの状態を表す
type State string

const (
	StateUninitialized State = "uninitialized" // 未初期化
	StateInitializing  State = "initializing"  // デバイス解決と初期化中
	StateReady         State = "ready"         // 初期化済み・開始待ち
	StateStarting      State = "starting"      // 録画開始中
	StateStreaming     State = "streaming"     // シンクへ配信中
	StateStopping      State = "stopping"      // 録画停止中
	StateClosed        State = "closed"        // 終了（終端・再入可能）
)

// DeviceClass は列挙するキャプチャデバイスの種別を表す
type DeviceClass string

const (
	DeviceClassVideoCapture DeviceClass = "video_capture"
	DeviceClassAudioCapture DeviceClass = "audio_capture"
)

// DeviceID はキャプチャデバイスの一意識別子
type DeviceID string

// StreamType はエフェクトやプロパティの対象ストリームを表す
type StreamType string

const (
	StreamTypeVideoRecord StreamType = "video_record"
	StreamTypeAudio       StreamType = "audio"
)

// StreamingMode は初期化時に要求するストリーム構成を表す
type StreamingMode string

const (
	StreamingModeVideo         StreamingMode = "video"
	StreamingModeAudioAndVideo StreamingMode = "audio_and_video"
)

// Optimization はデバイスへ伝える最適化ヒントを表す
type Optimization string

const (
	// OptimizationLatencyThenQuality は品質より低遅延を優先する
	OptimizationLatencyThenQuality Optimization = "latency_then_quality"
)

// Profile はデバイスが公開する（解像度・フレームレート）能力を表す
type Profile struct {
	Width     int     // 画像幅
	Height    int     // 画像高さ
	FrameRate float64 // フレームレート
}

// InitSettings はプラットフォーム初期化呼び出しへ渡すパラメータ
type InitSettings struct {
	VideoDeviceID DeviceID      // 必須のビデオデバイス
	AudioDeviceID DeviceID      // 音声有効時のみ設定される
	Mode          StreamingMode // ストリーム構成
	Profile       Profile       // 交渉済みプロファイル
}

// VideoProperties は交渉済みビデオストリームのエンコードプロパティ
type VideoProperties struct {
	Width     int
	Height    int
	FrameRate float64
}

// AudioProperties は音声トラックのエンコードプロパティ
type AudioProperties struct {
	SampleRate int // サンプリングレート (Hz)
	Channels   int // チャンネル数
}

// EncodingProfile は録画開始時にプラットフォームへ渡す出力プロファイル
//
// シンクは生のエンコード済みサンプルを消費するため、コンテナは
// 常に持たない。音声が無効の場合はAudioもnilとなる
type EncodingProfile struct {
	Video     VideoProperties
	Audio     *AudioProperties
	Container *string // 常にnil（muxなし）
}

// VideoEffectDefinition は合成ビデオエフェクトの取り付けパラメータ
type VideoEffectDefinition struct {
	StreamType          StreamType
	HologramComposition bool    // ホログラム合成
	VideoStabilization  bool    // 手ぶれ補正
	GlobalOpacity       float64 // 合成の不透明度
	RecordingIndicator  bool    // 録画インジケータ表示
}

// AudioMixerMode は音声エフェクトのミキサーモードを表す
type AudioMixerMode string

const (
	AudioMixerModeMic AudioMixerMode = "mic"
)

// AudioEffectDefinition は音声ミキシングエフェクトの取り付けパラメータ
type AudioEffectDefinition struct {
	MixerMode AudioMixerMode
}

// SpatialReference はシンクへ伝播する不透明な空間参照ハンドル
type SpatialReference interface{}

// Sample はプラットフォームがシンクへ押し込むエンコード済みサンプル
type Sample struct {
	Stream    StreamType
	Timestamp time.Duration
	Data      []byte
}

// Options はセッションの動作パラメータ
type Options struct {
	// プロファイル交渉の条件（先勝ち選択）
	MinWidth        int
	MinHeight       int
	TargetFrameRate int

	// デバイス列挙の同期ブリッジ待機時間
	EnumerateTimeout time.Duration

	// エフェクト取り付けの同期ブリッジ待機時間
	VideoEffectTimeout time.Duration
	AudioEffectTimeout time.Duration

	// MRC合成エフェクトの固定パラメータ
	MrcOpacity float64
}

// DefaultOptions は既定の動作パラメータを返す
func DefaultOptions() Options {
	return Options{
		MinWidth:           1280,
		MinHeight:          720,
		TargetFrameRate:    30,
		EnumerateTimeout:   10 * time.Second,
		VideoEffectTimeout: 5 * time.Second,
		AudioEffectTimeout: 500 * time.Millisecond,
		MrcOpacity:         0.9,
	}
}
