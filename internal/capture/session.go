package capture

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"toomi/internal/asyncop"
	"toomi/internal/logsink"
)

// Session はキャプチャセッションの状態機械
//
// デバイス解決 → 初期化 → プロファイル交渉 → エフェクト取り付け →
// 録画開始/停止 → 後始末 を非同期操作の連鎖として順序付ける。
// デバイスハンドルとイベント購読はセッションが排他的に所有する。
// 各遷移（InitAsync/StartAsync/StopAsync）は再入可能ではない。
// 同じ遷移の並行呼び出しは前提条件違反であり、動作は保証されない
type Session struct {
	mu sync.Mutex

	opts       Options
	enumerator Enumerator
	platform   Platform
	diagSink   *logsink.Sink

	state       State
	initialized bool

	enableAudio      bool
	enableMrc        bool
	videoEffectAdded bool
	audioEffectAdded bool
	captureStarted   bool

	videoDeviceID DeviceID
	audioDeviceID DeviceID
	negotiated    Profile

	failedToken      string
	recordLimitToken string

	sink       *NetworkSink
	spatialRef SpatialReference

	closedSubs map[string]func()
}

// New は未初期化のSessionを作成する
func New(enumerator Enumerator, platform Platform, opts Options) *Session {
	return &Session{
		opts:       opts,
		enumerator: enumerator,
		platform:   platform,
		diagSink:   logsink.Default(),
		state:      StateUninitialized,
		closedSubs: make(map[string]func()),
	}
}

// CreateSessionAsync はセッションを作成して初期化まで連鎖させる
//
// 初期化済みのセッション、または連鎖中の最初の失敗を結果とする
func CreateSessionAsync(enumerator Enumerator, platform Platform, opts Options, enableAudio bool) *asyncop.Operation[*Session] {
	session := New(enumerator, platform, opts)

	op := asyncop.New[*Session]()
	session.InitAsync(enableAudio).Then(func(_ struct{}, err error) {
		if err != nil {
			op.Complete(nil, err)
			return
		}
		op.Complete(session, nil)
	})
	return op
}

// State は現在の状態を返す
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NegotiatedProfile は交渉済みのキャプチャプロファイルを返す
func (s *Session) NegotiatedProfile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

// Sink は配信中のネットワークシンクを返す（配信中でなければnil）
func (s *Session) Sink() *NetworkSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// SetSpatialReference は空間参照ハンドルを設定する
//
// 配信中であれば即座にシンクへ伝播する
func (s *Session) SetSpatialReference(ref SpatialReference) {
	s.mu.Lock()
	s.spatialRef = ref
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.SetSpatialReference(ref)
	}
}

// SubscribeClosed はセッションのクローズ通知を購読する
//
// プラットフォーム障害と録画上限超過はどちらもこの通知に合流する
func (s *Session) SubscribeClosed(handler func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.New().String()
	s.closedSubs[token] = handler
	return token
}

// UnsubscribeClosed はクローズ通知の購読を解除する
//
// 存在しないトークンは何もしない（構造上の冪等性）
func (s *Session) UnsubscribeClosed(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.closedSubs, token)
}

// InitAsync はデバイス解決・プロファイル交渉・プラットフォーム初期化を連鎖させる
//
// どの段階の失敗でもセッションは未初期化のまま残り、合成された操作は
// 起点のエラーで失敗する
func (s *Session) InitAsync(enableAudio bool) *asyncop.Action {
	s.diag("InitAsync: 初期化を開始します (audio=%t)", enableAudio)

	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return asyncop.Done(fmt.Errorf("%w: %s 状態では初期化できません", ErrInvalidState, state))
	}
	s.state = StateInitializing
	s.enableAudio = enableAudio
	s.mu.Unlock()

	op := asyncop.New[struct{}]()
	go s.initialize(enableAudio, op)
	return op
}

// initialize はInitAsyncの実体。専用ゴルーチン上で同期ブリッジを使う
func (s *Session) initialize(enableAudio bool, op *asyncop.Action) {
	fail := func(err error) {
		s.diag("InitAsync: 失敗しました: %v", err)
		s.mu.Lock()
		s.state = StateUninitialized
		s.mu.Unlock()
		op.Complete(struct{}{}, err)
	}

	// ビデオデバイスの解決（列挙は同期ブリッジで待つ）
	videoDevices, err := s.enumerator.FindDevices(DeviceClassVideoCapture).Wait(s.opts.EnumerateTimeout)
	if err != nil {
		fail(fmt.Errorf("%w: %v", ErrDeviceNotFound, err))
		return
	}
	if len(videoDevices) == 0 {
		fail(fmt.Errorf("%w: ビデオキャプチャデバイスがありません", ErrDeviceNotFound))
		return
	}
	videoID := videoDevices[0]

	// 音声が要求された場合のみ音声デバイスを解決する
	var audioID DeviceID
	if enableAudio {
		audioDevices, err := s.enumerator.FindDevices(DeviceClassAudioCapture).Wait(s.opts.EnumerateTimeout)
		if err != nil {
			fail(fmt.Errorf("%w: %v", ErrDeviceNotFound, err))
			return
		}
		if len(audioDevices) == 0 {
			fail(fmt.Errorf("%w: 音声キャプチャデバイスがありません", ErrDeviceNotFound))
			return
		}
		audioID = audioDevices[0]
	}

	// プロファイル交渉（列挙順の先勝ち）
	profiles, err := s.platform.AvailableProfiles(videoID)
	if err != nil {
		fail(fmt.Errorf("%w: %v", ErrProfileNegotiationFailed, err))
		return
	}
	profile, found := s.selectProfile(profiles)
	if !found {
		fail(fmt.Errorf("%w: %dx%d 以上 %dfps のプロファイルがありません",
			ErrProfileNegotiationFailed, s.opts.MinWidth, s.opts.MinHeight, s.opts.TargetFrameRate))
		return
	}

	mode := StreamingModeVideo
	if enableAudio {
		mode = StreamingModeAudioAndVideo
	}

	settings := InitSettings{
		VideoDeviceID: videoID,
		AudioDeviceID: audioID,
		Mode:          mode,
		Profile:       profile,
	}

	s.platform.Initialize(settings).Then(func(_ struct{}, err error) {
		if err != nil {
			fail(fmt.Errorf("%w: %v", ErrPlatformInitFailed, err))
			return
		}

		// デバイスが公開するエンコード能力を取得し、低遅延ヒントを設定する
		if _, err := s.platform.StreamProperties(); err != nil {
			fail(fmt.Errorf("%w: エンコード能力の取得に失敗: %v", ErrPlatformInitFailed, err))
			return
		}
		if err := s.platform.SetOptimization(OptimizationLatencyThenQuality); err != nil {
			fail(fmt.Errorf("%w: 最適化ヒントの設定に失敗: %v", ErrPlatformInitFailed, err))
			return
		}

		s.mu.Lock()
		s.videoDeviceID = videoID
		s.audioDeviceID = audioID
		s.negotiated = profile
		s.initialized = true
		s.state = StateReady
		s.mu.Unlock()

		s.diag("InitAsync: 完了しました (profile=%dx%d@%.0f)", profile.Width, profile.Height, profile.FrameRate)
		op.Complete(struct{}{}, nil)
	})
}

// selectProfile は条件を満たす最初のプロファイルを選ぶ
//
// 解像度が下限以上で、フレームレートの四捨五入が目標値に一致する
// 最初の1件（ベストマッチではなく先勝ち。同点は列挙順で決まる）
func (s *Session) selectProfile(profiles []Profile) (Profile, bool) {
	for _, p := range profiles {
		if p.Width >= s.opts.MinWidth && p.Height >= s.opts.MinHeight &&
			int(math.Round(p.FrameRate)) == s.opts.TargetFrameRate {
			return p, true
		}
	}
	return Profile{}, false
}

// StartAsync はシンクアダプタの構築・イベント購読・エフェクト取り付け・
// 録画開始を連鎖させる
//
// 開始呼び出しより前のどの段階で失敗しても、登録済みの購読と
// 取り付け済みのエフェクトは必ず巻き戻される
func (s *Session) StartAsync(enableMrc bool, conn Connection) *asyncop.Action {
	s.diag("StartAsync: 録画開始を要求します (mrc=%t)", enableMrc)

	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return asyncop.Done(fmt.Errorf("%w: %s 状態では開始できません", ErrInvalidState, state))
	}
	s.state = StateStarting
	enableAudio := s.enableAudio
	s.mu.Unlock()

	op := asyncop.New[struct{}]()
	go s.start(enableMrc, enableAudio, conn, op)
	return op
}

// start はStartAsyncの実体。専用ゴルーチン上で同期ブリッジを使う
func (s *Session) start(enableMrc, enableAudio bool, conn Connection, op *asyncop.Action) {
	// 部分失敗時の巻き戻し。購読とエフェクトを残さずReadyへ戻す
	revert := func(err error) {
		s.diag("StartAsync: 失敗しました: %v", err)
		s.unsubscribeEvents()
		s.clearAttachedEffects()
		s.mu.Lock()
		s.state = StateReady
		s.mu.Unlock()
		op.Complete(struct{}{}, err)
	}

	// 交渉済みのビデオ幅・高さを読み取る
	props, err := s.platform.StreamProperties()
	if err != nil {
		s.mu.Lock()
		s.state = StateReady
		s.mu.Unlock()
		op.Complete(struct{}{}, fmt.Errorf("%w: ストリームプロパティの取得に失敗: %v", ErrPlatformInitFailed, err))
		return
	}

	// 出力エンコードプロファイルを組み立てる。
	// シンクは生のエンコード済みサンプルを消費するためコンテナは外し、
	// 音声が無効ならトラックごと省く
	profile := EncodingProfile{
		Video: VideoProperties{
			Width:     props.Width,
			Height:    props.Height,
			FrameRate: props.FrameRate,
		},
		Container: nil,
	}
	if enableAudio {
		profile.Audio = &AudioProperties{SampleRate: 48000, Channels: 1}
	}

	sink, err := NewNetworkSink(profile.Audio, profile.Video, conn)
	if err != nil {
		s.mu.Lock()
		s.state = StateReady
		s.mu.Unlock()
		op.Complete(struct{}{}, err)
		return
	}

	// イベント購読は開始呼び出しより先に行い、通知の窓を取りこぼさない
	failedToken := s.platform.SubscribeFailed(func(reason string) {
		s.diag("プラットフォーム障害: %s", reason)
		s.notifyClosed()
	})
	recordLimitToken := s.platform.SubscribeRecordLimit(func() {
		s.diag("録画上限を超過しました")
		s.notifyClosed()
	})

	s.mu.Lock()
	s.failedToken = failedToken
	s.recordLimitToken = recordLimitToken
	s.mu.Unlock()

	if enableMrc {
		videoDef := VideoEffectDefinition{
			StreamType:          StreamTypeVideoRecord,
			HologramComposition: true,
			VideoStabilization:  false,
			GlobalOpacity:       s.opts.MrcOpacity,
			RecordingIndicator:  true,
		}
		if _, err := s.platform.AddVideoEffect(videoDef).Wait(s.opts.VideoEffectTimeout); err != nil {
			revert(fmt.Errorf("%w: %v", ErrEffectAttachFailed, err))
			return
		}

		s.mu.Lock()
		s.videoEffectAdded = true
		s.enableMrc = true
		s.mu.Unlock()

		if enableAudio {
			audioDef := AudioEffectDefinition{MixerMode: AudioMixerModeMic}
			if _, err := s.platform.AddAudioEffect(audioDef).Wait(s.opts.AudioEffectTimeout); err != nil {
				revert(fmt.Errorf("%w: %v", ErrEffectAttachFailed, err))
				return
			}

			s.mu.Lock()
			s.audioEffectAdded = true
			s.mu.Unlock()
		}
	}

	s.platform.StartRecording(profile, sink).Then(func(_ struct{}, err error) {
		if err != nil {
			revert(fmt.Errorf("録画開始に失敗: %w", err))
			return
		}

		s.mu.Lock()
		s.captureStarted = true
		s.state = StateStreaming
		s.sink = sink
		ref := s.spatialRef
		s.mu.Unlock()

		// 外部から与えられた空間参照をシンクへ伝播する
		if ref != nil {
			sink.SetSpatialReference(ref)
		}

		s.diag("StartAsync: 配信を開始しました (%dx%d)", profile.Video.Width, profile.Video.Height)
		op.Complete(struct{}{}, nil)
	})
}

// StopAsync は録画を停止して後始末まで連鎖させる
//
// 配信中でなければ何もしない
func (s *Session) StopAsync() *asyncop.Action {
	s.diag("StopAsync: 停止を要求します")

	s.mu.Lock()
	if !s.captureStarted {
		s.mu.Unlock()
		return asyncop.Done(nil)
	}
	s.state = StateStopping
	s.mu.Unlock()

	op := asyncop.New[struct{}]()
	s.platform.StopRecording().Then(func(_ struct{}, err error) {
		if err != nil {
			// 停止の失敗は記録するが、後始末は必ず実行する
			s.diag("StopAsync: 録画停止に失敗: %v", err)
		}

		closeErr := s.Close()
		if err == nil {
			err = closeErr
		}
		op.Complete(struct{}{}, err)
	})
	return op
}

// Close はイベント購読・エフェクト・デバイスハンドルを無条件に解放する
//
// どの状態からでも呼び出せる。2回目以降の呼び出しは何もしない。
// 個々の解除の失敗は記録するだけで、後始末全体は止めない
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}

	initialized := s.initialized
	s.captureStarted = false
	s.sink = nil
	s.state = StateClosed
	s.mu.Unlock()

	s.diag("Close: セッションを終了します")

	if !initialized {
		return nil
	}

	s.unsubscribeEvents()
	s.clearAttachedEffects()

	if err := s.platform.Close(); err != nil {
		s.diag("Close: デバイスハンドルの解放に失敗: %v", err)
		return fmt.Errorf("デバイスハンドルの解放に失敗: %w", err)
	}

	return nil
}

// unsubscribeEvents は登録済みのイベント購読を解除する
//
// 解除の失敗は記録するだけで致命的には扱わない
func (s *Session) unsubscribeEvents() {
	s.mu.Lock()
	failedToken := s.failedToken
	recordLimitToken := s.recordLimitToken
	s.failedToken = ""
	s.recordLimitToken = ""
	s.mu.Unlock()

	if failedToken != "" {
		if err := s.platform.Unsubscribe(failedToken); err != nil {
			s.diag("障害通知の購読解除に失敗: %v", err)
		}
	}
	if recordLimitToken != "" {
		if err := s.platform.Unsubscribe(recordLimitToken); err != nil {
			s.diag("録画上限通知の購読解除に失敗: %v", err)
		}
	}
}

// clearAttachedEffects は取り付けられたエフェクトのみを取り外す
func (s *Session) clearAttachedEffects() {
	s.mu.Lock()
	videoAdded := s.videoEffectAdded
	audioAdded := s.audioEffectAdded
	s.videoEffectAdded = false
	s.audioEffectAdded = false
	s.mu.Unlock()

	if videoAdded {
		s.platform.ClearEffects(StreamTypeVideoRecord).Then(func(_ struct{}, err error) {
			if err != nil {
				s.diag("ビデオエフェクトの取り外しに失敗: %v", err)
			}
		})
	}
	if audioAdded {
		s.platform.ClearEffects(StreamTypeAudio).Then(func(_ struct{}, err error) {
			if err != nil {
				s.diag("音声エフェクトの取り外しに失敗: %v", err)
			}
		})
	}
}

// notifyClosed は全購読者へクローズ通知を配送する
//
// 障害と録画上限超過は区別されず、同じ通知へ合流する。
// 状態の巻き戻しは行わない。購読者側がCloseを呼ぶことを期待する
func (s *Session) notifyClosed() {
	s.mu.Lock()
	handlers := make([]func(), 0, len(s.closedSubs))
	for _, h := range s.closedSubs {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	// 購読者の呼び出しはロックの外で行う
	for _, h := range handlers {
		h()
	}
}

// VideoEffectAttached はビデオエフェクトが取り付け済みかを返す
func (s *Session) VideoEffectAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoEffectAdded
}

// AudioEffectAttached は音声エフェクトが取り付け済みかを返す
func (s *Session) AudioEffectAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioEffectAdded
}

// diag は診断メッセージをログシンクへ記録する
func (s *Session) diag(format string, args ...interface{}) {
	s.diagSink.Log("CaptureSession " + fmt.Sprintf(format, args...))
}
