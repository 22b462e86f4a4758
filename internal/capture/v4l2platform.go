package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"toomi/internal/asyncop"
)

// V4L2Platform はLinux環境向けのPlatform実装
//
// v4l2-ctlでデバイス能力を照会し、ffmpegのサブプロセスで
// エンコード済みフレームをシンクへ押し込む。
// 合成エフェクトと音声トラックはこのプラットフォームでは利用できない
type V4L2Platform struct {
	mu sync.Mutex

	settings     *InitSettings
	optimization Optimization
	initialized  bool
	closed       bool

	cancel context.CancelFunc
	doneCh chan struct{}

	failedSubs   map[string]func(string)
	recLimitSubs map[string]func()
}

// NewV4L2Platform は新しいV4L2Platformを作成する
func NewV4L2Platform() Platform {
	return &V4L2Platform{
		failedSubs:   make(map[string]func(string)),
		recLimitSubs: make(map[string]func()),
	}
}

// Initialize はデバイスの存在を確認して初期化パラメータを保持する
func (p *V4L2Platform) Initialize(settings InitSettings) *asyncop.Action {
	return asyncop.Start(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// v4l2-ctlコマンドでデバイス情報を取得して確認
		cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", string(settings.VideoDeviceID), "--info")
		if err := cmd.Run(); err != nil {
			return struct{}{}, fmt.Errorf("デバイスの確認に失敗: %w", err)
		}

		p.mu.Lock()
		copied := settings
		p.settings = &copied
		p.initialized = true
		p.mu.Unlock()
		return struct{}{}, nil
	})
}

// AvailableProfiles はv4l2-ctlの出力からキャプチャプロファイルを列挙する
func (p *V4L2Platform) AvailableProfiles(device DeviceID) ([]Profile, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", string(device), "--list-formats-ext")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("フォーマット一覧の取得に失敗: %w", err)
	}

	return parseProfiles(string(output)), nil
}

// parseProfiles は --list-formats-ext の出力をプロファイルへ変換する
//
// "Size: Discrete 1920x1080" の行で解像度を切り替え、続く
// "Interval: ... (30.000 fps)" の行ごとに1プロファイルを作る
func parseProfiles(output string) []Profile {
	sizeRe := regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)
	fpsRe := regexp.MustCompile(`\(([\d.]+) fps\)`)

	var profiles []Profile
	var width, height int
	for _, line := range strings.Split(output, "\n") {
		if m := sizeRe.FindStringSubmatch(line); m != nil {
			width, _ = strconv.Atoi(m[1])
			height, _ = strconv.Atoi(m[2])
			continue
		}
		if m := fpsRe.FindStringSubmatch(line); m != nil && width > 0 {
			fps, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			profiles = append(profiles, Profile{Width: width, Height: height, FrameRate: fps})
		}
	}
	return profiles
}

// StreamProperties は初期化パラメータ由来の交渉済みプロパティを返す
func (p *V4L2Platform) StreamProperties() (VideoProperties, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return VideoProperties{}, fmt.Errorf("未初期化です")
	}
	return VideoProperties{
		Width:     p.settings.Profile.Width,
		Height:    p.settings.Profile.Height,
		FrameRate: p.settings.Profile.FrameRate,
	}, nil
}

// SetOptimization は最適化ヒントを保持する
func (p *V4L2Platform) SetOptimization(opt Optimization) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.optimization = opt
	return nil
}

// AddVideoEffect は常に失敗する。合成エフェクトはこの環境では利用できない
func (p *V4L2Platform) AddVideoEffect(_ VideoEffectDefinition) *asyncop.Action {
	return asyncop.Done(fmt.Errorf("このプラットフォームでは合成エフェクトは利用できません"))
}

// AddAudioEffect は常に失敗する。音声ミキシングはこの環境では利用できない
func (p *V4L2Platform) AddAudioEffect(_ AudioEffectDefinition) *asyncop.Action {
	return asyncop.Done(fmt.Errorf("このプラットフォームでは音声エフェクトは利用できません"))
}

// ClearEffects は取り外すエフェクトがないため常に成功する
func (p *V4L2Platform) ClearEffects(_ StreamType) *asyncop.Action {
	return asyncop.Done(nil)
}

// StartRecording はffmpegのサブプロセスを起動してフレームをシンクへ押し込む
func (p *V4L2Platform) StartRecording(profile EncodingProfile, sink MediaSink) *asyncop.Action {
	if profile.Audio != nil {
		return asyncop.Done(fmt.Errorf("このプラットフォームでは音声トラックは利用できません"))
	}

	p.mu.Lock()
	if !p.initialized || p.closed {
		p.mu.Unlock()
		return asyncop.Done(fmt.Errorf("録画を開始できる状態ではありません"))
	}
	if p.cancel != nil {
		p.mu.Unlock()
		return asyncop.Done(fmt.Errorf("すでに録画中です"))
	}
	device := string(p.settings.VideoDeviceID)
	lowLatency := p.optimization == OptimizationLatencyThenQuality
	p.mu.Unlock()

	return asyncop.Start(func() (struct{}, error) {
		ctx, cancel := context.WithCancel(context.Background())

		args := []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", profile.Video.Width, profile.Video.Height),
			"-r", strconv.Itoa(int(profile.Video.FrameRate)),
			"-i", device,
			"-f", "image2pipe",
			"-c:v", "mjpeg",
			"-q:v", "3",
		}
		if lowLatency {
			args = append([]string{"-fflags", "nobuffer"}, args...)
		}
		args = append(args, "-")

		cmd := exec.CommandContext(ctx, "ffmpeg", args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			cancel()
			return struct{}{}, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
		}
		if err := cmd.Start(); err != nil {
			cancel()
			return struct{}{}, fmt.Errorf("ffmpegの起動に失敗: %w", err)
		}

		done := make(chan struct{})
		p.mu.Lock()
		p.cancel = cancel
		p.doneCh = done
		p.mu.Unlock()

		// フレーム読み取りループ
		go func() {
			defer close(done)
			defer func() {
				_ = cmd.Wait() // エラーは無視（コンテキストキャンセル時に発生するため）
			}()

			started := time.Now()
			buffer := make([]byte, 1024*1024)
			frameBuffer := bytes.Buffer{}

			for {
				n, err := stdout.Read(buffer)
				if err != nil {
					if ctx.Err() == nil {
						p.fireFailed(fmt.Sprintf("フレーム読み取りエラー: %v", err))
					}
					return
				}

				frameBuffer.Write(buffer[:n])

				// JPEGマーカーを探してフレームを分割
				data := frameBuffer.Bytes()
				for {
					// JPEGの開始マーカー（FF D8）を探す
					startIdx := bytes.Index(data, []byte{0xFF, 0xD8})
					if startIdx == -1 {
						break
					}

					// JPEGの終了マーカー（FF D9）を探す
					endIdx := bytes.Index(data[startIdx+2:], []byte{0xFF, 0xD9})
					if endIdx == -1 {
						// 完全なフレームがまだない
						if startIdx > 0 {
							frameBuffer.Reset()
							frameBuffer.Write(data[startIdx:])
						}
						break
					}

					// 完全なJPEGフレームを抽出
					endIdx += startIdx + 2 + 2
					frame := make([]byte, endIdx-startIdx)
					copy(frame, data[startIdx:endIdx])

					sample := Sample{
						Stream:    StreamTypeVideoRecord,
						Timestamp: time.Since(started),
						Data:      frame,
					}
					if err := sink.WriteSample(sample); err != nil {
						if ctx.Err() == nil {
							p.fireFailed(fmt.Sprintf("サンプルの書き込みに失敗: %v", err))
						}
						return
					}

					// 処理済みデータを削除
					remaining := data[endIdx:]
					frameBuffer.Reset()
					if len(remaining) > 0 {
						frameBuffer.Write(remaining)
						data = frameBuffer.Bytes()
					} else {
						break
					}
				}
			}
		}()

		return struct{}{}, nil
	})
}

// StopRecording はffmpegを停止して読み取りループの終了を待つ
func (p *V4L2Platform) StopRecording() *asyncop.Action {
	p.mu.Lock()
	cancel := p.cancel
	done := p.doneCh
	p.cancel = nil
	p.doneCh = nil
	p.mu.Unlock()

	if cancel == nil {
		return asyncop.Done(nil)
	}

	return asyncop.Start(func() (struct{}, error) {
		cancel()
		select {
		case <-done:
			return struct{}{}, nil
		case <-time.After(5 * time.Second):
			return struct{}{}, fmt.Errorf("録画の停止がタイムアウトしました")
		}
	})
}

// SubscribeFailed は障害通知の購読を登録する
func (p *V4L2Platform) SubscribeFailed(handler func(reason string)) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := uuid.New().String()
	p.failedSubs[token] = handler
	return token
}

// SubscribeRecordLimit は録画上限超過通知の購読を登録する
//
// この環境に録画上限はないため発火しないが、境界の契約として受け付ける
func (p *V4L2Platform) SubscribeRecordLimit(handler func()) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := uuid.New().String()
	p.recLimitSubs[token] = handler
	return token
}

// Unsubscribe はトークンで購読を解除する
func (p *V4L2Platform) Unsubscribe(token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.failedSubs, token)
	delete(p.recLimitSubs, token)
	return nil
}

// Close は録画を止めてデバイスを手放す
func (p *V4L2Platform) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.cancel = nil
	p.doneCh = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// fireFailed は障害通知を全購読者へ配送する
func (p *V4L2Platform) fireFailed(reason string) {
	p.mu.Lock()
	handlers := make([]func(string), 0, len(p.failedSubs))
	for _, h := range p.failedSubs {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(reason)
	}
}
