package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"toomi/internal/asyncop"
)

// V4L2Enumerator はLinux環境でのキャプチャデバイス列挙を実装する
//
// /dev/video* をスキャンし、v4l2-ctlで実デバイス名を解決する。
// 音声クラスはALSAのカードリスト（/proc/asound/cards）から解決する
type V4L2Enumerator struct{}

// NewV4L2Enumerator は新しいV4L2Enumeratorを作成する
func NewV4L2Enumerator() Enumerator {
	return &V4L2Enumerator{}
}

// FindDevices は指定クラスのデバイス一覧を非同期に解決する
func (e *V4L2Enumerator) FindDevices(class DeviceClass) *asyncop.Operation[[]DeviceID] {
	return asyncop.Start(func() ([]DeviceID, error) {
		switch class {
		case DeviceClassVideoCapture:
			return e.scanVideoDevices()
		case DeviceClassAudioCapture:
			return e.scanAudioDevices()
		default:
			return nil, fmt.Errorf("未対応のデバイスクラス: %s", class)
		}
	})
}

// scanVideoDevices は /dev/video* パターンでビデオデバイスを検索する
func (e *V4L2Enumerator) scanVideoDevices() ([]DeviceID, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []DeviceID
	for _, match := range matches {
		if e.isDeviceAvailable(match) {
			devices = append(devices, DeviceID(match))
		}
	}

	return devices, nil
}

// scanAudioDevices はALSAのカードリストから音声キャプチャデバイスを検索する
func (e *V4L2Enumerator) scanAudioDevices() ([]DeviceID, error) {
	data, err := os.ReadFile("/proc/asound/cards")
	if err != nil {
		// カードリストがない環境ではデバイスなしとして扱う
		return nil, nil
	}

	var devices []DeviceID
	re := regexp.MustCompile(`^\s*(\d+)\s+\[`)
	for _, line := range strings.Split(string(data), "\n") {
		if m := re.FindStringSubmatch(line); m != nil {
			devices = append(devices, DeviceID("hw:"+m[1]))
		}
	}

	return devices, nil
}

// isDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (e *V4L2Enumerator) isDeviceAvailable(device string) bool {
	// デバイスファイルの存在確認
	if _, err := os.Stat(device); os.IsNotExist(err) {
		return false
	}

	// デバイスファイルの読み取り権限チェック
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer func() {
		_ = file.Close()
	}()

	// /dev/videoXX パターンかの簡易チェック
	matched, _ := regexp.MatchString(`^/dev/video\d+$`, device)
	return matched
}

// DeviceName はv4l2-ctlを使って実際のデバイス名を取得する
func (e *V4L2Enumerator) DeviceName(device DeviceID) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", string(device), "--info")
	output, err := cmd.Output()
	if err != nil {
		// フォールバック: デバイス番号から生成
		return fmt.Sprintf("キャプチャデバイス %d", extractDeviceNumber(string(device)))
	}

	// "Card type" の行からデバイス名を抽出
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Card type") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if name := strings.TrimSpace(parts[1]); name != "" {
					return name
				}
			}
		}
	}

	return fmt.Sprintf("キャプチャデバイス %d", extractDeviceNumber(string(device)))
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}
