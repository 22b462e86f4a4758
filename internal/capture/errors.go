package capture

import "errors"

// セッションの統一エラー分類
//
// 連鎖するプラットフォーム呼び出しの失敗はこの閉じた分類へ正規化され、
// 合成された非同期操作の終端結果として上位へ伝播する
var (
	// ErrDeviceNotFound は要求されたクラスのキャプチャデバイスが存在しないことを表す
	ErrDeviceNotFound = errors.New("キャプチャデバイスが見つかりません")

	// ErrProfileNegotiationFailed は解像度・フレームレート条件を満たす
	// プロファイルが1つも存在しないことを表す
	ErrProfileNegotiationFailed = errors.New("条件を満たすキャプチャプロファイルがありません")

	// ErrPlatformInitFailed はプラットフォームの初期化呼び出しが失敗したことを表す
	ErrPlatformInitFailed = errors.New("キャプチャプラットフォームの初期化に失敗しました")

	// ErrEffectAttachFailed はエフェクトの取り付けが失敗したことを表す
	ErrEffectAttachFailed = errors.New("エフェクトの取り付けに失敗しました")

	// ErrSinkCreationFailed はネットワークシンクの構築が失敗したことを表す
	ErrSinkCreationFailed = errors.New("ネットワークシンクの構築に失敗しました")

	// ErrInvalidState は現在の状態では受け付けられない操作を表す
	// （例: InitAsync完了前のStartAsync）
	ErrInvalidState = errors.New("セッションの状態が不正です")
)
