// Package capture はキャプチャセッションの状態機械と
// その周辺（デバイス列挙・シンクアダプタ・セッション管理）を提供する
//
// 責務:
//   - デバイス解決からプロファイル交渉、エフェクト取り付け、
//     録画開始・停止、後始末までの一連の遷移を順序付ける
//   - デバイスハンドルとイベント購読の排他所有
//   - エンコード済みサンプルのコネクションへの転送
//
// 使い分け:
//   - Session: 単一セッションの状態機械。直接使うか、
//     CreateSessionAsyncで初期化まで連鎖させる
//   - Manager: 複数セッションをIDで管理するレジストリ
//   - Platform/Enumerator: プラットフォーム境界。本番はV4L2Enumerator、
//     テストはMockPlatform/MockEnumeratorを使う
//
// 仕様:
//   - 部分失敗は必ず巻き戻される。StartAsyncの途中で失敗しても
//     購読とエフェクトは残らない
//   - Closeはどの状態からでも呼べて冪等
//   - 障害通知と録画上限超過は同一のクローズ通知へ合流する
package capture
