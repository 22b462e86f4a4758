// Package server は、キャプチャセッションを操作するHTTP APIを提供します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// セッションAPIのリクエスト処理を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - セッションの生成・取得・開始・停止・終了API
//   - ヘルスチェックとシステム状態の公開
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - グレースフルシャットダウンに対応（全セッション終了 →
//     HTTP停止 → 診断ログの書き出し）
//   - 非同期操作はリクエストスコープ内で同期ブリッジして応答する
package server
