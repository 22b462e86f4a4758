// Package logsink 書き込み合流型の診断ログシンクを担う
//
// # 責務
// - 診断メッセージの追記専用バッファリング
// - バッキングストアへの非同期・単一飛行（single-flight）フラッシュ
// - プロセス全体で共有するデフォルトシンクの提供
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 呼び出し元を一切ブロックせずに診断メッセージを記録したい
// - ストアが後から接続される場合でもメッセージを失いたくない
//
// # 仕様
// - フラッシュは同時に最大1サイクルのみ実行される
// - フラッシュ中に追記されたメッセージは次のサイクルで必ず回収される
// - メッセージは追記順（FIFO）で永続化され、欠落も重複もしない
// - 書き込み・同期の失敗はそのサイクルを静かに中断する。
//   ログ記録はベストエフォートであり、ホストを巻き込んで失敗しない
// - プロセス終了時の保証はDrainの明示的な呼び出しによってのみ得られる
package logsink
