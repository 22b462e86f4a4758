// Package asyncop 非同期プラットフォーム操作の合成を担う
//
// # 責務
// - 1つの保留中非同期操作を表すハンドル（Operation）の提供
// - 継続（continuation）の登録による依存操作の連鎖
// - タイムアウト付きの同期待機ブリッジ
// - 成功・失敗を単一のエラーチャンネルへ正規化
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 外部プラットフォームへの非同期呼び出しの結果を受け渡したい
// - 依存する非同期呼び出しを直線的に連鎖させたい
// - 非同期結果を短時間だけ同期的に待ちたい
//
// # 仕様
// - Operation は pending から terminal（成功/失敗）へちょうど1回だけ遷移する
// - 継続は1つのみ登録できる。完了後の登録は即座に呼び出される（取りこぼしなし）
// - 継続は完了を通知したゴルーチン上で実行されるため、
//   継続の中でブロックしてはならない
// - Wait を継続の中から呼ぶと自己デッドロックの危険がある。
//   完了を配送するゴルーチン上では絶対に Wait しないこと
// - 任意のタスクグラフは対象外。直線的な連鎖と浅い分岐のみを支える
package asyncop
