// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// アクセス判定表に基づく認可（公開パス・IP許可リスト・トークン必須）、
// パニックリカバリ、CORS設定など、gatewayサービスとuserサービスで
// 共通して使用するミドルウェアを含む。
package middleware
