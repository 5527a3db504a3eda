// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。アクセス判定表に基づいてリクエストを検査し、認証トークンの
// 検証に成功したリクエストへユーザーIDヘッダーを付与した上で、
// ルーティングテーブルに従ってバックエンドサービスに転送する。
package gateway
