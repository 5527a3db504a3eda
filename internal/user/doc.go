// Package user はユーザーサービスの内部実装を提供する。
//
// ユーザー登録・参照のCRUD、資格情報（メールアドレスとパスワード）の検証、
// 認証成功時のトークン発行を担当する。パスワードは一方向ハッシュ（bcrypt）
// のみを保存し、平文は保持しない。発行したトークンはgatewayサービスが
// 同一の共有秘密鍵で検証する。
package user
