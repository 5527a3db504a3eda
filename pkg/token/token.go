// Package token は署名付き認証トークンの発行と検証を提供する。
//
// トークンはHMAC署名付きのJWTであり、subjectクレームにユーザーIDを保持する。
// 発行側（userサービス）と検証側（gatewayサービス）は同一の共有秘密鍵を
// 使用する必要がある。トークンはサーバー側に保存されず、署名と有効期限のみで
// 正当性を判断する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid はトークンの署名・形式・subjectが不正な場合のエラー。
	ErrTokenInvalid = errors.New("トークンが無効です")
	// ErrTokenExpired はトークンの有効期限が切れている場合のエラー。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
)

// issuerName はトークンのissuerクレームに設定する発行者名。
const issuerName = "authgate"

// Codec は共有秘密鍵によるトークンの発行・検証を行う。
// 秘密鍵と有効期間は構築時に固定され、以降変更されない。
// 複数ゴルーチンからの同時呼び出しに対して安全である。
type Codec struct {
	// secret はHMAC署名用の共有秘密鍵。
	secret []byte
	// ttl は発行するトークンの有効期間。
	ttl time.Duration
}

// New は新しいCodecを生成する。
// secretが空の場合はエラーを返す。これは起動時の設定不備であり、
// 呼び出し側はプロセスを終了させるべきである。
func New(secret string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("トークン署名用の秘密鍵が設定されていません")
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
	}, nil
}

// Issue は指定されたユーザーIDをsubjectとするトークンを発行する。
// 発行時刻は現在時刻、有効期限は現在時刻+ttlとなる。
func (c *Codec) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuerName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、subjectのユーザーIDを返す。
// 署名不一致・形式不正・subject空の場合はErrTokenInvalid、
// 有効期限切れの場合はErrTokenExpiredを返す。
// 検証は読み取りのみで状態を持たないため、同一トークンに対する結果は
// 何度呼んでも変わらない。
func (c *Codec) Verify(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	if !parsed.Valid {
		return "", ErrTokenInvalid
	}

	// subjectが空のトークンは認証主体を特定できないため無効とする
	if claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
