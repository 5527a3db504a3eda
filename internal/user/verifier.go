package user

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials はメールアドレスまたはパスワードが正しくない場合のエラー。
// ユーザーの不存在とパスワード不一致を区別せず、同一のエラーに畳み込む。
var ErrInvalidCredentials = errors.New("メールアドレスまたはパスワードが正しくありません")

// Verifier は提示された資格情報をストアと照合する。
// 照合は読み取りのみで、ストアを変更しない。
type Verifier struct {
	// store はユーザーレコードの検索先。
	store *Store
}

// NewVerifier は新しいVerifierを生成する。
func NewVerifier(store *Store) *Verifier {
	return &Verifier{store: store}
}

// Authenticate はメールアドレスとパスワードを検証し、成功時にユーザーを返す。
// ユーザーが存在しない場合もパスワードが一致しない場合も、呼び出し側が
// 区別できないよう同じErrInvalidCredentialsを返す。
func (v *Verifier) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := v.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("ユーザーの検索に失敗: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.EncryptedPwd), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
