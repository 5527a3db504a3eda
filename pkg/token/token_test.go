package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testSecret はテスト用の共有秘密鍵。
const testSecret = "test-shared-secret-for-token-codec"

// TestNew はCodecの生成を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("秘密鍵が設定されている場合にCodecを生成できること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if codec == nil {
			t.Fatal("New()がnilを返した")
		}
	})

	t.Run("秘密鍵が空の場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		codec, err := New("", time.Hour)
		if err == nil {
			t.Fatal("空の秘密鍵でNew()がエラーを返すべき")
		}
		if codec != nil {
			t.Error("エラー時にはnilのCodecが返るべき")
		}
	})
}

// TestIssueAndVerify はトークンの発行と検証のラウンドトリップを検証する。
func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	t.Run("発行したトークンの検証で同じsubjectが返ること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		tokenStr, err := codec.Issue("u-1")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		if tokenStr == "" {
			t.Fatal("Issue()が空文字列を返した")
		}

		subject, err := codec.Verify(tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if subject != "u-1" {
			t.Errorf("subject = %q, want %q", subject, "u-1")
		}
	})

	t.Run("署名アルゴリズムがHS512であること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		tokenStr, err := codec.Issue("u-alg")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		parsed, _, err := new(jwt.Parser).ParseUnverified(tokenStr, &jwt.RegisteredClaims{})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if parsed.Method.Alg() != "HS512" {
			t.Errorf("署名アルゴリズム = %q, want %q", parsed.Method.Alg(), "HS512")
		}
	})

	t.Run("発行時刻と有効期限がttl通りに設定されること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, 30*time.Minute)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		before := time.Now()
		tokenStr, err := codec.Issue("u-ttl")
		after := time.Now()
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		claims := &jwt.RegisteredClaims{}
		if _, _, err := new(jwt.Parser).ParseUnverified(tokenStr, claims); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		if claims.IssuedAt.Time.Before(before.Add(-time.Second)) || claims.IssuedAt.Time.After(after.Add(time.Second)) {
			t.Errorf("IssuedAt = %v が発行時刻の範囲外", claims.IssuedAt.Time)
		}
		wantExpiry := claims.IssuedAt.Time.Add(30 * time.Minute)
		if !claims.ExpiresAt.Time.Equal(wantExpiry) {
			t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, wantExpiry)
		}
	})

	t.Run("同じトークンを繰り返し検証しても結果が変わらないこと", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		tokenStr, err := codec.Issue("u-idempotent")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		for i := 0; i < 5; i++ {
			subject, err := codec.Verify(tokenStr)
			if err != nil {
				t.Fatalf("%d回目のVerify()でエラーが発生: %v", i+1, err)
			}
			if subject != "u-idempotent" {
				t.Errorf("%d回目のsubject = %q, want %q", i+1, subject, "u-idempotent")
			}
		}
	})
}

// TestVerifyRejection はトークン検証の拒否条件を検証する。
func TestVerifyRejection(t *testing.T) {
	t.Parallel()

	t.Run("ttlが0のトークンが有効期限切れで拒否されること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, 0)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		tokenStr, err := codec.Issue("u-zero-ttl")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		if _, err := codec.Verify(tokenStr); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("Verify() = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("有効期限を過ぎたトークンが拒否されること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, -time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		tokenStr, err := codec.Issue("u-expired")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		if _, err := codec.Verify(tokenStr); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("Verify() = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("ペイロードを改ざんしたトークンが拒否されること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		tokenStr, err := codec.Issue("u-tamper")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		parts := strings.Split(tokenStr, ".")
		if len(parts) != 3 {
			t.Fatalf("JWTの形式が不正: %q", tokenStr)
		}

		// ペイロード部分の1バイトを書き換える
		tampered := flipByte(t, parts[1])
		if _, err := codec.Verify(parts[0] + "." + tampered + "." + parts[2]); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify() = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("署名を改ざんしたトークンが拒否されること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		tokenStr, err := codec.Issue("u-sig-tamper")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		parts := strings.Split(tokenStr, ".")
		if len(parts) != 3 {
			t.Fatalf("JWTの形式が不正: %q", tokenStr)
		}

		tampered := flipByte(t, parts[2])
		if _, err := codec.Verify(parts[0] + "." + parts[1] + "." + tampered); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify() = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("異なる秘密鍵で署名されたトークンが拒否されること", func(t *testing.T) {
		t.Parallel()

		other, err := New("another-secret-key", time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		tokenStr, err := other.Issue("u-wrong-secret")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if _, err := codec.Verify(tokenStr); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify() = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("subjectが空のトークンが拒否されること", func(t *testing.T) {
		t.Parallel()

		// 正しい秘密鍵で署名されているがsubjectを持たないトークンを作る
		claims := jwt.RegisteredClaims{
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if _, err := codec.Verify(tokenStr); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify() = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("HS512以外のアルゴリズムで署名されたトークンが拒否されること", func(t *testing.T) {
		t.Parallel()

		claims := jwt.RegisteredClaims{
			Subject:   "u-alg-confusion",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if _, err := codec.Verify(tokenStr); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify() = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("JWT形式でない文字列が拒否されること", func(t *testing.T) {
		t.Parallel()

		codec, err := New(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if _, err := codec.Verify("not-a-jwt-token"); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify() = %v, want ErrTokenInvalid", err)
		}
	})
}

// flipByte はbase64urlセグメントの1文字を別の文字に置き換える。
func flipByte(t *testing.T, segment string) string {
	t.Helper()

	b := []byte(segment)
	i := len(b) / 2
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}
