package user

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/nao1215/authgate/pkg/middleware"
	"github.com/nao1215/authgate/pkg/policy"
)

// config はユーザーサービスの設定。起動時に一度だけ構築され、以降変更されない。
type config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// JWTSecret はトークン署名用の共有秘密鍵。gatewayサービスと同一の値を設定する。
	JWTSecret string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string
	// AllowedIPs はIP許可リスト条件で許可する接続元プレフィックス。
	AllowedIPs []netip.Prefix
	// WelcomeMessage は/welcomeエンドポイントが返す挨拶メッセージ。
	WelcomeMessage string
}

// defaultPolicyRules はユーザーサービスのアクセスルール。
// 登録（POST）・ログイン（POST）・ヘルスチェックのみ公開し、
// ユーザー一覧・詳細を含むそれ以外はすべて接続元IPで制限する。
var defaultPolicyRules = []policy.Rule{
	{Method: http.MethodPost, Pattern: "/users", Condition: policy.Public},
	{Method: http.MethodPost, Pattern: "/login", Condition: policy.Public},
	{Pattern: "/health-check", Condition: policy.Public},
	{Pattern: "/**", Condition: policy.IPAllowList},
}

// loadConfig は環境変数からユーザーサービスの設定を読み込む。
// JWT_SECRETが未設定の場合はエラーを返し、起動を中断させる。
func loadConfig() (*config, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("環境変数JWT_SECRETが設定されていません")
	}

	ttl, err := time.ParseDuration(getEnvOr("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("環境変数TOKEN_TTLのパースに失敗: %w", err)
	}

	allowed, err := middleware.ParseAllowList(strings.Split(getEnvOr("ALLOWED_IPS", "127.0.0.1,::1"), ","))
	if err != nil {
		return nil, fmt.Errorf("環境変数ALLOWED_IPSのパースに失敗: %w", err)
	}

	return &config{
		Port:           getEnvOr("PORT", "8081"),
		JWTSecret:      jwtSecret,
		TokenTTL:       ttl,
		DBPath:         getEnvOr("USER_DB_PATH", "/data/user.db?_journal_mode=WAL&_busy_timeout=5000"),
		AllowedIPs:     allowed,
		WelcomeMessage: getEnvOr("WELCOME_MESSAGE", "ようこそ、ユーザーサービスへ"),
	}, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
