package gateway

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

// route はパスプレフィックスと転送先バックエンドの対応を表す。
// RequestHeaders / ResponseHeaders は転送時に無条件で付与する静的ヘッダー。
type route struct {
	// Prefix は転送対象のパスプレフィックス。
	Prefix string
	// Target は転送先バックエンドのベースURL。
	Target string
	// RequestHeaders はバックエンドへのリクエストに付与するヘッダー。
	RequestHeaders map[string]string
	// ResponseHeaders はクライアントへのレスポンスに付与するヘッダー。
	ResponseHeaders map[string]string
}

// config はgatewayサービスの設定。起動時に一度だけ構築され、以降変更されない。
type config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// JWTSecret はトークン検証用の共有秘密鍵。userサービスと同一の値を設定する。
	JWTSecret string
	// TokenTTL はトークンCodecの有効期間設定。gatewayは検証のみ行う。
	TokenTTL time.Duration
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string
	// AllowedIPs はIP許可リスト条件で許可する接続元プレフィックス。
	AllowedIPs []netip.Prefix
	// Routes はパスプレフィックスごとの転送先テーブル。
	Routes []route
}

// defaultPolicyRules はgatewayのアクセスルール。
// 登録（POST）・ログイン（POST）・ヘルスチェックのみ公開し、
// 管理系パスは接続元IPで制限、それ以外はすべて有効なトークンを要求する。
var defaultPolicyRules = []policy.Rule{
	{Method: http.MethodPost, Pattern: "/users", Condition: policy.Public},
	{Method: http.MethodPost, Pattern: "/login", Condition: policy.Public},
	{Pattern: "/health-check", Condition: policy.Public},
	{Pattern: "/health", Condition: policy.Public},
	{Pattern: "/admin/**", Condition: policy.IPAllowList},
	{Pattern: "/**", Condition: policy.RequireToken},
}

// loadConfig は環境変数からgatewayの設定を読み込む。
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

	userURL := getEnvOr("USER_SERVICE_URL", "http://localhost:8081")
	orderURL := getEnvOr("ORDER_SERVICE_URL", "http://localhost:8082")

	userRequestHeaders := map[string]string{"u-request": "user-service-request-by-gateway"}
	userResponseHeaders := map[string]string{"u-response": "user-service-response-from-gateway"}

	return &config{
		Port:        getEnvOr("PORT", "8080"),
		JWTSecret:   jwtSecret,
		TokenTTL:    ttl,
		FrontendURL: getEnvOr("FRONTEND_URL", "http://localhost:3000"),
		AllowedIPs:  allowed,
		Routes: []route{
			{Prefix: "/users", Target: userURL, RequestHeaders: userRequestHeaders, ResponseHeaders: userResponseHeaders},
			{Prefix: "/login", Target: userURL, RequestHeaders: userRequestHeaders, ResponseHeaders: userResponseHeaders},
			{Prefix: "/welcome", Target: userURL, RequestHeaders: userRequestHeaders, ResponseHeaders: userResponseHeaders},
			{Prefix: "/health-check", Target: userURL, RequestHeaders: userRequestHeaders, ResponseHeaders: userResponseHeaders},
			{
				Prefix:          "/orders",
				Target:          orderURL,
				RequestHeaders:  map[string]string{"o-request": "order-service-request-by-gateway"},
				ResponseHeaders: map[string]string{"o-response": "order-service-response-from-gateway"},
			},
		},
	}, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
