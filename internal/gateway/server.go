package gateway

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/authgate/pkg/middleware"
	"github.com/nao1215/authgate/pkg/policy"
	"github.com/nao1215/authgate/pkg/token"
)

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg *config
	// httpClient はバックエンドへの転送に使用するHTTPクライアント。
	httpClient *http.Client
}

// NewServer は新しいGatewayサーバーを生成する。
// 設定の読み込み、トークンCodecとアクセス判定表の構築を行う。
// 設定不備の場合はエラーを返し、起動を中断させる。
func NewServer() (*Server, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	codec, err := token.New(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークンCodecの生成に失敗: %w", err)
	}

	table, err := policy.NewTable(defaultPolicyRules)
	if err != nil {
		return nil, fmt.Errorf("アクセス判定表の構築に失敗: %w", err)
	}

	router := gin.New()
	// 転送ヘッダー（X-Forwarded-For等）による接続元IPの上書きを無効化する
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("プロキシ設定に失敗: %w", err)
	}
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(middleware.Authorize(table, codec, cfg.AllowedIPs))

	s := &Server{
		router: router,
		cfg:    cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// setupRoutes はAPIルーティングを設定する。
// バックエンドへの転送はルーティングテーブルに基づくため、
// 個別のパスは登録せずNoRouteハンドラでまとめて処理する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	// 上記以外はすべてルーティングテーブルに従って転送する
	s.router.NoRoute(s.handleProxy())
}

// handleProxy はルーティングテーブルに基づいてリクエストを転送するハンドラを返す。
// 転送先が見つからない場合は404を返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := s.matchRoute(c.Request.URL.Path)
		if r == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ルーティング先が見つかりません"})
			return
		}

		proxyURL := r.Target + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, r, proxyURL)
	}
}

// matchRoute はパスに一致するルートを返す。
// 複数のルートに一致する場合は最も長いプレフィックスを優先する。
func (s *Server) matchRoute(path string) *route {
	var best *route
	for i := range s.cfg.Routes {
		r := &s.cfg.Routes[i]
		if path != r.Prefix && !strings.HasPrefix(path, r.Prefix+"/") {
			continue
		}
		if best == nil || len(r.Prefix) > len(best.Prefix) {
			best = r
		}
	}
	return best
}

// doProxy はリクエストをバックエンドサービスに転送する共通処理。
// 認証トークンとユーザーIDヘッダー、およびルート定義の静的ヘッダーを付与する。
func (s *Server) doProxy(c *gin.Context, r *route, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "転送リクエストの作成に失敗しました"})
		return
	}

	// 元のリクエストヘッダーのうち、設定されているものだけを転送する
	if contentType := c.GetHeader("Content-Type"); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if userID := middleware.GetUserID(c); userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	// ルート定義の静的リクエストヘッダーを付与
	for k, v := range r.RequestHeaders {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "バックエンドサービスとの通信に失敗しました"})
		log.Printf("転送エラー: url=%s, error=%v", url, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}

	// userサービスがログイン成功時に設定する認証ヘッダーを通す
	for _, key := range []string{"token", "userId"} {
		if v := resp.Header.Get(key); v != "" {
			c.Header(key, v)
		}
	}
	// ルート定義の静的レスポンスヘッダーを付与
	for k, v := range r.ResponseHeaders {
		c.Header(k, v)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}
