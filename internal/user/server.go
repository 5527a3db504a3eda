package user

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/authgate/pkg/middleware"
	"github.com/nao1215/authgate/pkg/policy"
	"github.com/nao1215/authgate/pkg/token"
)

// Server はユーザーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に読み込んだ設定。
	cfg *config
	// store はユーザーレコードの永続化層。
	store *Store
	// verifier は資格情報の検証器。
	verifier *Verifier
	// codec は認証トークンの発行・検証器。
	codec *token.Codec
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しいユーザーサービスのサーバーを生成する。
// 設定の読み込み、SQLiteデータベースの初期化、トークンCodecと
// アクセス判定表の構築を行う。設定不備の場合はエラーを返す。
func NewServer() (*Server, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	codec, err := token.New(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークンCodecの生成に失敗: %w", err)
	}

	table, err := policy.NewTable(defaultPolicyRules)
	if err != nil {
		return nil, fmt.Errorf("アクセス判定表の構築に失敗: %w", err)
	}

	store := NewStore(sqlDB)

	router := gin.New()
	// 転送ヘッダー（X-Forwarded-For等）による接続元IPの上書きを無効化する
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("プロキシ設定に失敗: %w", err)
	}
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.Authorize(table, codec, cfg.AllowedIPs))

	s := &Server{
		router:   router,
		cfg:      cfg,
		store:    store,
		verifier: NewVerifier(store),
		codec:    codec,
		db:       sqlDB,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// setupRoutes はAPIルーティングを設定する。
// アクセス制御はAuthorizeミドルウェアが判定表に基づいて行うため、
// ここでは経路の登録のみを行う。
func (s *Server) setupRoutes() {
	// ユーザー登録（公開）
	s.router.POST("/users", s.handleCreateUser())
	// ログイン（公開）
	s.router.POST("/login", s.handleLogin())
	// ユーザー一覧・詳細（IP許可リスト制限）
	s.router.GET("/users", s.handleListUsers())
	s.router.GET("/users/:id", s.handleGetUser())
	// 挨拶メッセージ（IP許可リスト制限）
	s.router.GET("/welcome", s.handleWelcome())

	// ヘルスチェック
	s.router.GET("/health-check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user"})
	})
}

// createUserRequest はユーザー登録リクエストのJSON構造。
type createUserRequest struct {
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Name はユーザーの表示名。
	Name string `json:"name" binding:"required"`
	// Secret はユーザーが設定するパスワード（平文）。保存前にハッシュ化される。
	Secret string `json:"secret" binding:"required"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required"`
	// Secret はユーザーのパスワード（平文）。
	Secret string `json:"secret" binding:"required"`
}

// userResponse はユーザーのJSONレスポンス構造。
// パスワードハッシュは決して含めない。
type userResponse struct {
	// UserID はユーザーの一意識別子。
	UserID string `json:"userId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Name はユーザーの表示名。
	Name string `json:"name"`
	// CreatedAt は登録日時。
	CreatedAt string `json:"created_at"`
}

// toUserResponse はストアのユーザーレコードをレスポンス構造に変換する。
// フィールドごとに明示的に詰め替え、ハッシュ済みパスワードを含めない。
func toUserResponse(u *User) userResponse {
	return userResponse{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

// handleCreateUser はユーザー登録ハンドラを返す。
// パスワードはbcryptでハッシュ化して保存し、平文もハッシュも応答に含めない。
func (s *Server) handleCreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードのハッシュ化に失敗しました"})
			log.Printf("bcryptハッシュ化エラー: %v", err)
			return
		}

		u := User{
			ID:           uuid.New().String(),
			Email:        req.Email,
			Name:         req.Name,
			EncryptedPwd: string(hashed),
		}
		if err := s.store.Create(c.Request.Context(), u); err != nil {
			if errors.Is(err, ErrEmailAlreadyExists) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの保存に失敗しました"})
			log.Printf("ユーザー保存エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"userId": u.ID,
			"email":  u.Email,
			"name":   u.Name,
		})
	}
}

// handleLogin はログインハンドラを返す。
// 資格情報の検証に成功した場合、トークンとユーザーIDをレスポンスヘッダー
// （token / userId）とJSONボディの両方で返す。検証失敗時は、メールアドレスと
// パスワードのどちらが誤っていたかを漏らさない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}

		u, err := s.verifier.Authenticate(c.Request.Context(), req.Email, req.Secret)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "認証処理に失敗しました"})
			log.Printf("認証エラー: %v", err)
			return
		}

		tokenStr, err := s.codec.Issue(u.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("トークン発行エラー: %v", err)
			return
		}

		c.Header("token", tokenStr)
		c.Header("userId", u.ID)
		c.JSON(http.StatusOK, gin.H{
			"token":  tokenStr,
			"userId": u.ID,
		})
	}
}

// handleGetUser はユーザー詳細取得ハンドラを返す。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.store.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toUserResponse(u))
	}
}

// handleListUsers はユーザー一覧取得ハンドラを返す。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.store.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		resp := make([]userResponse, 0, len(users))
		for i := range users {
			resp = append(resp, toUserResponse(&users[i]))
		}
		c.JSON(http.StatusOK, gin.H{"users": resp})
	}
}

// handleWelcome は挨拶メッセージを返すハンドラを返す。
func (s *Server) handleWelcome() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": s.cfg.WelcomeMessage})
	}
}
