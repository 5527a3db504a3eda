package middleware

import (
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/authgate/pkg/policy"
)

// TokenVerifier は認証トークンを検証し、subjectのユーザーIDを返す。
// *token.Codec がこのインターフェースを満たす。
type TokenVerifier interface {
	Verify(tokenStr string) (string, error)
}

// headerKeyUserID はサービス間でユーザーIDを伝播するためのHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// Authorize はアクセス判定表に基づいてリクエストを認可するGinミドルウェアを返す。
// メソッドとパスに一致したルールの条件ごとに以下の通り処理する。
//
//   - Public: 無条件で後続処理に進む。
//   - IPAllowList: 接続元IPが許可リストに含まれる場合のみ進む。含まれない場合は403。
//   - RequireToken: Authorizationヘッダーの Bearer トークンを検証し、
//     成功時はコンテキストに "user_id" を設定して進む。失敗時は401。
//
// 拒否した場合は後続ハンドラーに到達させず、その場でレスポンスを返す。
func Authorize(table *policy.Table, verifier TokenVerifier, allowed []netip.Prefix) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch cond := table.Match(c.Request.Method, c.Request.URL.Path); cond {
		case policy.Public:
			c.Next()

		case policy.IPAllowList:
			ip, err := remoteAddr(c)
			if err != nil || !ipAllowed(ip, allowed) {
				log.Printf("IP許可リスト外からのアクセスを拒否: path=%s, remote=%s", c.Request.URL.Path, c.Request.RemoteAddr)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "接続元IPが許可されていません",
				})
				return
			}
			c.Next()

		case policy.RequireToken:
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Authorizationヘッダーが必要です",
				})
				return
			}

			tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Bearer トークン形式が不正です",
				})
				return
			}

			subject, err := verifier.Verify(tokenStr)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "トークンが無効です",
				})
				return
			}

			c.Set("user_id", subject)
			c.Header(headerKeyUserID, subject)
			c.Next()

		default:
			// 未知の条件は拒否する
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": fmt.Sprintf("不明なアクセス条件です: %s", cond),
			})
		}
	}
}

// remoteAddr はTCP接続のリモートアドレスから接続元IPを取り出す。
// X-Forwarded-For等の転送ヘッダーは送信者が自由に設定できるため参照しない。
func remoteAddr(c *gin.Context) (netip.Addr, error) {
	if addrPort, err := netip.ParseAddrPort(c.Request.RemoteAddr); err == nil {
		return addrPort.Addr(), nil
	}
	return netip.ParseAddr(c.Request.RemoteAddr)
}

// ipAllowed は接続元IPが許可プレフィックスのいずれかに含まれるかを判定する。
func ipAllowed(ip netip.Addr, allowed []netip.Prefix) bool {
	ip = ip.Unmap()
	for _, p := range allowed {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseAllowList はIPアドレスまたはCIDR表記の文字列一覧を許可プレフィックスに変換する。
// 単一アドレス（例: "127.0.0.1"）は /32（IPv6は /128）のプレフィックスとして扱う。
func ParseAllowList(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("IP許可リストのCIDR %q のパースに失敗: %w", e, err)
			}
			prefixes = append(prefixes, p)
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("IP許可リストのアドレス %q のパースに失敗: %w", e, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// Authorizeミドルウェアがトークン検証に成功している必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
