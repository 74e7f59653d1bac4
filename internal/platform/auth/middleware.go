package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"EduTrack-web/internal/appstate"
)

const CookieName = "edutrack_session"

// tokenFrom: Authorization: Bearer <token> を優先し、無ければセッションCookie
func tokenFrom(c *gin.Context) (string, string) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", "invalid Authorization header"
		}
		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			return "", "empty token"
		}
		return tokenStr, ""
	}
	if v, err := c.Cookie(CookieName); err == nil && v != "" {
		return v, ""
	}
	return "", "missing credentials"
}

// Authenticate: 有効なトークンがあればセッションを詰める。無くても通す
func Authenticate(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr, problem := tokenFrom(c); problem == "" {
			if sess, err := svc.Parse(tokenStr); err == nil {
				appstate.SetSession(c, sess)
			}
		}
		c.Next()
	}
}

// RequireAuth: トークンを検証して context にセッションを詰める
func RequireAuth(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, problem := tokenFrom(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}
		sess, err := svc.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		appstate.SetSession(c, sess)
		c.Next()
	}
}

// RequireRole: 例) teacher のみ許可したい時に追加
func RequireRole(roles ...appstate.Role) gin.HandlerFunc {
	roleSet := make(map[appstate.Role]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		sess := appstate.SessionFrom(c)
		if !sess.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if sess.Role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing role"})
			return
		}
		if _, allowed := roleSet[sess.Role]; !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
