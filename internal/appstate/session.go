package appstate

import "github.com/gin-gonic/gin"

const ctxSessionKey = "session"

func SetSession(c *gin.Context, s Session) { c.Set(ctxSessionKey, s) }

// SessionFrom: 未設定なら未認証の空セッション
func SessionFrom(c *gin.Context) Session {
	v, ok := c.Get(ctxSessionKey)
	if !ok {
		return Session{}
	}
	s, ok := v.(Session)
	if !ok {
		return Session{}
	}
	return s
}
