package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/notify"
)

type AuthHandler struct {
	svc          AuthService
	secureCookie bool
}

func RegisterRoutes(r gin.IRoutes, svc AuthService, secureCookie bool) {
	h := &AuthHandler{svc: svc, secureCookie: secureCookie}
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/session", Authenticate(svc), h.Session)
}

type LoginRequest struct {
	Role      string `json:"role" binding:"required,oneof=teacher student"`
	Email     string `json:"email"`
	StudentID string `json:"student_id"`
	Password  string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string           `json:"token"`
	Session  appstate.Session `json:"session"`
	Redirect string           `json:"redirect"`
	Notices  []notify.Notice  `json:"notices"`
	Message  string           `json:"message"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, sess, err := h.svc.Login(c.Request.Context(), Credentials{
		Role:      appstate.Role(req.Role),
		Email:     req.Email,
		StudentID: req.StudentID,
		Password:  req.Password,
	})
	if err != nil {
		var uerr *UpstreamError
		switch {
		case errors.Is(err, ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		case errors.As(err, &uerr):
			c.JSON(http.StatusBadGateway, gin.H{"error": uerr.Error()})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		}
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(h.svc.TTL().Seconds()), "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		Session:  sess,
		Redirect: "/" + string(sess.Role) + "-dashboard",
		Message:  "Login successful",
		Notices: []notify.Notice{{
			Level:   notify.LevelInfo,
			Title:   "Login Successful! 🎉",
			Message: "Welcome back! Redirecting to " + string(sess.Role) + " dashboard...",
		}},
	})
}

// ログアウトはCookieを消すだけ（トークンはステートレス）
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out", "redirect": "/"})
}

// GET /auth/session: 未認証でも 200 で is_authenticated=false を返す
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, appstate.SessionFrom(c))
}
