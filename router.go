package main

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/attendance"
	"EduTrack-web/internal/dashboard"
	"EduTrack-web/internal/localstore"
	"EduTrack-web/internal/platform/auth"
	"EduTrack-web/internal/platform/backend"
	"EduTrack-web/internal/platform/config"
	"EduTrack-web/internal/platform/notify"
	"EduTrack-web/internal/qrissue"
)

// app は起動時に組み立てるサービス一式
type app struct {
	auth       *auth.Service
	qr         *qrissue.Service
	timer      *qrissue.Timer
	attendance *attendance.Service
	dashboard  *dashboard.Service
}

func newApp(cfg *config.Config, store localstore.Store) *app {
	client := backend.New(cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSec)*time.Second)
	state := appstate.New(store, cfg.QR.HistoryLimit)
	notices := notify.LogNotifier{}

	reg := qrissue.NewRegistry()
	warn := time.Duration(cfg.QR.WarnSeconds) * time.Second
	qr := qrissue.NewService(client, reg, notices, qrissue.Options{
		Prefix: cfg.QR.Prefix,
		TTL:    time.Duration(cfg.QR.TTLSeconds) * time.Second,
		Warn:   warn,
	})

	return &app{
		auth: auth.NewService(
			auth.NewConfigStore(cfg.Auth.Teachers),
			client,
			[]byte(cfg.Auth.JWTSecret),
			time.Duration(cfg.Auth.SessionTTLHours)*time.Hour,
		),
		qr:         qr,
		timer:      qrissue.NewTimer(reg, nil, notices, warn),
		attendance: attendance.NewService(client, state, notices, cfg.QR.Prefix),
		dashboard:  dashboard.NewService(client, cfg.Dashboard.FixtureFallback),
	}
}

func newRouter(cfg *config.Config, a *app, public fs.FS) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == config.ModeDev {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, a.auth, cfg.Auth.SecureCookie)

	authed := api.Group("", auth.RequireAuth(a.auth))
	student := auth.RequireRole(appstate.RoleStudent)
	teacher := auth.RequireRole(appstate.RoleTeacher)

	qrissue.RegisterRoutes(authed.Group("", teacher), a.qr)
	attendance.RegisterRoutes(authed, a.attendance, student, teacher)
	dashboard.RegisterRoutes(authed, a.dashboard, student, teacher)

	r.NoRoute(spaHandler(public))
	return r
}
