package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"EduTrack-web/internal/localstore"
	"EduTrack-web/internal/platform/config"
)

// フロントのビルド出力を埋め込む
// "//go:embed public" ← これはビルドに必要なので消さないこと

//go:embed public
var embedded embed.FS

func main() {
	cfgPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	hashPw := flag.String("hash-password", "", "print a bcrypt hash for auth.teachers[].password_hash and exit")
	flag.Parse()

	if *hashPw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashPw), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	// 設定読み込み
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	// 動作モード取得
	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := localstore.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("[ERROR] open local storage: %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("[WARN] close local storage: %v", err)
		}
	}()
	log.Printf("[INFO] local storage driver: %s", cfg.Storage.Driver)

	public, err := fs.Sub(embedded, "public")
	if err != nil {
		log.Fatal(err)
	}

	app := newApp(cfg, store)
	// QRの期限切れ監視（1秒ごと）
	go app.timer.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := newRouter(cfg, app, public)

	// TLS起動（:8443 例）
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var certFile, keyFile string

	// TLS設定
	if mode == config.ModeDev {
		//開発用
		certFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Key)
	} else {
		//本番用
		certFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
	}

	go func() {
		log.Printf("[INFO] listening on https://0.0.0.0%s", cfg.Listen)
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Println("[INFO] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}
}
