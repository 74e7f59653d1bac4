package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config/config.yaml"

	ModeDev     = "dev"
	ModeRelease = "release"

	DefaultListen         = ":8443"
	DefaultBackendTimeout = 10 // 秒
	DefaultSessionTTL     = 24 // 時間
	DefaultQRPrefix       = "CLASS:"
	DefaultQRTTL          = 300 // 秒
	DefaultQRWarn         = 60  // 秒
	DefaultHistoryLimit   = 10
	DefaultStorageFile    = "data/localstore.json"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// BackendConfig: 外部の業務API（出席・時間割・成績・提案）
type BackendConfig struct {
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	TimeoutSec int    `yaml:"timeout_sec" validate:"gte=0"`
}

type TeacherAccount struct {
	Email        string `yaml:"email" validate:"required,email"`
	TeacherID    string `yaml:"teacher_id" validate:"required"`
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash" validate:"required"`
}

type AuthConfig struct {
	JWTSecret       string           `yaml:"jwt_secret" validate:"required,min=16"`
	SessionTTLHours int              `yaml:"session_ttl_hours" validate:"gte=0"`
	SecureCookie    bool             `yaml:"secure_cookie"`
	Teachers        []TeacherAccount `yaml:"teachers" validate:"dive"`
}

type StorageConfig struct {
	Driver   string         `yaml:"driver" validate:"oneof=memory file redis mysql"`
	FilePath string         `yaml:"file_path"`
	Redis    RedisConfig    `yaml:"redis"`
	DB       DatabaseConfig `yaml:"database"`
}

type QRConfig struct {
	Prefix       string `yaml:"prefix"`
	TTLSeconds   int    `yaml:"ttl_sec" validate:"gte=0"`
	WarnSeconds  int    `yaml:"warn_sec" validate:"gte=0"`
	HistoryLimit int    `yaml:"history_limit" validate:"gte=0"`
}

type DashboardConfig struct {
	// バックエンド障害時にサンプルデータを返すか（デモ用。既定は無効）
	FixtureFallback bool `yaml:"fixture_fallback"`
}

type Config struct {
	Version     string          `yaml:"version"`
	Mode        string          `yaml:"mode" validate:"oneof=dev release"`
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins"`
	Certificate Certs           `yaml:"certificate"`
	Backend     BackendConfig   `yaml:"backend"`
	Auth        AuthConfig      `yaml:"auth"`
	Storage     StorageConfig   `yaml:"storage"`
	QR          QRConfig        `yaml:"qr"`
	Dashboard   DashboardConfig `yaml:"dashboard"`
}

var validate = validator.New()

// LoadConfig: YAML を読み、.env / 環境変数で上書きしてから検証する
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	return Parse(buf)
}

func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}

	// .env は無くてもよい
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env の読み込み失敗: %w", err)
	}
	applyEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("設定値が不正です: %w", err)
	}
	switch c.Storage.Driver {
	case "file":
		if c.Storage.FilePath == "" {
			return errors.New("設定値が不正です: storage.file_path is required for driver=file")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return errors.New("設定値が不正です: storage.redis.addr is required for driver=redis")
		}
	case "mysql":
		if c.Storage.DB.Host == "" || c.Storage.DB.DBName == "" {
			return errors.New("設定値が不正です: storage.database.host/dbname are required for driver=mysql")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDev
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Backend.TimeoutSec == 0 {
		c.Backend.TimeoutSec = DefaultBackendTimeout
	}
	if c.Auth.SessionTTLHours == 0 {
		c.Auth.SessionTTLHours = DefaultSessionTTL
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Driver == "file" && c.Storage.FilePath == "" {
		c.Storage.FilePath = DefaultStorageFile
	}
	if c.QR.Prefix == "" {
		c.QR.Prefix = DefaultQRPrefix
	}
	if c.QR.TTLSeconds == 0 {
		c.QR.TTLSeconds = DefaultQRTTL
	}
	if c.QR.WarnSeconds == 0 {
		c.QR.WarnSeconds = DefaultQRWarn
	}
	if c.QR.HistoryLimit == 0 {
		c.QR.HistoryLimit = DefaultHistoryLimit
	}
	if c.Mode == ModeDev && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:3000"}
	}
}

// 環境変数による上書き（秘密情報は YAML に置かない運用を想定）
func applyEnv(c *Config) {
	if v := os.Getenv("EDUTRACK_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("EDUTRACK_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("EDUTRACK_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("EDUTRACK_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("EDUTRACK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("EDUTRACK_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv("EDUTRACK_REDIS_PASSWORD"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := os.Getenv("EDUTRACK_DB_PASSWORD"); v != "" {
		c.Storage.DB.Password = v
	}
	if v := os.Getenv("EDUTRACK_FIXTURE_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Dashboard.FixtureFallback = b
		}
	}
}
