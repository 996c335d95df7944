// Package config 載入伺服器配置：YAML 檔案 → 預設值補齊 → 環境變數覆蓋 → 驗證。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 環境變數（生產環境常用，優先於檔案）
const (
	EnvJWTSecret = "UNO_JWT_SECRET"
	EnvRedisURL  = "REDIS_URL"
	EnvNATSURL   = "NATS_URL"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port           int           `yaml:"port"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Game struct {
		CodeLength      int           `yaml:"code_length"`
		CodeAttempts    int           `yaml:"code_attempts"`
		RoomIdleTimeout time.Duration `yaml:"room_idle_timeout"` // 0 表示不回收
		StoreTimeout    time.Duration `yaml:"store_timeout"`
	} `yaml:"game"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	// Redis 為空時房間代碼只在本機保留
	Redis struct {
		URL     string        `yaml:"url"`
		CodeTTL time.Duration `yaml:"code_ttl"`
	} `yaml:"redis"`

	// NATS 為空時不發佈事件
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default 預設配置（單機、記憶體代碼保留、不發佈事件）
func Default() *Config {
	var c Config

	c.Server.Port = 8080
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.IdleTimeout = 60 * time.Second

	c.Game.CodeLength = 6
	c.Game.CodeAttempts = 10
	c.Game.RoomIdleTimeout = 30 * time.Minute
	c.Game.StoreTimeout = 5 * time.Second

	c.Auth.Issuer = "uno-game-server"
	c.Auth.TokenTTL = 12 * time.Hour

	c.Redis.CodeTTL = 24 * time.Hour
	c.NATS.SubjectPrefix = "uno.rooms"

	c.Log.Level = "info"
	c.Log.Format = "text"
	return &c
}

// Load 載入配置檔案
//
// path 為空或檔案不存在時使用預設值；檔案中未出現的欄位保留預設值
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自命令列參數，非使用者請求
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
}

// normalize 統一大小寫，之後的比對都用小寫
func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate 檢查配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Game.CodeLength < 4 {
		errs = append(errs, fmt.Errorf("game.code_length must be at least 4: %d", c.Game.CodeLength))
	}
	if c.Game.CodeAttempts <= 0 {
		errs = append(errs, fmt.Errorf("game.code_attempts must be positive: %d", c.Game.CodeAttempts))
	}
	if c.Game.RoomIdleTimeout < 0 {
		errs = append(errs, errors.New("game.room_idle_timeout must not be negative"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required (or set %s)", EnvJWTSecret))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json: %q", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParseLogLevel 解析日誌級別，無法辨識時為 info
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
