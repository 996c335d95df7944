package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-uno-game-server/internal/auth"
	"github.com/koopa0/system-design/14-uno-game-server/internal/broker"
	"github.com/koopa0/system-design/14-uno-game-server/internal/config"
	"github.com/koopa0/system-design/14-uno-game-server/internal/gateway"
	"github.com/koopa0/system-design/14-uno-game-server/internal/room"
	"github.com/koopa0/system-design/14-uno-game-server/internal/server"
	"github.com/koopa0/system-design/14-uno-game-server/internal/storage"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "config.yaml", "配置檔案路徑")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置檔）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)，覆蓋配置檔")
	)
	flag.Parse()

	// 載入配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("服務器異常結束", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// 房間代碼保留：有 Redis 時全叢集唯一，否則只在本機
	var store room.CodeStore = storage.NewMemory()
	var refreshEvery time.Duration
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		hostname, _ := os.Hostname()
		redisStore := storage.NewRedis(client, hostname+"-"+uuid.NewString(), cfg.Redis.CodeTTL)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisStore.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		store = redisStore
		refreshEvery = redisStore.TTL() / 3
		logger.Info("使用 Redis 保留房間代碼", "addr", opts.Addr, "ttl", redisStore.TTL())
	}

	// 事件出口：WebSocket hub，另外可選 NATS
	hub := server.NewHub(logger)
	outputs := gateway.Fanout{hub}
	if cfg.NATS.URL != "" {
		pub, err := broker.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("關閉 NATS 連線失敗", "error", err)
			}
		}()
		outputs = append(outputs, pub)
		logger.Info("房間事件發佈到 NATS", "prefix", cfg.NATS.SubjectPrefix)
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	codeLength := cfg.Game.CodeLength
	gw := gateway.New(store, outputs, logger,
		gateway.WithRegistryOptions(
			room.WithCodeGenerator(func() string { return room.GenerateCode(codeLength) }),
			room.WithCodeAttempts(cfg.Game.CodeAttempts),
			room.WithIdleTimeout(cfg.Game.RoomIdleTimeout),
			room.WithRefreshInterval(refreshEvery),
		))

	srv := server.New(gw, hub, issuer, logger,
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		server.WithStoreTimeout(cfg.Game.StoreTimeout))

	// 創建 HTTP 服務器
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("UNO 遊戲服務器啟動",
			"port", cfg.Server.Port,
			"log_level", cfg.Log.Level,
			"redis", cfg.Redis.URL != "",
			"nats", cfg.NATS.URL != "")
		serverErrors <- httpServer.ListenAndServe()
	}()

	// 等待中斷信號
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("收到關閉信號，開始優雅關閉...", "signal", sig)
	}

	// 優雅關閉
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 先拆除房間（玩家收到 room_closed、代碼釋放），再關閉剩餘的 WebSocket
	gw.Registry().Stop(shutdownCtx)
	hub.Stop()

	logger.Info("服務器已關閉")
	return nil
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     config.ParseLogLevel(level),
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
