// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"crypto-keystore/config"
	"crypto-keystore/internal/handler"
	"crypto-keystore/internal/infra"
	"crypto-keystore/internal/metrics"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, os.Stdout)

	// キーストア初期化
	ks, err := infra.OpenKeyStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open keystore", "driver", cfg.KeystoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ks.Close(); closeErr != nil {
			slog.Error("failed to close keystore", "error", closeErr)
		}
	}()

	// DI
	m := metrics.NewMetrics()
	var health handler.HealthChecker
	if ks.Conn != nil {
		ks.Conn.OnRetry(m.RecordReconnectRetry)
		health = ks.Conn
	}
	store := metrics.InstrumentKeyStore(ks.KeyStore, m)
	h := handler.NewKeyHandler(store, health)
	router := handler.NewRouter(h, m, cfg.OtelEnabled)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"keystore_driver", cfg.KeystoreDriver,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
