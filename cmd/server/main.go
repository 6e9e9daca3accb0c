package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/SamWang8891/clippy/internal/blob"
	"github.com/SamWang8891/clippy/internal/config"
	clog "github.com/SamWang8891/clippy/internal/log"
	"github.com/SamWang8891/clippy/internal/server"
	"github.com/SamWang8891/clippy/internal/service"
	"github.com/SamWang8891/clippy/internal/session"
	"github.com/SamWang8891/clippy/internal/ws"
)

func main() {
	// main 函数负责加载配置、初始化日志与 blob 存储、组装注册表/
	// Hub/清扫任务并启动 Gin 服务，收到信号后优雅退出。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	blobs, err := blob.NewStore(afero.NewOsFs(), cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("init blob store")
	}
	// 会话不跨重启存活，上次运行遗留的 blob 直接清掉
	if err := blobs.Purge(); err != nil {
		log.Warn().Err(err).Msg("purge upload dir")
	}

	reg := session.NewRegistry(cfg.SessionIDLength)
	hub := ws.NewHub(reg, cfg.DisconnectGrace)
	sessionSvc := service.NewSessionService(reg, hub, blobs)
	blockSvc := service.NewBlockService(reg, hub, blobs)
	h := server.NewHandler(cfg, sessionSvc, blockSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewSweeper(reg, hub, blobs, cfg)
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.SetupRouter(cfg, reg, hub, h),
	}
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
