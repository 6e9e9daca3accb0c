package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/SamWang8891/clippy/internal/config"
	"github.com/SamWang8891/clippy/internal/metrics"
	"github.com/SamWang8891/clippy/internal/mw"
	"github.com/SamWang8891/clippy/internal/session"
	"github.com/SamWang8891/clippy/internal/ws"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, reg *session.Registry, hub *ws.Hub, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.AllowedOrigins))
	// 外层 nginx 另有限速，这里只是兜底
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.GET("/config", h.Config)

	api.POST("/session/create", h.CreateSession)
	api.POST("/session/join", h.JoinSession)
	api.GET("/session/:id", h.GetSession)
	api.POST("/session/destroy", h.DestroySession)
	api.POST("/session/transfer_host", h.TransferHost)
	api.POST("/session/toggle_join", h.ToggleJoin)

	api.POST("/block/create", h.CreateBlock)
	api.POST("/block/upload", h.UploadBlock)
	api.DELETE("/block/delete", h.DeleteBlock)
	api.GET("/block/download/:session_id/:block_id", h.DownloadBlock)

	r.GET("/ws/:session_id/:user_id", ws.Serve(hub, reg, cfg))

	return r
}
