package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/SamWang8891/clippy/internal/blob"
	"github.com/SamWang8891/clippy/internal/config"
	"github.com/SamWang8891/clippy/internal/service"
	"github.com/SamWang8891/clippy/internal/session"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	cfg        config.Config
	sessionSvc *service.SessionService
	blockSvc   *service.BlockService
}

func NewHandler(cfg config.Config, sessionSvc *service.SessionService, blockSvc *service.BlockService) *Handler {
	return &Handler{cfg: cfg, sessionSvc: sessionSvc, blockSvc: blockSvc}
}

// writeError 把领域错误映射到 HTTP 状态码。
func writeError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, session.ErrBlockNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
	case errors.Is(err, session.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, session.ErrJoinDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "session is not accepting new members"})
	case errors.Is(err, session.ErrNotHost):
		c.JSON(http.StatusForbidden, gin.H{"error": "host privileges required"})
	case errors.Is(err, session.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "user not in session"})
	case errors.Is(err, blob.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
	default:
		log.Error().Err(err).Str("op", op).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Config 返回客户端需要的加密参数与上传体积上限。
func (h *Handler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"encryption_passphrase": h.cfg.EncryptionPassphrase,
		"encryption_salt":       h.cfg.EncryptionSalt,
		"max_file_size_bytes":   h.cfg.MaxUploadBytes,
	})
}

// CreateSession 处理创建会话请求。
func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		UserName string `json:"user_name"`
	}
	// 空 body 合法：匿名创建
	_ = c.ShouldBindJSON(&req)
	result := h.sessionSvc.Create(req.UserName)
	c.JSON(http.StatusOK, result)
}

// JoinSession 处理加入会话请求。
func (h *Handler) JoinSession(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		UserName  string `json:"user_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.sessionSvc.Join(req.SessionID, req.UserName)
	if err != nil {
		writeError(c, err, "join session")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSession 返回会话快照。
func (h *Handler) GetSession(c *gin.Context) {
	snap, err := h.sessionSvc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err, "get session")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DestroySession 由 host 销毁会话。
func (h *Handler) DestroySession(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.sessionSvc.Destroy(req.SessionID, req.UserID); err != nil {
		writeError(c, err, "destroy session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TransferHost 移交 host 权限。
func (h *Handler) TransferHost(c *gin.Context) {
	var req struct {
		SessionID     string `json:"session_id"`
		CurrentHostID string `json:"current_host_id"`
		NewHostID     string `json:"new_host_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.CurrentHostID == "" || req.NewHostID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.sessionSvc.TransferHost(req.SessionID, req.CurrentHostID, req.NewHostID); err != nil {
		writeError(c, err, "transfer host")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ToggleJoin 开关加入权限。
func (h *Handler) ToggleJoin(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
		AllowJoin *bool  `json:"allow_join"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.UserID == "" || req.AllowJoin == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.sessionSvc.ToggleJoin(req.SessionID, req.UserID, *req.AllowJoin); err != nil {
		writeError(c, err, "toggle join")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateBlock 创建文本块。内容是客户端加密后的不透明字符串。
func (h *Handler) CreateBlock(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
		Type      string `json:"type"`
		Content   string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.Type != string(session.BlockText) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block type"})
		return
	}
	b, err := h.blockSvc.CreateText(req.SessionID, req.UserID, req.Content)
	if err != nil {
		writeError(c, err, "create block")
		return
	}
	c.JSON(http.StatusOK, gin.H{"block_id": b.ID, "block": b})
}

// UploadBlock 接收 multipart 文件上传。超限请求在写入账本前拒绝。
func (h *Handler) UploadBlock(c *gin.Context) {
	sessionID := c.PostForm("session_id")
	userID := c.PostForm("user_id")
	if sessionID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if header.Size > h.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file too large, max size: %d bytes", h.cfg.MaxUploadBytes),
		})
		return
	}
	f, err := header.Open()
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	defer f.Close()
	b, err := h.blockSvc.Upload(sessionID, userID, header.Filename, f)
	if err != nil {
		writeError(c, err, "upload block")
		return
	}
	c.JSON(http.StatusOK, gin.H{"block_id": b.ID, "block": b})
}

// DeleteBlock 删除一个 block。
func (h *Handler) DeleteBlock(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
		BlockID   uint64 `json:"block_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.UserID == "" || req.BlockID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.blockSvc.Delete(req.SessionID, req.UserID, req.BlockID); err != nil {
		writeError(c, err, "delete block")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DownloadBlock 回放一个 block 的不透明内容。
func (h *Handler) DownloadBlock(c *gin.Context) {
	blockID, err := strconv.ParseUint(c.Param("block_id"), 10, 64)
	if err != nil || blockID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block id"})
		return
	}
	name, size, rc, err := h.blockSvc.Download(c.Param("session_id"), blockID)
	if err != nil {
		writeError(c, err, "download block")
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, size, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}
