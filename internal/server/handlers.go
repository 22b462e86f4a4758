package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"toomi/internal/capture"
	"toomi/internal/config"
)

// sessionHandler はキャプチャセッションAPIのハンドラ群
type sessionHandler struct {
	config  *config.Config
	manager *capture.Manager
}

// errorResponse はエラー応答の共通形式
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// sessionInfo はセッション状態の応答形式
type sessionInfo struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Profile struct {
		Width     int     `json:"width"`
		Height    int     `json:"height"`
		FrameRate float64 `json:"frame_rate"`
	} `json:"profile"`
}

// createSessionRequest はセッション生成リクエスト
type createSessionRequest struct {
	EnableAudio bool `json:"enable_audio"`
}

// startSessionRequest はセッション開始リクエスト
type startSessionRequest struct {
	EnableMrc bool   `json:"enable_mrc"`
	Address   string `json:"address" binding:"required"` // 配信先アドレス (host:port)
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *sessionHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *sessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": h.config.Server.Host,
			"port": h.config.Server.Port,
		},
		"sessions":  len(h.manager.List()),
		"timestamp": time.Now(),
	})
}

// ListSessions はセッション一覧取得エンドポイントの実装
func (h *sessionHandler) ListSessions(c *gin.Context) {
	ids := h.manager.List()
	sessions := make([]sessionInfo, 0, len(ids))
	for _, id := range ids {
		session, err := h.manager.Get(id)
		if err != nil {
			// 一覧取得と並行して閉じられた場合は飛ばす
			continue
		}
		sessions = append(sessions, toSessionInfo(id, session))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// CreateSession はセッション生成エンドポイントの実装
func (h *sessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "リクエストの形式が不正です",
			Timestamp: time.Now(),
		})
		return
	}

	id, err := h.manager.Create(req.EnableAudio).Wait(30 * time.Second)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "session_create_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	session, err := h.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "session_not_found",
			Message:   "生成したセッションが見つかりません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusCreated, toSessionInfo(id, session))
}

// GetSession はセッション状態取得エンドポイントの実装
func (h *sessionHandler) GetSession(c *gin.Context) {
	id := c.Param("id")
	session, err := h.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "session_not_found",
			Message:   "指定されたセッションが見つかりません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, toSessionInfo(id, session))
}

// StartSession は配信開始エンドポイントの実装
func (h *sessionHandler) StartSession(c *gin.Context) {
	id := c.Param("id")
	session, err := h.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "session_not_found",
			Message:   "指定されたセッションが見つかりません",
			Timestamp: time.Now(),
		})
		return
	}

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "配信先アドレスが指定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	conn, err := capture.DialTCP(req.Address)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{
			Error:     "connection_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	if _, err := session.StartAsync(req.EnableMrc, conn).Wait(30 * time.Second); err != nil {
		_ = conn.Close()
		c.JSON(http.StatusConflict, errorResponse{
			Error:     "session_start_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, toSessionInfo(id, session))
}

// StopSession は配信停止エンドポイントの実装
func (h *sessionHandler) StopSession(c *gin.Context) {
	id := c.Param("id")
	session, err := h.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "session_not_found",
			Message:   "指定されたセッションが見つかりません",
			Timestamp: time.Now(),
		})
		return
	}

	if _, err := session.StopAsync().Wait(30 * time.Second); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "session_stop_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, toSessionInfo(id, session))
}

// CloseSession はセッション終了エンドポイントの実装
func (h *sessionHandler) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Close(id); err != nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "session_not_found",
			Message:   "指定されたセッションが見つかりません",
			Timestamp: time.Now(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// toSessionInfo はセッションを応答形式へ変換する
func toSessionInfo(id string, session *capture.Session) sessionInfo {
	info := sessionInfo{
		ID:    id,
		State: string(session.State()),
	}
	profile := session.NegotiatedProfile()
	info.Profile.Width = profile.Width
	info.Profile.Height = profile.Height
	info.Profile.FrameRate = profile.FrameRate
	return info
}
