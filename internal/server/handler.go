// Package server 是對外的傳輸層：HTTP API 管房間生命週期，WebSocket 管牌局動作與推送。
//
// 身分只來自 auth 簽發的 token；所有動作都轉交 gateway，這裡不碰遊戲規則。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/14-uno-game-server/internal/auth"
	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
	"github.com/koopa0/system-design/14-uno-game-server/internal/gateway"
	"github.com/koopa0/system-design/14-uno-game-server/internal/room"
)

// Server HTTP 與 WebSocket 請求處理器
type Server struct {
	gw       *gateway.Gateway
	hub      *Hub
	issuer   *auth.Issuer
	logger   *slog.Logger
	upgrader websocket.Upgrader
	timeout  time.Duration // 房間代碼釋放等外部呼叫的上限
}

// Option 伺服器選項
type Option func(*Server)

// WithAllowedOrigins 限制 WebSocket 來源；未設定時接受所有來源
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) == 0 {
			return
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(origins, r.Header.Get("Origin"))
		}
	}
}

// WithStoreTimeout 離開、踢人時等待代碼儲存的上限
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New 創建伺服器
//
// hub 必須是 gw 的事件出口之一（直接或經由 gateway.Fanout）
func New(gw *gateway.Gateway, hub *Hub, issuer *auth.Issuer, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		gw:     gw,
		hub:    hub,
		issuer: issuer,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes 設定路由
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return s.recoverer(s.loggerMiddleware(handler))
	}

	// 房間管理 API
	mux.HandleFunc("POST /api/v1/rooms", wrap(s.createRoom))
	mux.HandleFunc("POST /api/v1/rooms/{code}/join", wrap(s.joinRoom))
	mux.HandleFunc("POST /api/v1/rooms/{code}/leave", wrap(s.leaveRoom))
	mux.HandleFunc("POST /api/v1/rooms/{code}/start", wrap(s.startGame))
	mux.HandleFunc("POST /api/v1/rooms/{code}/reset", wrap(s.resetRoom))
	mux.HandleFunc("POST /api/v1/rooms/{code}/kick", wrap(s.kickPlayer))
	mux.HandleFunc("GET /api/v1/rooms/{code}", wrap(s.getRoom))
	mux.HandleFunc("GET /api/v1/rooms/{code}/game", wrap(s.getGame))

	// WebSocket 需要原始的 ResponseWriter 才能 Hijack，不經過日誌中間件
	mux.HandleFunc("GET /ws/rooms/{code}", s.recoverer(s.serveWS))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(s.health))
	mux.HandleFunc("GET /stats", wrap(s.stats))

	return mux
}

// 請求結構
type playerRequest struct {
	PlayerName string `json:"player_name"`
}

type kickRequest struct {
	TargetID string `json:"target_id"`
}

// joinResponse 建立或加入房間的回應
type joinResponse struct {
	RoomCode string    `json:"room_code"`
	PlayerID string    `json:"player_id"`
	Token    string    `json:"token"`
	Room     room.View `json:"room"`
}

// createRoom 創建房間
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, gateway.ErrMalformedRequest)
		return
	}

	view, host, err := s.gw.CreateRoom(r.Context(), req.PlayerName)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.respondWithToken(w, view, host, http.StatusCreated)
}

// joinRoom 加入房間
func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, gateway.ErrMalformedRequest)
		return
	}

	view, p, err := s.gw.JoinRoom(r.PathValue("code"), req.PlayerName)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.respondWithToken(w, view, p, http.StatusOK)
}

func (s *Server) respondWithToken(w http.ResponseWriter, view room.View, p *game.Player, status int) {
	token, err := s.issuer.Issue(view.Code, p.ID, p.Name)
	if err != nil {
		s.logger.Error("簽發 token 失敗", "room_code", view.Code, "player_id", p.ID, "error", err)
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, joinResponse{
		RoomCode: view.Code,
		PlayerID: p.ID,
		Token:    token,
		Room:     view,
	}, status)
}

// leaveRoom 離開房間
func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.gw.LeaveRoom(ctx, claims.RoomCode, claims.PlayerID()); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.hub.DisconnectPlayer(claims.RoomCode, claims.PlayerID())
	s.success(w)
}

// startGame 房主開局
func (s *Server) startGame(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := s.gw.StartGame(claims.RoomCode, claims.PlayerID()); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.success(w)
}

// resetRoom 房主把結束的房間帶回等待階段
func (s *Server) resetRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := s.gw.ResetRoom(claims.RoomCode, claims.PlayerID()); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.success(w)
}

// kickPlayer 房主踢人
func (s *Server) kickPlayer(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req kickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		s.errorResponse(w, gateway.ErrMalformedRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.gw.KickPlayer(ctx, claims.RoomCode, claims.PlayerID(), req.TargetID); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.success(w)
}

// getRoom 房間快照
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	view, err := s.gw.RoomState(r.PathValue("code"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, view, http.StatusOK)
}

// getGame 持有 token 的玩家查詢自己視角的牌局
func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	view, err := s.gw.GameState(claims.RoomCode, claims.PlayerID())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, view, http.StatusOK)
}

// health 健康檢查
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats := s.gw.Registry().Stats()

	total := 0
	for _, n := range s.hub.ConnectionCount() {
		total += n
	}
	stats["websocket_connections"] = total
	stats["stalest_pong_ms"] = s.hub.StalestPong().Milliseconds()

	s.jsonResponse(w, stats, http.StatusOK)
}

// authenticate 驗證 Bearer token 且 token 屬於路徑上的房間
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		s.errorResponse(w, auth.ErrInvalidToken)
		return nil, false
	}
	claims, err := s.issuer.Parse(raw)
	if err != nil {
		s.errorResponse(w, err)
		return nil, false
	}
	if !strings.EqualFold(claims.RoomCode, r.PathValue("code")) {
		s.errorResponse(w, auth.ErrInvalidToken)
		return nil, false
	}
	return claims, true
}

// statusFor 錯誤到 HTTP 狀態碼
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrRoomFull), errors.Is(err, room.ErrRoomInGame),
		errors.Is(err, room.ErrNotInGame), errors.Is(err, game.ErrGameOver):
		return http.StatusConflict
	case errors.Is(err, room.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, room.ErrInvalidName), errors.Is(err, room.ErrCannotKickSelf),
		errors.Is(err, card.ErrInvalidCard), errors.Is(err, gateway.ErrMalformedRequest),
		errors.Is(err, gateway.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrCodeExhausted):
		return http.StatusServiceUnavailable
	case gateway.ErrorCode(err) != "internal":
		// 其餘都是規則引擎拒絕的動作
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// jsonResponse 返回 JSON 響應
func (s *Server) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("請求處理失敗", "error", err)
		message = "內部伺服器錯誤"
	}
	s.jsonResponse(w, map[string]any{
		"error": message,
		"code":  gateway.ErrorCode(err),
	}, status)
}

func (s *Server) success(w http.ResponseWriter) {
	s.jsonResponse(w, map[string]any{"success": true}, http.StatusOK)
}

// loggerMiddleware 日誌中間件
func (s *Server) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		s.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (s *Server) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				s.jsonResponse(w, map[string]any{
					"error": "內部伺服器錯誤",
					"code":  "internal",
				}, http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
