package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/koopa0/system-design/14-uno-game-server/internal/auth"
	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/koopa0/system-design/14-uno-game-server/internal/gateway"
	"github.com/koopa0/system-design/14-uno-game-server/internal/room"
)

// WebSocket 動作名稱（對外協定）
const (
	ActionPlayCard    = "play_card"
	ActionChooseColor = "choose_color"
	ActionDrawCard    = "draw_card"
	ActionSkipTurn    = "skip_turn"
	ActionStartGame   = "start_game"
	ActionKickPlayer  = "kick_player"
	ActionLeaveRoom   = "leave_room"
	ActionResetRoom   = "reset_room"
	ActionGetGame     = "get_game"
	ActionPing        = "ping"
)

// Inbound 客戶端送來的動作
type Inbound struct {
	Action   string     `json:"action"`
	Card     *card.Card `json:"card,omitempty"`
	Color    card.Color `json:"color,omitempty"`
	TargetID string     `json:"target_id,omitempty"`
}

// serveWS 處理 WebSocket 連接
//
// 玩家身分只從 token 取得，查詢參數裡的房間代碼必須與 token 一致
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))

	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if claims.RoomCode != code {
		s.errorResponse(w, auth.ErrInvalidToken)
		return
	}

	playerID := claims.PlayerID()
	member, err := s.gw.IsMember(code, playerID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if !member {
		s.errorResponse(w, room.ErrPlayerNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := newClient(s.hub, conn, code, playerID)
	s.hub.register(c)

	go c.writePump()
	go c.readPump(s.dispatch, s.onDisconnect)

	s.logger.Info("WebSocket 連接建立",
		"room_code", code,
		"player_id", playerID,
		"conn_id", c.ID)

	if err := s.gw.SetConnected(code, playerID, true); err != nil {
		s.logger.Debug("更新連線狀態失敗", "room_code", code, "player_id", playerID, "error", err)
	}
	// 連上（或重連）時補一份目前的牌局視角
	if view, err := s.gw.GameState(code, playerID); err == nil {
		c.reply(gateway.Event{Type: gateway.EventGameState, Data: view})
	}
}

// onDisconnect 連接結束；被新連線取代的舊連接不更新狀態
func (s *Server) onDisconnect(c *Client, active bool) {
	s.logger.Info("WebSocket 連接關閉",
		"room_code", c.RoomCode,
		"player_id", c.PlayerID,
		"conn_id", c.ID)

	if !active {
		return
	}
	if err := s.gw.SetConnected(c.RoomCode, c.PlayerID, false); err != nil &&
		!errors.Is(err, room.ErrRoomNotFound) && !errors.Is(err, room.ErrPlayerNotFound) {
		s.logger.Warn("更新連線狀態失敗", "room_code", c.RoomCode, "player_id", c.PlayerID, "error", err)
	}
}

// dispatch 處理一則客戶端訊息；錯誤只回給發送者
func (s *Server) dispatch(c *Client, message []byte) {
	var msg Inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(gateway.ErrorEvent(fmt.Errorf("%w: %v", gateway.ErrMalformedRequest, err)))
		return
	}

	if err := s.handleAction(c, msg); err != nil {
		s.logger.Debug("動作失敗",
			"room_code", c.RoomCode,
			"player_id", c.PlayerID,
			"action", msg.Action,
			"error", err)
		c.reply(gateway.ErrorEvent(err))
	}
}

func (s *Server) handleAction(c *Client, msg Inbound) error {
	code, playerID := c.RoomCode, c.PlayerID

	switch msg.Action {
	case ActionPlayCard:
		if msg.Card == nil {
			return fmt.Errorf("%w: missing card", card.ErrInvalidCard)
		}
		return s.gw.PlayCard(code, playerID, *msg.Card)
	case ActionChooseColor:
		return s.gw.ChooseColor(code, playerID, msg.Color)
	case ActionDrawCard:
		return s.gw.DrawCard(code, playerID)
	case ActionSkipTurn:
		return s.gw.SkipTurn(code, playerID)
	case ActionStartGame:
		return s.gw.StartGame(code, playerID)
	case ActionResetRoom:
		return s.gw.ResetRoom(code, playerID)
	case ActionKickPlayer:
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.gw.KickPlayer(ctx, code, playerID, msg.TargetID)
	case ActionLeaveRoom:
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.gw.LeaveRoom(ctx, code, playerID); err != nil {
			return err
		}
		s.hub.DisconnectPlayer(code, playerID)
		return nil
	case ActionGetGame:
		view, err := s.gw.GameState(code, playerID)
		if err != nil {
			return err
		}
		c.reply(gateway.Event{Type: gateway.EventGameState, Data: view})
		return nil
	case ActionPing:
		c.reply(gateway.Event{Type: gateway.EventPong, Data: map[string]int64{"ts": time.Now().UnixMilli()}})
		return nil
	default:
		return fmt.Errorf("%w: %q", gateway.ErrUnknownAction, msg.Action)
	}
}
