// Package gateway 是所有外部操作的單一入口。
//
// 系統設計問題：
//
//	多個連線同時對同一房間送出動作，如何保證順序一致、錯誤不外洩、每個人只看到自己的手牌？
//
// 核心挑戰：
//  1. 序列化：同一房間的動作一次一個，依接受順序執行
//  2. 分送：狀態改變後，每位玩家收到自己視角的快照
//  3. 錯誤隔離：驗證失敗只回給發起者，狀態不變
//  4. 致命錯誤：牌不夠抽（理論上不可能）時整局中止並通知所有人
//
// 設計方案：
//
//	✅ 房間執行通道 - 每個動作都在 Room.Exec 內完成「驗證 → 套用 → 分送」
//	✅ 通道內分送 - Broadcaster 非阻塞，事件順序與狀態變更順序一致
//	✅ 無遊戲邏輯 - 規則全在 game 套件，這裡只做查找、呼叫、分送
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
	"github.com/koopa0/system-design/14-uno-game-server/internal/room"
)

// Gateway 事件閘道
type Gateway struct {
	registry    *room.Registry
	out         Broadcaster
	sessionOpts func() []game.Option
	logger      *slog.Logger
}

// Option 閘道選項
type Option func(*config)

type config struct {
	registryOpts []room.Option
	sessionOpts  func() []game.Option
}

// WithRegistryOptions 傳給房間註冊表的選項
func WithRegistryOptions(opts ...room.Option) Option {
	return func(c *config) {
		c.registryOpts = append(c.registryOpts, opts...)
	}
}

// WithSessionOptions 每次開局時附加的牌局選項（測試用固定牌堆）
func WithSessionOptions(fn func() []game.Option) Option {
	return func(c *config) {
		c.sessionOpts = fn
	}
}

// New 創建事件閘道
//
// 閘道擁有房間註冊表，註冊表的變動通知直接接到閘道的分送
func New(store room.CodeStore, out Broadcaster, logger *slog.Logger, opts ...Option) *Gateway {
	cfg := &config{
		sessionOpts: func() []game.Option { return nil },
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if out == nil {
		out = Discard{}
	}

	g := &Gateway{
		out:         out,
		sessionOpts: cfg.sessionOpts,
		logger:      logger,
	}
	regOpts := append(cfg.registryOpts, room.WithNotifier(g.onRoomChanged))
	g.registry = room.NewRegistry(store, logger, regOpts...)
	return g
}

// Registry 房間註冊表（統計、關閉用）
func (g *Gateway) Registry() *room.Registry {
	return g.registry
}

// CreateRoom 創建房間，建立者成為房主
func (g *Gateway) CreateRoom(ctx context.Context, hostName string) (room.View, *game.Player, error) {
	r, host, err := g.registry.Create(ctx, hostName)
	if err != nil {
		g.logger.Warn("創建房間失敗", "error", err)
		return room.View{}, nil, err
	}
	view, err := g.view(r)
	if err != nil {
		return room.View{}, nil, err
	}
	return view, host, nil
}

// JoinRoom 加入房間
func (g *Gateway) JoinRoom(code, playerName string) (room.View, *game.Player, error) {
	r, p, err := g.registry.Join(code, playerName)
	if err != nil {
		return room.View{}, nil, err
	}
	view, err := g.view(r)
	if err != nil {
		return room.View{}, nil, err
	}
	return view, p, nil
}

// LeaveRoom 離開房間
func (g *Gateway) LeaveRoom(ctx context.Context, code, playerID string) error {
	return g.registry.Leave(ctx, code, playerID)
}

// KickPlayer 房主踢人
//
// 被踢的玩家已不是成員，kicked 事件在離開執行通道後單獨送出
func (g *Gateway) KickPlayer(ctx context.Context, code, requesterID, targetID string) error {
	if err := g.registry.Kick(ctx, code, requesterID, targetID); err != nil {
		return err
	}
	g.out.Send(code, targetID, Event{Type: EventKicked, Data: KickedPayload{RoomCode: code, ByHost: requesterID}})

	g.logger.Info("玩家被踢出", "room_code", code, "host_id", requesterID, "player_id", targetID)
	return nil
}

// StartGame 房主開局
func (g *Gateway) StartGame(code, requesterID string) error {
	return g.exec(code, func(r *room.Room) error {
		if err := r.StartGame(requesterID, g.sessionOpts()...); err != nil {
			return err
		}
		g.out.Broadcast(r.Code, Event{Type: EventRoomUpdated, Data: r.Snapshot()})
		g.publishGame(r)
		return nil
	})
}

// ResetRoom 房主把結束的房間帶回等待階段
func (g *Gateway) ResetRoom(code, requesterID string) error {
	return g.exec(code, func(r *room.Room) error {
		if err := r.ResetToLobby(requesterID); err != nil {
			return err
		}
		g.out.Broadcast(r.Code, Event{Type: EventRoomUpdated, Data: r.Snapshot()})
		return nil
	})
}

// PlayCard 出牌
func (g *Gateway) PlayCard(code, playerID string, c card.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return g.act(code, playerID, "play_card", func(s *game.Session) error {
		return s.PlayCard(playerID, c)
	})
}

// ChooseColor 萬用牌選色
func (g *Gateway) ChooseColor(code, playerID string, color card.Color) error {
	return g.act(code, playerID, "choose_color", func(s *game.Session) error {
		return s.ChooseColor(playerID, color)
	})
}

// DrawCard 抽牌
func (g *Gateway) DrawCard(code, playerID string) error {
	return g.act(code, playerID, "draw_card", func(s *game.Session) error {
		return s.DrawCard(playerID)
	})
}

// SkipTurn 抽牌後跳過
func (g *Gateway) SkipTurn(code, playerID string) error {
	return g.act(code, playerID, "skip_turn", func(s *game.Session) error {
		return s.SkipTurn(playerID)
	})
}

// GameState 玩家視角的牌局快照
func (g *Gateway) GameState(code, playerID string) (game.GameView, error) {
	var view game.GameView
	err := g.exec(code, func(r *room.Room) error {
		if r.Member(playerID) == nil {
			return room.ErrPlayerNotFound
		}
		v, err := r.GameView(playerID)
		view = v
		return err
	})
	return view, err
}

// RoomState 房間快照
func (g *Gateway) RoomState(code string) (room.View, error) {
	var view room.View
	err := g.exec(code, func(r *room.Room) error {
		view = r.Snapshot()
		return nil
	})
	return view, err
}

// IsMember 玩家是否在房間內
func (g *Gateway) IsMember(code, playerID string) (bool, error) {
	var member bool
	err := g.exec(code, func(r *room.Room) error {
		member = r.Member(playerID) != nil
		return nil
	})
	return member, err
}

// SetConnected 連線狀態改變（WebSocket 連上 / 斷線）
func (g *Gateway) SetConnected(code, playerID string, connected bool) error {
	return g.exec(code, func(r *room.Room) error {
		if err := r.SetConnected(playerID, connected); err != nil {
			return err
		}
		g.out.Broadcast(r.Code, Event{Type: EventRoomUpdated, Data: r.Snapshot()})
		return nil
	})
}

// act 牌局動作的共用流程：成員檢查 → 規則引擎 → 結束判定 → 分送
func (g *Gateway) act(code, playerID, action string, fn func(*game.Session) error) error {
	return g.exec(code, func(r *room.Room) error {
		if r.Member(playerID) == nil {
			return room.ErrPlayerNotFound
		}
		switch r.Phase() {
		case room.PhaseWaiting:
			return room.ErrNotInGame
		case room.PhaseFinished:
			return game.ErrGameOver
		}

		if err := fn(r.Session()); err != nil {
			if errors.Is(err, game.ErrEmptyDeck) {
				g.abort(r, err)
				return err
			}
			g.logger.Debug("動作被拒絕",
				"room_code", r.Code,
				"player_id", playerID,
				"action", action,
				"error", err)
			return err
		}

		r.Sync()
		g.out.Broadcast(r.Code, Event{Type: EventRoomUpdated, Data: r.Snapshot()})
		g.publishGame(r)
		return nil
	})
}

// exec 在房間執行通道內執行
func (g *Gateway) exec(code string, fn func(*room.Room) error) error {
	r, err := g.registry.Get(code)
	if err != nil {
		return err
	}
	return r.Exec(fn)
}

// abort 致命錯誤：中止牌局並通知所有人
func (g *Gateway) abort(r *room.Room, cause error) {
	g.logger.Error("牌局中止",
		"room_code", r.Code,
		"error", cause)

	r.Abort(cause.Error())
	g.out.Broadcast(r.Code, Event{Type: EventGameAborted, Data: AbortPayload{Reason: cause.Error()}})
	g.out.Broadcast(r.Code, Event{Type: EventRoomUpdated, Data: r.Snapshot()})
}

// onRoomChanged 註冊表的變動通知（持有房間執行通道）
func (g *Gateway) onRoomChanged(r *room.Room) {
	if r.Closed() {
		g.out.Broadcast(r.Code, Event{Type: EventRoomClosed, Data: map[string]string{"room_code": r.Code}})
		return
	}
	g.out.Broadcast(r.Code, Event{Type: EventRoomUpdated, Data: r.Snapshot()})
	if r.Session() != nil && r.Phase() != room.PhaseWaiting {
		g.publishGame(r)
	}
}

// publishGame 牌局狀態分送（呼叫者先廣播 room_updated）
//
// 順序：每人一份 game_state → 輪到的人 your_turn / choose_color → 結束時 game_over
func (g *Gateway) publishGame(r *room.Room) {
	s := r.Session()
	if s == nil {
		return
	}

	for _, p := range r.Players() {
		g.out.Send(r.Code, p.ID, Event{Type: EventGameState, Data: s.Snapshot(p.ID)})
	}

	switch s.Phase() {
	case game.PhaseAwaitingColorChoice:
		chooser := s.ColorChooser()
		g.out.Send(r.Code, chooser, Event{
			Type: EventChooseColor,
			Data: ColorPromptPayload{PlayerID: chooser, Colors: card.Colors},
		})
	case game.PhaseAwaitingPlay, game.PhaseAwaitingDrawAck:
		cur := s.CurrentPlayer()
		payload := TurnPayload{
			PlayerID: cur.ID,
			Phase:    s.Phase(),
			CanSkip:  s.Phase() == game.PhaseAwaitingDrawAck,
		}
		if drawn, ok := s.DrawnCard(); ok {
			payload.DrawnCard = &drawn
		}
		g.out.Send(r.Code, cur.ID, Event{Type: EventYourTurn, Data: payload})
	}

	if res := r.TakeResult(); res != nil {
		g.logger.Info("牌局結束",
			"room_code", r.Code,
			"winner", res.WinnerID,
			"round_points", res.RoundPoints)
		g.out.Broadcast(r.Code, Event{Type: EventGameOver, Data: res})
	}
}

// view 房間快照；房間在建立/加入之後馬上被拆除時回傳 ErrRoomNotFound
func (g *Gateway) view(r *room.Room) (room.View, error) {
	var v room.View
	err := r.Exec(func(r *room.Room) error {
		v = r.Snapshot()
		return nil
	})
	return v, err
}
