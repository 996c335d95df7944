package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
)

// 系統設計問題：
//   多位玩家同時對同一房間出牌、加入、離開，如何保證每個操作都看到一致的狀態？
//
// 核心挑戰：
//   1. 序列化：同一房間的操作必須一次一個，依接受順序執行
//   2. 隔離：不同房間之間完全並行，沒有共享可變狀態
//   3. 原子拆除：房間拆除到一半時，加入請求不能看到它
//   4. 房主繼承：任何時刻恰好一位房主
//
// 設計方案：
//   ✅ 執行通道（turn lane）- 每個房間一把 sync.Mutex，所有讀寫都經過 Exec
//   ✅ 先標記關閉再移除 - 拆除時在通道內設 closed，等待中的操作拿到通道後直接失敗
//   ✅ 最早加入者繼承 - players 依加入順序排列，players[0] 永遠是房主

// Phase 房間階段
//
// 狀態轉換：
//
//	waiting ──房主開局──→ in_game ──有人出完 / 只剩一人 / 中止──→ finished
//	   ↑                                                     │
//	   └─────────────── 房主重置 ───────────────────────────────┘
//	finished ──房主再開一局──→ in_game
type Phase string

const (
	PhaseWaiting  Phase = "waiting"  // 等待玩家加入
	PhaseInGame   Phase = "in_game"  // 牌局進行中
	PhaseFinished Phase = "finished" // 牌局結束，保留結算
)

const (
	// MaxPlayers 房間人數上限
	MaxPlayers = game.MaxPlayers
	// MaxNameLength 玩家名稱長度上限（字元）
	MaxNameLength = 32
)

// Room 遊戲房間
//
// 除了 Code 與 CreatedAt，所有欄位只能在 Exec 的回呼內讀寫
type Room struct {
	Code      string
	CreatedAt time.Time

	mu         sync.Mutex // 執行通道
	players    []*game.Player
	phase      Phase
	session    *game.Session
	result     *game.ScoreReport // 尚未通知的結算
	rounds     int
	closed     bool
	lastActive time.Time
	logger     *slog.Logger
}

// View 房間對外快照
type View struct {
	Code      string          `json:"room_code"`
	Phase     Phase           `json:"phase"`
	HostID    string          `json:"host_id"`
	Players   []game.SeatView `json:"players"`
	Rounds    int             `json:"rounds"`
	CreatedAt time.Time       `json:"created_at"`
}

func newRoom(code string, host *game.Player, logger *slog.Logger) *Room {
	now := time.Now()
	host.IsHost = true
	return &Room{
		Code:       code,
		CreatedAt:  now,
		players:    []*game.Player{host},
		phase:      PhaseWaiting,
		lastActive: now,
		logger:     logger.With("room_code", code),
	}
}

// Exec 在房間的執行通道內執行 fn
//
// 房間在等待期間被拆除時回傳 ErrRoomNotFound，fn 不會執行
func (r *Room) Exec(fn func(*Room) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	r.lastActive = time.Now()
	return fn(r)
}

// Players 依加入順序的玩家
func (r *Room) Players() []*game.Player {
	return append([]*game.Player(nil), r.players...)
}

// Host 目前房主
func (r *Room) Host() *game.Player {
	if len(r.players) == 0 {
		return nil
	}
	return r.players[0]
}

// Member 依 ID 找玩家
func (r *Room) Member(playerID string) *game.Player {
	if i := r.indexOf(playerID); i >= 0 {
		return r.players[i]
	}
	return nil
}

// Phase 房間階段
func (r *Room) Phase() Phase {
	return r.phase
}

// Session 目前牌局（waiting 階段為 nil）
func (r *Room) Session() *game.Session {
	return r.session
}

// Rounds 已開局次數
func (r *Room) Rounds() int {
	return r.rounds
}

// Closed 房間是否已拆除
func (r *Room) Closed() bool {
	return r.closed
}

// StartGame 房主開局
//
// finished 階段也可以直接再開一局，累計分數保留
func (r *Room) StartGame(requesterID string, opts ...game.Option) error {
	if err := r.requireHost(requesterID); err != nil {
		return err
	}
	if r.phase == PhaseInGame {
		return ErrRoomInGame
	}

	opts = append([]game.Option{game.WithLogger(r.logger)}, opts...)
	s, err := game.NewSession(r.players, opts...)
	if err != nil {
		return err
	}

	r.session = s
	r.phase = PhaseInGame
	r.result = nil
	r.rounds++

	r.logger.Info("牌局開始", "players", len(r.players), "round", r.rounds)
	return nil
}

// ResetToLobby 房主把結束的房間帶回等待階段（清掉牌局，保留累計分數）
func (r *Room) ResetToLobby(requesterID string) error {
	if err := r.requireHost(requesterID); err != nil {
		return err
	}
	switch r.phase {
	case PhaseInGame:
		return ErrRoomInGame
	case PhaseWaiting:
		return nil
	}

	r.session = nil
	r.result = nil
	r.phase = PhaseWaiting
	for _, p := range r.players {
		p.Hand = nil
	}
	return nil
}

// Sync 牌局結束時把房間轉為 finished，回傳牌局是否剛好在這次結束
func (r *Room) Sync() bool {
	if r.phase != PhaseInGame || r.session == nil || r.session.Phase() != game.PhaseEnded {
		return false
	}
	r.phase = PhaseFinished
	r.result = r.session.Report()
	return true
}

// TakeResult 取出尚未通知的結算（只會回傳一次）
func (r *Room) TakeResult() *game.ScoreReport {
	res := r.result
	r.result = nil
	return res
}

// Abort 牌局內部不一致時中止，房間轉為 finished（不計分）
func (r *Room) Abort(reason string) {
	if r.session != nil {
		r.session.Abort(reason)
	}
	if r.phase == PhaseInGame {
		r.phase = PhaseFinished
	}
	r.result = nil
}

// SetConnected 更新玩家連線狀態
func (r *Room) SetConnected(playerID string, connected bool) error {
	p := r.Member(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	p.Connected = connected
	return nil
}

// Snapshot 房間快照
func (r *Room) Snapshot() View {
	view := View{
		Code:      r.Code,
		Phase:     r.phase,
		Players:   make([]game.SeatView, 0, len(r.players)),
		Rounds:    r.rounds,
		CreatedAt: r.CreatedAt,
	}
	if host := r.Host(); host != nil {
		view.HostID = host.ID
	}
	for _, p := range r.players {
		view.Players = append(view.Players, game.SeatView{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			HandSize:   len(p.Hand),
			Score:      p.Score,
			IsHost:     p.IsHost,
			Connected:  p.Connected,
		})
	}
	return view
}

// GameView viewerID 視角的牌局快照
func (r *Room) GameView(viewerID string) (game.GameView, error) {
	if r.session == nil {
		return game.GameView{}, ErrNotInGame
	}
	return r.session.Snapshot(viewerID), nil
}

// remove 移除玩家並交接房主，回傳房間是否已空
//
// 牌局中離開交給 Session.Leave 處理手牌與輪轉
func (r *Room) remove(playerID string) (bool, error) {
	idx := r.indexOf(playerID)
	if idx < 0 {
		return false, ErrPlayerNotFound
	}
	leaver := r.players[idx]

	if r.session != nil {
		if err := r.session.Leave(playerID); err != nil {
			return false, err
		}
		r.Sync()
	}

	leaver.IsHost = false
	leaver.Hand = nil
	r.players = append(r.players[:idx:idx], r.players[idx+1:]...)
	r.promoteHost()

	r.logger.Info("玩家離開房間",
		"player_id", playerID,
		"remaining", len(r.players),
		"phase", r.phase)

	return len(r.players) == 0, nil
}

// promoteHost 最早加入的玩家成為房主
func (r *Room) promoteHost() {
	for i, p := range r.players {
		p.IsHost = i == 0
	}
}

func (r *Room) requireHost(requesterID string) error {
	if host := r.Host(); host == nil || host.ID != requesterID {
		return ErrNotHost
	}
	return nil
}

func (r *Room) indexOf(playerID string) int {
	for i, p := range r.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// idle 閒置超過 timeout 且沒有任何連線中的玩家
func (r *Room) idle(timeout time.Duration) bool {
	if time.Since(r.lastActive) < timeout {
		return false
	}
	for _, p := range r.players {
		if p.Connected {
			return false
		}
	}
	return true
}
