// Package game 實現 UNO 的回合狀態機與牌局聚合。
//
// 系統設計問題：
//
//	如何讓多人同時操作的牌局維持權威、確定、不會半途失敗的狀態？
//
// 核心挑戰：
//  1. 回合輪轉：方向反轉、跳過、罰抽都會改變下一位玩家
//  2. 合法性：客戶端送來的牌一律重新比對伺服器手牌
//  3. 原子性：任何錯誤都不能留下改到一半的狀態
//  4. 守恆：牌堆 + 棄牌堆 + 所有手牌 = 108 張，任何時刻成立
//
// 設計方案：
//
//	✅ 有限狀態機 - awaiting_play / awaiting_color_choice / awaiting_draw_ack / ended
//	✅ 先驗證後套用 - 所有前置條件（包含罰抽是否有牌可抽）檢查完才動狀態
//	✅ 無鎖 - Session 本身不加鎖，由房間的執行通道（turn lane）保證一次一個操作
package game

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
)

const (
	// MinPlayers 開局最少人數
	MinPlayers = 2
	// MaxPlayers 開局最多人數
	MaxPlayers = 4
	// HandSize 每人起手張數
	HandSize = 7
)

// Phase 回合階段
//
// 狀態轉換：
//
//	awaiting_play ──出萬用牌──→ awaiting_color_choice ──選色──→ awaiting_play
//	awaiting_play ──抽牌────→ awaiting_draw_ack ──出抽到的牌 / 跳過──→ awaiting_play
//	任何狀態 ──有人手牌出完 / 只剩一人 / 中止──→ ended
type Phase string

const (
	PhaseAwaitingPlay        Phase = "awaiting_play"
	PhaseAwaitingColorChoice Phase = "awaiting_color_choice"
	PhaseAwaitingDrawAck     Phase = "awaiting_draw_ack"
	PhaseEnded               Phase = "ended"
)

// ActionType 最近一次動作的類型（給客戶端做動畫與提示）
type ActionType string

const (
	ActionStart       ActionType = "start"
	ActionPlay        ActionType = "play"
	ActionChooseColor ActionType = "choose_color"
	ActionDraw        ActionType = "draw"
	ActionSkip        ActionType = "skip"
	ActionLeave       ActionType = "leave"
)

// Action 最近一次動作
//
// 抽牌時不帶牌面，避免洩漏給其他玩家
type Action struct {
	Type     ActionType `json:"type"`
	PlayerID string     `json:"player_id"`
	Card     *card.Card `json:"card,omitempty"`
	Color    card.Color `json:"color,omitempty"`
	VictimID string     `json:"victim_id,omitempty"` // 被罰抽的玩家
	Penalty  int        `json:"penalty,omitempty"`   // 罰抽張數
}

// Session 一局 UNO 的權威狀態
//
// 只在房間 in_game 期間存在，所有方法都必須在房間的執行通道內呼叫
type Session struct {
	players     []*Player // 與房間共用指標，順序即座位
	deck        *card.Deck
	discard     *card.Deck
	current     int
	direction   int // +1 順時針，-1 逆時針
	pendingDraw int // 萬用 +4 等待選色時暫存的罰抽張數
	activeColor card.Color
	phase       Phase

	chooser  string     // 需要選色的玩家
	deferred card.Rank  // 等選色後才生效的點數效果
	starter  bool       // 起始翻到 Wild：選色後不輪轉
	drawn    *card.Card // 本回合抽到的牌

	winnerID   string
	report     *ScoreReport
	abortCause string
	lastAction *Action
	startedAt  time.Time

	rng    *rand.Rand
	logger *slog.Logger
}

// Option 牌局選項
type Option func(*Session)

// WithRand 指定亂數來源（測試用固定種子）
func WithRand(r *rand.Rand) Option {
	return func(s *Session) {
		s.rng = r
	}
}

// WithDeck 指定牌堆（不再洗牌），deck 頂端即第一張發出的牌
func WithDeck(d *card.Deck) Option {
	return func(s *Session) {
		s.deck = d
	}
}

// WithLogger 指定日誌
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession 開局
//
// 流程：
//  1. 檢查人數 2-4
//  2. 建立並洗牌（除非指定了牌堆）
//  3. 依加入順序輪流發 7 張
//  4. 翻起始牌並處理起始功能牌
func NewSession(players []*Player, opts ...Option) (*Session, error) {
	if len(players) < MinPlayers || len(players) > MaxPlayers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlayerCount, len(players))
	}

	s := &Session{
		players:   append([]*Player(nil), players...),
		discard:   card.NewDeck(nil),
		direction: 1,
		phase:     PhaseAwaitingPlay,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.deck == nil {
		s.deck = card.NewStandardDeck()
		s.deck.Shuffle(s.rng)
	}

	for _, p := range s.players {
		p.Hand = make([]card.Card, 0, HandSize)
	}
	for i := 0; i < HandSize; i++ {
		for _, p := range s.players {
			c, err := s.deck.Draw()
			if err != nil {
				return nil, fmt.Errorf("deal: %w", ErrEmptyDeck)
			}
			p.Hand = append(p.Hand, c)
		}
	}

	if err := s.flipStarter(); err != nil {
		return nil, err
	}

	s.logger.Debug("牌局開始",
		"players", len(s.players),
		"starter", s.topCard().String(),
		"current", s.current,
		"phase", s.phase)

	return s, nil
}

// flipStarter 翻起始牌
//
// 起始牌處理：
//   - WildDrawFour：放回牌堆底部，重新翻
//   - Wild：由房主（座位 0）立即選色，選完仍由座位 0 開始
//   - Skip：座位 0 被跳過
//   - Reverse：方向反轉，座位 0 仍先出（兩人局等同 Skip）
//   - DrawTwo：座位 0 抽兩張並被跳過
func (s *Session) flipStarter() error {
	for {
		c, err := s.deck.Draw()
		if err != nil {
			return fmt.Errorf("flip starter: %w", ErrEmptyDeck)
		}
		if c.Rank == card.WildDrawFour {
			s.deck.InsertAt(0, c)
			continue
		}

		s.discard.Push(c)
		s.activeColor = c.Color
		s.lastAction = &Action{Type: ActionStart, Card: &c}

		switch c.Rank {
		case card.WildCard:
			s.phase = PhaseAwaitingColorChoice
			s.chooser = s.hostID()
			s.deferred = card.WildCard
			s.starter = true
		case card.Skip:
			s.advance(1)
		case card.Reverse:
			s.direction = -1
			if len(s.players) == 2 {
				s.current = 1
			}
		case card.DrawTwo:
			if err := s.drawInto(s.players[0], 2); err != nil {
				return err
			}
			s.lastAction.VictimID = s.players[0].ID
			s.lastAction.Penalty = 2
			s.advance(1)
		}
		return nil
	}
}

// hostID 房主的 ID；沒有標記時退回座位 0
func (s *Session) hostID() string {
	for _, p := range s.players {
		if p.IsHost {
			return p.ID
		}
	}
	return s.players[0].ID
}

// Phase 目前階段
func (s *Session) Phase() Phase {
	return s.phase
}

// CurrentPlayer 目前輪到的玩家
func (s *Session) CurrentPlayer() *Player {
	if len(s.players) == 0 {
		return nil
	}
	return s.players[s.current]
}

// CurrentIndex 目前輪到的座位
func (s *Session) CurrentIndex() int {
	return s.current
}

// Direction 出牌方向
func (s *Session) Direction() int {
	return s.direction
}

// ActiveColor 目前指定色
func (s *Session) ActiveColor() card.Color {
	return s.activeColor
}

// PendingDraw 等待選色時暫存的罰抽張數
func (s *Session) PendingDraw() int {
	return s.pendingDraw
}

// ColorChooser 需要選色的玩家 ID（沒有時為空字串）
func (s *Session) ColorChooser() string {
	return s.chooser
}

// TopCard 棄牌堆頂端
func (s *Session) TopCard() card.Card {
	return s.topCard()
}

// DeckSize 牌堆剩餘張數
func (s *Session) DeckSize() int {
	return s.deck.Len()
}

// DiscardSize 棄牌堆張數
func (s *Session) DiscardSize() int {
	return s.discard.Len()
}

// Players 座位順序的玩家
func (s *Session) Players() []*Player {
	return append([]*Player(nil), s.players...)
}

// LastAction 最近一次動作
func (s *Session) LastAction() *Action {
	return s.lastAction
}

// Report 結算結果（尚未結束時為 nil）
func (s *Session) Report() *ScoreReport {
	return s.report
}

// Aborted 是否因內部錯誤中止，以及原因
func (s *Session) Aborted() (bool, string) {
	return s.abortCause != "", s.abortCause
}

// CardCount 全部牌數（牌堆 + 棄牌堆 + 手牌），守恆檢查用
func (s *Session) CardCount() int {
	total := s.deck.Len() + s.discard.Len()
	for _, p := range s.players {
		total += len(p.Hand)
	}
	return total
}

// Leave 牌局中離開
//
// 處理方式：
//   - 手牌逐張隨機插回牌堆（維持 108 張守恆）
//   - 座位索引重新對齊；離開的是當前玩家時，輪到同方向的下一位
//   - 離開者正在等選色時，隨機決定顏色，暫存的罰抽取消
//   - 只剩一人時直接結束，剩下的人獲勝
func (s *Session) Leave(playerID string) error {
	idx := s.indexOf(playerID)
	if idx < 0 {
		return ErrPlayerNotFound
	}
	leaver := s.players[idx]

	for _, c := range leaver.Hand {
		s.deck.InsertAt(s.rng.Intn(s.deck.Len()+1), c)
	}
	leaver.Hand = nil

	s.players = append(s.players[:idx:idx], s.players[idx+1:]...)
	n := len(s.players)

	if s.phase == PhaseEnded {
		if s.current >= n {
			s.current = 0
		}
		return nil
	}

	wasCurrent := idx == s.current
	s.lastAction = &Action{Type: ActionLeave, PlayerID: playerID}

	if s.chooser == playerID {
		s.activeColor = card.Colors[s.rng.Intn(len(card.Colors))]
		s.lastAction.Color = s.activeColor
		s.clearColorChoice()
	}

	switch {
	case wasCurrent:
		s.drawn = nil
		s.phase = PhaseAwaitingPlay
		if s.direction > 0 {
			s.current = idx % n
		} else {
			s.current = mod(idx-1, n)
		}
	case idx < s.current:
		s.current--
	}

	if n == 1 {
		s.current = 0
		s.finish(s.players[0])
	}
	return nil
}

// Abort 內部不一致時中止牌局（不計分）
func (s *Session) Abort(reason string) {
	s.phase = PhaseEnded
	s.abortCause = reason
	s.clearColorChoice()
	s.drawn = nil
	s.logger.Error("牌局中止", "reason", reason, "card_count", s.CardCount())
}

func (s *Session) topCard() card.Card {
	c, _ := s.discard.Top()
	return c
}

func (s *Session) indexOf(playerID string) int {
	for i, p := range s.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) clearColorChoice() {
	s.chooser = ""
	s.deferred = ""
	s.pendingDraw = 0
	s.starter = false
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
