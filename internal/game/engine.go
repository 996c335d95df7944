package game

import (
	"fmt"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
)

// 回合規則引擎
//
// 點數效果表（出牌時或選色後套用）：
//
//	數字牌        → 下一位
//	Skip         → 跳過一位
//	Reverse      → 方向反轉；兩人局等同 Skip
//	DrawTwo      → 下一位抽 2 張並失去回合
//	Wild         → 下一位（指定色已選）
//	WildDrawFour → 下一位抽 4 張並失去回合（指定色已選）
//
// 抽牌規則（明確規定，不自動跳過）：
//   - 每回合最多抽一張，抽完進入 awaiting_draw_ack
//   - 此時只能打出剛抽到的那張（且必須合法），或呼叫 SkipTurn 結束回合
//   - 抽到不能出的牌也必須明確 SkipTurn

// PlayCard 出牌
func (s *Session) PlayCard(playerID string, c card.Card) error {
	p, err := s.turnOf(playerID)
	if err != nil {
		return err
	}
	if s.phase == PhaseAwaitingColorChoice {
		return ErrAwaitingColorChoice
	}

	idx := handIndex(p.Hand, c)
	if idx < 0 {
		return ErrCardNotInHand
	}
	if s.phase == PhaseAwaitingDrawAck && (s.drawn == nil || *s.drawn != c) {
		return fmt.Errorf("%w: only the drawn card may be played", ErrIllegalPlay)
	}
	if !c.IsWild() && !card.IsLegalPlay(c, s.topCard(), s.activeColor) {
		return ErrIllegalPlay
	}

	finishing := len(p.Hand) == 1
	penalty := 0
	switch {
	case c.Rank == card.DrawTwo:
		penalty = 2
	case c.Rank == card.WildDrawFour && finishing:
		penalty = 4
	}
	// 出牌後這張會成為新的頂端，舊頂端以下都能回收
	if penalty > s.deck.Len()+s.discard.Len() {
		return ErrEmptyDeck
	}

	// 以下開始套用，不再失敗
	p.Hand = removeAt(p.Hand, idx)
	s.discard.Push(c)
	s.drawn = nil
	s.lastAction = &Action{Type: ActionPlay, PlayerID: p.ID, Card: &c}

	if finishing {
		if !c.IsWild() {
			s.activeColor = c.Color
		}
		if penalty > 0 {
			victim := s.players[s.peek(1)]
			s.mustDraw(victim, penalty)
			s.lastAction.VictimID = victim.ID
			s.lastAction.Penalty = penalty
		}
		s.finish(p)
		return nil
	}

	if c.IsWild() {
		s.phase = PhaseAwaitingColorChoice
		s.chooser = p.ID
		s.deferred = c.Rank
		if c.Rank == card.WildDrawFour {
			s.pendingDraw = 4
		}
		return nil
	}

	s.activeColor = c.Color
	s.phase = PhaseAwaitingPlay
	s.resolve(c.Rank, penalty)
	return nil
}

// ChooseColor 萬用牌選色
//
// 只在 awaiting_color_choice、且只有剛出萬用牌的玩家可以選；不能選 Wild
func (s *Session) ChooseColor(playerID string, color card.Color) error {
	if s.phase == PhaseEnded {
		return ErrGameOver
	}
	if s.phase != PhaseAwaitingColorChoice || s.chooser != playerID {
		return ErrInvalidColorChoice
	}
	if !color.Chosen() {
		return fmt.Errorf("%w: %q", ErrInvalidColorChoice, color)
	}
	if s.pendingDraw > s.deck.Len()+s.discard.Len()-1 {
		return ErrEmptyDeck
	}

	s.activeColor = color
	s.phase = PhaseAwaitingPlay
	s.lastAction = &Action{Type: ActionChooseColor, PlayerID: playerID, Color: color}

	if s.starter {
		s.clearColorChoice()
		return nil
	}

	rank, penalty := s.deferred, s.pendingDraw
	s.clearColorChoice()
	s.resolve(rank, penalty)
	return nil
}

// DrawCard 抽一張牌
func (s *Session) DrawCard(playerID string) error {
	p, err := s.turnOf(playerID)
	if err != nil {
		return err
	}
	switch s.phase {
	case PhaseAwaitingColorChoice:
		return ErrAwaitingColorChoice
	case PhaseAwaitingDrawAck:
		return ErrAlreadyDrawn
	}
	if s.deck.Len()+s.discard.Len()-1 < 1 {
		return ErrEmptyDeck
	}

	s.mustDraw(p, 1)
	drawn := p.Hand[len(p.Hand)-1]
	s.drawn = &drawn
	s.phase = PhaseAwaitingDrawAck
	s.lastAction = &Action{Type: ActionDraw, PlayerID: p.ID, Penalty: 1}
	return nil
}

// SkipTurn 抽牌後放棄出牌
func (s *Session) SkipTurn(playerID string) error {
	p, err := s.turnOf(playerID)
	if err != nil {
		return err
	}
	if s.phase != PhaseAwaitingDrawAck {
		if s.phase == PhaseAwaitingColorChoice {
			return ErrAwaitingColorChoice
		}
		return ErrMustDrawFirst
	}

	s.drawn = nil
	s.phase = PhaseAwaitingPlay
	s.lastAction = &Action{Type: ActionSkip, PlayerID: p.ID}
	s.advance(1)
	return nil
}

// DrawnCard 本回合抽到、尚未處理的牌
func (s *Session) DrawnCard() (card.Card, bool) {
	if s.drawn == nil {
		return card.Card{}, false
	}
	return *s.drawn, true
}

// turnOf 驗證輪到此玩家
func (s *Session) turnOf(playerID string) (*Player, error) {
	if s.phase == PhaseEnded {
		return nil, ErrGameOver
	}
	idx := s.indexOf(playerID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}
	if idx != s.current {
		return nil, ErrNotYourTurn
	}
	return s.players[idx], nil
}

// resolve 套用點數效果並輪轉
func (s *Session) resolve(rank card.Rank, penalty int) {
	switch rank {
	case card.Skip:
		s.advance(2)
	case card.Reverse:
		s.direction = -s.direction
		if len(s.players) == 2 {
			s.advance(2)
		} else {
			s.advance(1)
		}
	case card.DrawTwo, card.WildDrawFour:
		victim := s.players[s.peek(1)]
		s.mustDraw(victim, penalty)
		if s.lastAction != nil {
			s.lastAction.VictimID = victim.ID
			s.lastAction.Penalty = penalty
		}
		s.advance(2)
	default:
		s.advance(1)
	}
}

// peek 往目前方向數 k 個座位
func (s *Session) peek(k int) int {
	return mod(s.current+k*s.direction, len(s.players))
}

func (s *Session) advance(k int) {
	s.current = s.peek(k)
}

// mustDraw 呼叫前已確認牌量足夠
func (s *Session) mustDraw(p *Player, n int) {
	if err := s.drawInto(p, n); err != nil {
		// 前置檢查已保證可抽，走到這裡代表守恆被破壞
		panic(fmt.Sprintf("uno: draw after capacity check: %v", err))
	}
}

// drawInto 抽 n 張進手牌，牌堆空時把棄牌堆（除頂端外）洗回
func (s *Session) drawInto(p *Player, n int) error {
	for i := 0; i < n; i++ {
		if s.deck.Len() == 0 {
			s.recycle()
		}
		c, err := s.deck.Draw()
		if err != nil {
			return ErrEmptyDeck
		}
		p.Hand = append(p.Hand, c)
	}
	return nil
}

// recycle 棄牌堆洗回牌堆
func (s *Session) recycle() {
	rest := s.discard.TakeAllButTop()
	if len(rest) == 0 {
		return
	}
	s.deck.Push(rest...)
	s.deck.Shuffle(s.rng)
	s.logger.Debug("棄牌堆洗回牌堆", "cards", len(rest))
}
