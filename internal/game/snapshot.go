package game

import "github.com/koopa0/system-design/14-uno-game-server/internal/card"

// SeatView 其他玩家可見的座位資訊（只有張數）
type SeatView struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	HandSize   int    `json:"hand_size"`
	Score      int    `json:"score"`
	IsHost     bool   `json:"is_host"`
	Connected  bool   `json:"connected"`
}

// GameView 某位玩家視角的牌局快照
//
// 遮蔽規則：只有 viewer 自己的手牌完整出現，其他人只給張數
type GameView struct {
	Phase           Phase        `json:"phase"`
	DeckSize        int          `json:"deck_size"`
	DiscardSize     int          `json:"discard_size"`
	DiscardTop      card.Card    `json:"discard_top"`
	ActiveColor     card.Color   `json:"active_color"`
	Direction       int          `json:"direction"`
	CurrentIndex    int          `json:"current_player_index"`
	CurrentPlayerID string       `json:"current_player_id"`
	PendingDraw     int          `json:"pending_draw"`
	ColorChooserID  string       `json:"color_chooser_id,omitempty"`
	Seats           []SeatView   `json:"players"`
	Hand            []card.Card  `json:"hand"`
	DrawnCard       *card.Card   `json:"drawn_card,omitempty"`
	LastAction      *Action      `json:"last_action,omitempty"`
	Report          *ScoreReport `json:"report,omitempty"`
}

// Snapshot 產生 viewerID 視角的快照；viewerID 不在牌局中時不含任何手牌
func (s *Session) Snapshot(viewerID string) GameView {
	view := GameView{
		Phase:          s.phase,
		DeckSize:       s.deck.Len(),
		DiscardSize:    s.discard.Len(),
		DiscardTop:     s.topCard(),
		ActiveColor:    s.activeColor,
		Direction:      s.direction,
		CurrentIndex:   s.current,
		PendingDraw:    s.pendingDraw,
		ColorChooserID: s.chooser,
		Seats:          make([]SeatView, 0, len(s.players)),
		Hand:           []card.Card{},
		LastAction:     s.lastAction,
		Report:         s.report,
	}
	if cur := s.CurrentPlayer(); cur != nil {
		view.CurrentPlayerID = cur.ID
	}

	for _, p := range s.players {
		view.Seats = append(view.Seats, SeatView{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			HandSize:   len(p.Hand),
			Score:      p.Score,
			IsHost:     p.IsHost,
			Connected:  p.Connected,
		})
		if p.ID == viewerID {
			view.Hand = append(view.Hand, p.Hand...)
		}
	}

	if s.drawn != nil && view.CurrentPlayerID == viewerID {
		drawn := *s.drawn
		view.DrawnCard = &drawn
	}
	return view
}
