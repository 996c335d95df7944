package game

import (
	"time"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
)

// Player 玩家
//
// 由房間擁有；牌局只透過座位索引引用，不擁有玩家
type Player struct {
	ID        string      `json:"player_id"`
	Name      string      `json:"player_name"`
	IsHost    bool        `json:"is_host"`
	Score     int         `json:"score"` // 跨局累計
	Connected bool        `json:"connected"`
	JoinedAt  time.Time   `json:"joined_at"`
	Hand      []card.Card `json:"-"` // 手牌永遠不直接序列化，走 Snapshot 做遮蔽
}

// NewPlayer 建立玩家
func NewPlayer(id, name string) *Player {
	return &Player{
		ID:       id,
		Name:     name,
		JoinedAt: time.Now(),
	}
}

// handIndex 以值相等找出手牌位置
func handIndex(hand []card.Card, c card.Card) int {
	for i, h := range hand {
		if h == c {
			return i
		}
	}
	return -1
}

// removeAt 移除手牌中的一張
func removeAt(hand []card.Card, i int) []card.Card {
	out := make([]card.Card, 0, len(hand)-1)
	out = append(out, hand[:i]...)
	return append(out, hand[i+1:]...)
}
