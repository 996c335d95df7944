package game

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/stretchr/testify/require"
)

var (
	red5       = card.Card{Color: card.Red, Rank: card.Five}
	red3       = card.Card{Color: card.Red, Rank: card.Three}
	red9       = card.Card{Color: card.Red, Rank: card.Nine}
	blue9      = card.Card{Color: card.Blue, Rank: card.Nine}
	blue5      = card.Card{Color: card.Blue, Rank: card.Five}
	green4     = card.Card{Color: card.Green, Rank: card.Four}
	yellow7    = card.Card{Color: card.Yellow, Rank: card.Seven}
	yellow0    = card.Card{Color: card.Yellow, Rank: card.Zero}
	redSkip    = card.Card{Color: card.Red, Rank: card.Skip}
	redReverse = card.Card{Color: card.Red, Rank: card.Reverse}
	redDrawTwo = card.Card{Color: card.Red, Rank: card.DrawTwo}
	wild       = card.Card{Color: card.Wild, Rank: card.WildCard}
	wildFour   = card.Card{Color: card.Wild, Rank: card.WildDrawFour}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// takeCard 從牌池移除一張
func takeCard(t *testing.T, pool []card.Card, c card.Card) []card.Card {
	t.Helper()
	for i, p := range pool {
		if p == c {
			return append(pool[:i:i], pool[i+1:]...)
		}
	}
	require.FailNow(t, "card not available in pool", "%s", c)
	return nil
}

// riggedDeck 排好發牌順序的完整 108 張牌堆
//
// hands[i] 是座位 i 想要的起手牌（不足 7 張由牌池補），接著是起始牌，再來是 next 依序被抽到
func riggedDeck(t *testing.T, hands [][]card.Card, starter card.Card, next ...card.Card) *card.Deck {
	t.Helper()

	pool := card.StandardCards()
	for _, hand := range hands {
		require.LessOrEqual(t, len(hand), HandSize)
		for _, c := range hand {
			pool = takeCard(t, pool, c)
		}
	}
	pool = takeCard(t, pool, starter)
	for _, c := range next {
		pool = takeCard(t, pool, c)
	}

	// 補牌從牌池尾端（萬用牌之前）取，避免補到萬用牌
	full := make([][]card.Card, len(hands))
	for i, hand := range hands {
		full[i] = append([]card.Card(nil), hand...)
		for len(full[i]) < HandSize {
			filler := pool[len(pool)-9]
			pool = takeCard(t, pool, filler)
			full[i] = append(full[i], filler)
		}
	}

	order := make([]card.Card, 0, card.StandardDeckSize)
	for k := 0; k < HandSize; k++ {
		for i := range full {
			order = append(order, full[i][k])
		}
	}
	order = append(order, starter)
	order = append(order, next...)
	order = append(order, pool...)

	require.Len(t, order, card.StandardDeckSize)
	return card.NewDeck(order)
}

func testPlayers(n int) []*Player {
	players := make([]*Player, n)
	for i := range players {
		players[i] = NewPlayer(fmt.Sprintf("p%d", i), fmt.Sprintf("玩家%d", i))
	}
	players[0].IsHost = true
	return players
}

// newRigged 以指定牌堆開局
func newRigged(t *testing.T, hands [][]card.Card, starter card.Card, next ...card.Card) *Session {
	t.Helper()

	s, err := NewSession(
		testPlayers(len(hands)),
		WithDeck(riggedDeck(t, hands, starter, next...)),
		WithRand(rand.New(rand.NewSource(1))),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)
	require.Equal(t, card.StandardDeckSize, s.CardCount())
	return s
}

// setHand 把座位 idx 的手牌換成指定的牌（從牌堆換，維持 108 張）
func setHand(t *testing.T, s *Session, idx int, cards ...card.Card) {
	t.Helper()

	pool := append(s.deck.Cards(), s.players[idx].Hand...)
	for _, c := range cards {
		pool = takeCard(t, pool, c)
	}
	s.deck = card.NewDeck(pool)
	s.players[idx].Hand = append([]card.Card(nil), cards...)
	require.Equal(t, card.StandardDeckSize, s.CardCount())
}
