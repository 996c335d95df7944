package game

import (
	"testing"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPlayCard_RankEffects 點數效果與輪轉
func TestPlayCard_RankEffects(t *testing.T) {
	tests := []struct {
		name          string
		players       int
		play          card.Card
		wantCurrent   int
		wantDirection int
		validate      func(t *testing.T, s *Session)
	}{
		{
			name:          "number advances one",
			players:       4,
			play:          red3,
			wantCurrent:   1,
			wantDirection: 1,
		},
		{
			name:          "skip in four player game skips player 1",
			players:       4,
			play:          redSkip,
			wantCurrent:   2,
			wantDirection: 1,
		},
		{
			name:          "reverse in two player game keeps the turn",
			players:       2,
			play:          redReverse,
			wantCurrent:   0,
			wantDirection: -1,
		},
		{
			name:          "reverse in three player game goes backwards",
			players:       3,
			play:          redReverse,
			wantCurrent:   2,
			wantDirection: -1,
		},
		{
			name:          "draw two makes next player draw and lose the turn",
			players:       3,
			play:          redDrawTwo,
			wantCurrent:   2,
			wantDirection: 1,
			validate: func(t *testing.T, s *Session) {
				assert.Len(t, s.players[1].Hand, HandSize+2)
				assert.Equal(t, "p1", s.LastAction().VictimID)
				assert.Equal(t, 2, s.LastAction().Penalty)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hands := make([][]card.Card, tt.players)
			hands[0] = []card.Card{tt.play}
			s := newRigged(t, hands, red5)

			require.NoError(t, s.PlayCard("p0", tt.play))

			assert.Equal(t, tt.wantCurrent, s.CurrentIndex())
			assert.Equal(t, tt.wantDirection, s.Direction())
			assert.Equal(t, PhaseAwaitingPlay, s.Phase())
			assert.Equal(t, tt.play, s.TopCard())
			assert.Equal(t, card.Red, s.ActiveColor())
			assert.Len(t, s.players[0].Hand, HandSize-1)
			assert.Equal(t, card.StandardDeckSize, s.CardCount())
			if tt.validate != nil {
				tt.validate(t, s)
			}
		})
	}
}

// TestWildDrawFour_TwoPlayers A 出 +4 → B 抽 4 張，回到 A，新顏色生效
func TestWildDrawFour_TwoPlayers(t *testing.T) {
	s := newRigged(t, [][]card.Card{{wildFour}, {}}, red5)

	require.NoError(t, s.PlayCard("p0", wildFour))
	assert.Equal(t, PhaseAwaitingColorChoice, s.Phase())
	assert.Equal(t, "p0", s.ColorChooser())
	assert.Equal(t, 4, s.PendingDraw())
	assert.Len(t, s.players[1].Hand, HandSize, "penalty waits for the color")

	// 等待選色時其他動作都不行
	assert.ErrorIs(t, s.DrawCard("p1"), ErrNotYourTurn)
	assert.ErrorIs(t, s.DrawCard("p0"), ErrAwaitingColorChoice)
	assert.ErrorIs(t, s.ChooseColor("p1", card.Green), ErrInvalidColorChoice)

	require.NoError(t, s.ChooseColor("p0", card.Green))

	assert.Len(t, s.players[1].Hand, HandSize+4)
	assert.Equal(t, 0, s.CurrentIndex())
	assert.Equal(t, card.Green, s.ActiveColor())
	assert.Equal(t, PhaseAwaitingPlay, s.Phase())
	assert.Equal(t, 0, s.PendingDraw())
	assert.Empty(t, s.ColorChooser())
	assert.Equal(t, card.StandardDeckSize, s.CardCount())
}

func TestWild_ChooseColorAdvances(t *testing.T) {
	s := newRigged(t, [][]card.Card{{wild}, {}, {}}, red5)

	require.NoError(t, s.PlayCard("p0", wild))
	assert.Equal(t, 0, s.CurrentIndex())
	require.NoError(t, s.ChooseColor("p0", card.Blue))

	assert.Equal(t, 1, s.CurrentIndex())
	assert.Equal(t, card.Blue, s.ActiveColor())
	assert.Equal(t, wild, s.TopCard(), "wild keeps its own color on the pile")
	assert.True(t, card.IsLegalPlay(blue9, s.TopCard(), s.ActiveColor()))
	assert.False(t, card.IsLegalPlay(red3, s.TopCard(), s.ActiveColor()))
}

func TestChooseColor_Errors(t *testing.T) {
	s := newRigged(t, [][]card.Card{{wild}, {}}, red5)

	assert.ErrorIs(t, s.ChooseColor("p0", card.Blue), ErrInvalidColorChoice, "no wild played yet")

	require.NoError(t, s.PlayCard("p0", wild))
	before := s.Snapshot("p0")

	assert.ErrorIs(t, s.ChooseColor("p0", card.Wild), ErrInvalidColorChoice)
	assert.ErrorIs(t, s.ChooseColor("p0", "purple"), ErrInvalidColorChoice)
	assert.ErrorIs(t, s.ChooseColor("p1", card.Blue), ErrInvalidColorChoice)
	assert.ErrorIs(t, s.PlayCard("p0", s.players[0].Hand[0]), ErrAwaitingColorChoice)

	assert.Equal(t, before, s.Snapshot("p0"))
}

// TestPlayCard_ValidationLeavesStateUnchanged 驗證錯誤不改動狀態
func TestPlayCard_ValidationLeavesStateUnchanged(t *testing.T) {
	s := newRigged(t, [][]card.Card{{blue9, red3}, {red9}}, red5)
	before := s.Snapshot("p0")

	tests := []struct {
		name     string
		playerID string
		card     card.Card
		wantErr  error
	}{
		{"not your turn", "p1", red9, ErrNotYourTurn},
		{"unknown player", "ghost", red3, ErrPlayerNotFound},
		{"card not in hand", "p0", green4, ErrCardNotInHand},
		{"illegal play", "p0", blue9, ErrIllegalPlay},
		{"invalid card payload", "p0", card.Card{Color: card.Red, Rank: card.WildCard}, ErrCardNotInHand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.PlayCard(tt.playerID, tt.card)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, s.Snapshot("p0"))
			assert.Equal(t, card.StandardDeckSize, s.CardCount())
		})
	}
}

// TestDrawCard_UnplayableRequiresSkip 抽到不能出的牌必須明確跳過
func TestDrawCard_UnplayableRequiresSkip(t *testing.T) {
	s := newRigged(t, [][]card.Card{{red3}, {}}, red5, blue9)

	assert.ErrorIs(t, s.SkipTurn("p0"), ErrMustDrawFirst)

	require.NoError(t, s.DrawCard("p0"))
	assert.Equal(t, PhaseAwaitingDrawAck, s.Phase())
	assert.Len(t, s.players[0].Hand, HandSize+1)
	drawn, ok := s.DrawnCard()
	require.True(t, ok)
	assert.Equal(t, blue9, drawn)
	assert.Equal(t, 0, s.CurrentIndex(), "no auto-advance")

	assert.ErrorIs(t, s.DrawCard("p0"), ErrAlreadyDrawn)
	assert.ErrorIs(t, s.PlayCard("p0", blue9), ErrIllegalPlay)
	assert.ErrorIs(t, s.PlayCard("p0", red3), ErrIllegalPlay, "only the drawn card may be played")
	assert.ErrorIs(t, s.SkipTurn("p1"), ErrNotYourTurn)

	require.NoError(t, s.SkipTurn("p0"))
	assert.Equal(t, 1, s.CurrentIndex())
	assert.Equal(t, PhaseAwaitingPlay, s.Phase())
	_, ok = s.DrawnCard()
	assert.False(t, ok)
	assert.Equal(t, card.StandardDeckSize, s.CardCount())
}

func TestDrawCard_PlayableMayBePlayed(t *testing.T) {
	s := newRigged(t, [][]card.Card{{}, {}, {}}, red5, red9)

	require.NoError(t, s.DrawCard("p0"))
	view := s.Snapshot("p0")
	require.NotNil(t, view.DrawnCard)
	assert.Equal(t, red9, *view.DrawnCard)
	assert.Nil(t, s.Snapshot("p1").DrawnCard)

	require.NoError(t, s.PlayCard("p0", red9))
	assert.Equal(t, 1, s.CurrentIndex())
	assert.Equal(t, red9, s.TopCard())
	assert.Len(t, s.players[0].Hand, HandSize)
}

// TestPlayCard_LastCardEndsGame 出完最後一張 → 結束並計分
func TestPlayCard_LastCardEndsGame(t *testing.T) {
	s := newRigged(t, [][]card.Card{{}, {}, {}}, red5)
	setHand(t, s, 0, red3)
	setHand(t, s, 1, redSkip, blue9)       // 20 + 9
	setHand(t, s, 2, wild, green4, yellow0) // 50 + 4 + 0

	require.NoError(t, s.PlayCard("p0", red3))

	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Equal(t, "p0", s.Winner())
	report := s.Report()
	require.NotNil(t, report)
	assert.Equal(t, "p0", report.WinnerID)
	assert.Equal(t, 83, report.RoundPoints)
	assert.Equal(t, 83, s.players[0].Score)
	require.Len(t, report.Standings, 3)
	assert.Equal(t, "p0", report.Standings[0].PlayerID)
	assert.Equal(t, 1, report.Standings[0].Rank)
	assert.Equal(t, card.StandardDeckSize, s.CardCount())

	assert.ErrorIs(t, s.PlayCard("p1", blue9), ErrGameOver)
	assert.ErrorIs(t, s.DrawCard("p1"), ErrGameOver)
	assert.ErrorIs(t, s.ChooseColor("p0", card.Red), ErrGameOver)
}

func TestPlayCard_FinishingDrawTwoStillPenalizes(t *testing.T) {
	s := newRigged(t, [][]card.Card{{}, {}}, red5)
	setHand(t, s, 0, redDrawTwo)
	setHand(t, s, 1, blue5)

	require.NoError(t, s.PlayCard("p0", redDrawTwo))

	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Len(t, s.players[1].Hand, 3)
	assert.Equal(t, card.HandPoints(s.players[1].Hand), s.Report().RoundPoints)
	assert.Equal(t, card.StandardDeckSize, s.CardCount())
}

func TestPlayCard_FinishingWildSkipsColorChoice(t *testing.T) {
	s := newRigged(t, [][]card.Card{{}, {}}, red5)
	setHand(t, s, 0, wildFour)
	setHand(t, s, 1, blue5)

	require.NoError(t, s.PlayCard("p0", wildFour))

	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Empty(t, s.ColorChooser())
	assert.Len(t, s.players[1].Hand, 5)
	assert.Equal(t, card.StandardDeckSize, s.CardCount())
}

// TestDrawCard_RecyclesDiscardPile 牌堆抽完時把棄牌堆洗回
func TestDrawCard_RecyclesDiscardPile(t *testing.T) {
	s := newRigged(t, [][]card.Card{{}, {}}, red5)

	top := s.TopCard()
	rest := s.deck.Cards()
	s.deck = card.NewDeck(nil)
	s.discard = card.NewDeck(nil)
	s.discard.Push(rest...)
	s.discard.Push(top)
	require.Equal(t, card.StandardDeckSize, s.CardCount())

	require.NoError(t, s.DrawCard("p0"))

	assert.Equal(t, 1, s.DiscardSize())
	assert.Equal(t, top, s.TopCard())
	assert.Equal(t, len(rest)-1, s.DeckSize())
	assert.Equal(t, card.StandardDeckSize, s.CardCount())
}

// TestDrawCard_EmptyDeck 沒有牌可抽時回報 ErrEmptyDeck 且不改狀態
func TestDrawCard_EmptyDeck(t *testing.T) {
	s := newRigged(t, [][]card.Card{{}, {}}, red5)
	s.players[1].Hand = append(s.players[1].Hand, s.deck.Cards()...)
	s.deck = card.NewDeck(nil)
	require.Equal(t, card.StandardDeckSize, s.CardCount())

	before := s.Snapshot("p0")
	assert.ErrorIs(t, s.DrawCard("p0"), ErrEmptyDeck)
	assert.Equal(t, before, s.Snapshot("p0"))
}

func TestPlayCard_DrawTwoWithoutCapacity(t *testing.T) {
	s := newRigged(t, [][]card.Card{{redDrawTwo}, {}}, red5)
	s.players[1].Hand = append(s.players[1].Hand, s.deck.Cards()...)
	s.deck = card.NewDeck(nil)

	before := s.Snapshot("p0")
	assert.ErrorIs(t, s.PlayCard("p0", redDrawTwo), ErrEmptyDeck)
	assert.Equal(t, before, s.Snapshot("p0"))
}
