package game

import (
	"sort"
	"time"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
)

// Standing 結算排名中的一列
type Standing struct {
	Rank       int    `json:"rank"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Score      int    `json:"score"`       // 累計分數
	CardsLeft  int    `json:"cards_left"`  // 結束時剩餘手牌
	HandPoints int    `json:"hand_points"` // 剩餘手牌點數
}

// ScoreReport 一局的結算
type ScoreReport struct {
	WinnerID    string     `json:"winner_id"`
	WinnerName  string     `json:"winner_name"`
	RoundPoints int        `json:"round_points"`
	Standings   []Standing `json:"standings"`
}

// finish 有人手牌出完（或只剩一人）時結束牌局
//
// 計分：勝者加上其他所有人剩餘手牌的點數總和
func (s *Session) finish(winner *Player) {
	points := 0
	for _, p := range s.players {
		if p.ID != winner.ID {
			points += card.HandPoints(p.Hand)
		}
	}
	winner.Score += points

	s.phase = PhaseEnded
	s.winnerID = winner.ID
	s.drawn = nil
	s.clearColorChoice()
	s.report = s.buildReport(winner, points)

	s.logger.Info("牌局結束",
		"winner", winner.ID,
		"round_points", points,
		"duration", time.Since(s.startedAt))
}

// buildReport 依累計分數排名，同分以座位順序
func (s *Session) buildReport(winner *Player, points int) *ScoreReport {
	standings := make([]Standing, 0, len(s.players))
	for _, p := range s.players {
		standings = append(standings, Standing{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Score:      p.Score,
			CardsLeft:  len(p.Hand),
			HandPoints: card.HandPoints(p.Hand),
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Score > standings[j].Score
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}

	return &ScoreReport{
		WinnerID:    winner.ID,
		WinnerName:  winner.Name,
		RoundPoints: points,
		Standings:   standings,
	}
}

// Winner 勝者 ID（尚未結束時為空字串）
func (s *Session) Winner() string {
	return s.winnerID
}
