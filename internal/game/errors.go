package game

import "errors"

// 錯誤定義
//
// 分類（對應回應給誰）：
//   - 驗證錯誤：ErrNotYourTurn / ErrCardNotInHand / ErrIllegalPlay / ErrInvalidColorChoice /
//     ErrInvalidPlayerCount / ErrMustDrawFirst / ErrAlreadyDrawn / ErrAwaitingColorChoice
//     → 只回給發起者，牌局狀態不變
//   - ErrEmptyDeck：在固定 108 張的前提下理論上不會發生，發生即視為內部不一致，整局中止
var (
	ErrNotYourTurn         = errors.New("not your turn")
	ErrCardNotInHand       = errors.New("card not in hand")
	ErrIllegalPlay         = errors.New("illegal play")
	ErrInvalidColorChoice  = errors.New("invalid color choice")
	ErrInvalidPlayerCount  = errors.New("invalid player count")
	ErrMustDrawFirst       = errors.New("must draw before skipping")
	ErrAlreadyDrawn        = errors.New("already drew this turn")
	ErrAwaitingColorChoice = errors.New("waiting for color choice")
	ErrGameOver            = errors.New("game is over")
	ErrPlayerNotFound      = errors.New("player not in game")
	ErrEmptyDeck           = errors.New("no cards left to draw")
)
