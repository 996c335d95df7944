package gateway

import (
	"errors"

	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
	"github.com/koopa0/system-design/14-uno-game-server/internal/room"
)

var (
	// ErrUnknownAction 不支援的動作
	ErrUnknownAction = errors.New("unknown action")
	// ErrMalformedRequest 無法解析的請求內容
	ErrMalformedRequest = errors.New("malformed request")
)

// errorCodes 錯誤到對外代碼的對照（依序比對，第一個符合的勝出）
var errorCodes = []struct {
	err  error
	code string
}{
	{game.ErrNotYourTurn, "not_your_turn"},
	{game.ErrCardNotInHand, "card_not_in_hand"},
	{game.ErrIllegalPlay, "illegal_play"},
	{game.ErrInvalidColorChoice, "invalid_color_choice"},
	{game.ErrInvalidPlayerCount, "invalid_player_count"},
	{game.ErrMustDrawFirst, "must_draw_first"},
	{game.ErrAlreadyDrawn, "already_drawn"},
	{game.ErrAwaitingColorChoice, "awaiting_color_choice"},
	{game.ErrGameOver, "game_over"},
	{game.ErrEmptyDeck, "empty_deck"},
	{card.ErrEmptyDeck, "empty_deck"},
	{card.ErrInvalidCard, "invalid_card"},
	{room.ErrRoomNotFound, "room_not_found"},
	{room.ErrRoomFull, "room_full"},
	{room.ErrRoomInGame, "room_in_game"},
	{room.ErrNotHost, "not_host"},
	{room.ErrCannotKickSelf, "cannot_kick_self"},
	{room.ErrPlayerNotFound, "player_not_found"},
	{room.ErrNotInGame, "not_in_game"},
	{room.ErrInvalidName, "invalid_name"},
	{room.ErrCodeExhausted, "create_room_failed"},
	{ErrUnknownAction, "unknown_action"},
	{ErrMalformedRequest, "bad_request"},
}

// ErrorCode 對外的穩定錯誤代碼；無法辨識的錯誤一律為 internal
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// ErrorEvent 給請求者的錯誤事件
func ErrorEvent(err error) Event {
	return Event{
		Type: EventError,
		Data: ErrorPayload{Code: ErrorCode(err), Message: err.Error()},
	}
}
