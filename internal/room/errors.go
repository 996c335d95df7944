package room

import (
	"errors"

	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
)

var (
	// ErrRoomNotFound 房間碼不存在（或房間正在拆除）
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull 房間已有 4 人
	ErrRoomFull = errors.New("room is full")
	// ErrRoomInGame 房間不在等待階段，不能加入
	ErrRoomInGame = errors.New("room is not accepting players")
	// ErrNotHost 只有房主可以執行
	ErrNotHost = errors.New("requester is not the host")
	// ErrCannotKickSelf 房主不能踢自己
	ErrCannotKickSelf = errors.New("host cannot kick themselves")
	// ErrNotInGame 房間目前沒有進行中的牌局
	ErrNotInGame = errors.New("no game in progress")
	// ErrInvalidName 玩家名稱為空或過長
	ErrInvalidName = errors.New("invalid player name")
	// ErrCodeExhausted 重試次數內產生不出未被使用的房間碼
	ErrCodeExhausted = errors.New("could not allocate a room code")

	// ErrPlayerNotFound 與牌局共用同一個錯誤，呼叫端只需比對一次
	ErrPlayerNotFound = game.ErrPlayerNotFound
)
