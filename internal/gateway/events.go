package gateway

import (
	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
)

// 事件名稱（對外協定）
const (
	EventRoomUpdated = "room_updated" // 廣播：成員、房主、階段
	EventRoomClosed  = "room_closed"  // 廣播：房間已拆除
	EventGameState   = "game_state"   // 個別：該玩家視角的牌局快照
	EventYourTurn    = "your_turn"    // 個別：輪到你了
	EventChooseColor = "choose_color" // 個別：請選色
	EventGameOver    = "game_over"    // 廣播：勝者與排名
	EventGameAborted = "game_aborted" // 廣播：牌局因內部錯誤中止
	EventKicked      = "kicked"       // 個別：你被踢出房間
	EventError       = "error"        // 個別：請求失敗
	EventPong        = "pong"         // 個別：心跳回應
)

// Event 對外事件
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// ErrorPayload 錯誤事件內容
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TurnPayload your_turn 事件內容
type TurnPayload struct {
	PlayerID  string     `json:"player_id"`
	Phase     game.Phase `json:"phase"`
	DrawnCard *card.Card `json:"drawn_card,omitempty"`
	CanSkip   bool       `json:"can_skip"`
}

// ColorPromptPayload choose_color 事件內容
type ColorPromptPayload struct {
	PlayerID string       `json:"player_id"`
	Colors   []card.Color `json:"colors"`
}

// KickedPayload kicked 事件內容
type KickedPayload struct {
	RoomCode string `json:"room_code"`
	ByHost   string `json:"by_host"`
}

// AbortPayload game_aborted 事件內容
type AbortPayload struct {
	Reason string `json:"reason"`
}

// Broadcaster 事件出口
//
// 實作必須是非阻塞的：呼叫時仍持有房間的執行通道
type Broadcaster interface {
	// Broadcast 發給房間內所有連線
	Broadcast(code string, ev Event)
	// Send 只發給指定玩家
	Send(code, playerID string, ev Event)
}

// Fanout 同時送往多個出口（WebSocket hub、NATS）
type Fanout []Broadcaster

// Broadcast 實作 Broadcaster
func (f Fanout) Broadcast(code string, ev Event) {
	for _, b := range f {
		b.Broadcast(code, ev)
	}
}

// Send 實作 Broadcaster
func (f Fanout) Send(code, playerID string, ev Event) {
	for _, b := range f {
		b.Send(code, playerID, ev)
	}
}

// Discard 丟棄所有事件
type Discard struct{}

// Broadcast 實作 Broadcaster
func (Discard) Broadcast(string, Event) {}

// Send 實作 Broadcaster
func (Discard) Send(string, string, Event) {}
