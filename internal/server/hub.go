package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/14-uno-game-server/internal/gateway"
)

// 系統設計問題：
//   牌局狀態要即時推給房間裡的每個人，而且每個人看到的手牌不同，怎麼送？
//
// 核心挑戰：
//   1. 實時通信：出牌後立即推送給所有玩家
//   2. 個別推送：手牌、輪到你、選色提示只發給一個人
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 不阻塞：推送發生在房間執行通道內，慢客戶端不能拖住整個房間
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接，實作 gateway.Broadcaster
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 非阻塞發送，滿了就丟

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Hub WebSocket 連接中心
//
// 系統設計考量：
//
//  1. 連接映射：map[roomCode]map[playerID]*Client
//     - 同一玩家重複連線時，新連線取代舊連線
//
//  2. 並發安全：RWMutex
//     - 送訊息拿讀鎖，註冊/註銷拿寫鎖
//     - send channel 只在寫鎖下關閉，讀鎖下的發送不會碰到已關閉的 channel
type Hub struct {
	logger      *slog.Logger
	connections map[string]map[string]*Client // roomCode -> playerID -> Client
	mu          sync.RWMutex
}

var _ gateway.Broadcaster = (*Hub)(nil)

// Client 一條 WebSocket 連接
type Client struct {
	ID       string // 連線 ID，同一玩家重連時用來區分新舊連線
	PlayerID string
	RoomCode string

	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once

	mu       sync.Mutex
	lastPing time.Time
}

// NewHub 創建 WebSocket Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		connections: make(map[string]map[string]*Client),
	}
}

func newClient(hub *Hub, conn *websocket.Conn, roomCode, playerID string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		RoomCode: roomCode,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		hub:      hub,
		lastPing: time.Now(),
	}
}

// LastPing 最後一次收到 Pong 的時間（連線建立時視為剛收到）
func (c *Client) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPing
}

// register 註冊連接，取代同一玩家的舊連接
func (hub *Hub) register(c *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.connections[c.RoomCode] == nil {
		hub.connections[c.RoomCode] = make(map[string]*Client)
	}
	if old, exists := hub.connections[c.RoomCode][c.PlayerID]; exists {
		hub.logger.Info("玩家重新連線，關閉舊連接",
			"room_code", c.RoomCode,
			"player_id", c.PlayerID,
			"old_conn_id", old.ID)
		old.closeSend()
	}
	hub.connections[c.RoomCode][c.PlayerID] = c
}

// unregister 取消註冊；回傳 false 表示這條連接早已被取代或移除
func (hub *Hub) unregister(c *Client) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conns, exists := hub.connections[c.RoomCode]
	if !exists || conns[c.PlayerID] != c {
		return false
	}
	delete(conns, c.PlayerID)
	c.closeSend()
	if len(conns) == 0 {
		delete(hub.connections, c.RoomCode)
	}
	return true
}

// Broadcast 實作 gateway.Broadcaster
//
// room_closed 之後房間已不存在，送完就關閉所有連接
func (hub *Hub) Broadcast(code string, ev gateway.Event) {
	message, ok := hub.encode(code, ev)
	if !ok {
		return
	}

	hub.mu.RLock()
	for _, c := range hub.connections[code] {
		hub.enqueue(c, message)
	}
	hub.mu.RUnlock()

	if ev.Type == gateway.EventRoomClosed {
		hub.DisconnectRoom(code)
	}
}

// Send 實作 gateway.Broadcaster
//
// kicked 之後對方已不是成員，送完就關閉連接
func (hub *Hub) Send(code, playerID string, ev gateway.Event) {
	message, ok := hub.encode(code, ev)
	if !ok {
		return
	}

	hub.mu.RLock()
	if c, exists := hub.connections[code][playerID]; exists {
		hub.enqueue(c, message)
	}
	hub.mu.RUnlock()

	if ev.Type == gateway.EventKicked {
		hub.DisconnectPlayer(code, playerID)
	}
}

func (hub *Hub) encode(code string, ev gateway.Event) ([]byte, bool) {
	message, err := json.Marshal(ev)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "room_code", code, "event", ev.Type, "error", err)
		return nil, false
	}
	return message, true
}

// enqueue 非阻塞發送（呼叫者持有讀鎖）
func (hub *Hub) enqueue(c *Client, message []byte) {
	select {
	case c.send <- message:
	default:
		hub.logger.Warn("連接緩衝區滿，丟棄訊息",
			"room_code", c.RoomCode,
			"player_id", c.PlayerID)
	}
}

// DisconnectPlayer 斷開玩家連接（已排隊的訊息會先送出）
func (hub *Hub) DisconnectPlayer(code, playerID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conns, exists := hub.connections[code]
	if !exists {
		return
	}
	if c, exists := conns[playerID]; exists {
		c.closeSend()
		delete(conns, playerID)
	}
	if len(conns) == 0 {
		delete(hub.connections, code)
	}
}

// DisconnectRoom 斷開房間內所有連接
func (hub *Hub) DisconnectRoom(code string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for _, c := range hub.connections[code] {
		c.closeSend()
	}
	delete(hub.connections, code)
}

// ConnectionCount 每個房間的連接數
func (hub *Hub) ConnectionCount() map[string]int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	result := make(map[string]int, len(hub.connections))
	for code, conns := range hub.connections {
		result[code] = len(conns)
	}
	return result
}

// StalestPong 所有連接中最久沒收到 Pong 的時間；沒有連接時為 0
//
// 接近 pongWait 代表有連線快要被判定斷線
func (hub *Hub) StalestPong() time.Duration {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	var stalest time.Duration
	now := time.Now()
	for _, conns := range hub.connections {
		for _, c := range conns {
			if age := now.Sub(c.LastPing()); age > stalest {
				stalest = age
			}
		}
	}
	return stalest
}

// Stop 關閉所有連接
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, conns := range hub.connections {
		for _, c := range conns {
			c.closeSend()
		}
	}
	hub.connections = make(map[string]map[string]*Client)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// closeSend 關閉發送 channel，writePump 送完剩餘訊息後關閉連接
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// reply 直接回給這條連接（錯誤、pong）
func (c *Client) reply(ev gateway.Event) {
	message, ok := c.hub.encode(c.RoomCode, ev)
	if !ok {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.hub.connections[c.RoomCode][c.PlayerID] == c {
		c.hub.enqueue(c, message)
	}
}

// readPump 讀取客戶端訊息
//
// 60 秒內沒有收到任何訊息（包括 Pong）就關閉連接；
// writePump 每 54 秒送一次 Ping，留 6 秒給網路延遲
func (c *Client) readPump(handle func(*Client, []byte), onClose func(*Client, bool)) {
	defer func() {
		active := c.hub.unregister(c)
		_ = c.conn.Close()
		onClose(c, active)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"room_code", c.RoomCode,
					"player_id", c.PlayerID)
			}
			return
		}
		if messageType == websocket.TextMessage {
			handle(c, message)
		}
	}
}

// writePump 寫入訊息到客戶端並定期送出 Ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
