// Package broker 把房間事件發佈到 NATS，讓其他服務（統計、回放、機器人）訂閱。
//
// 系統設計問題：
//
//	WebSocket 只服務連上這台機器的玩家，其他服務要怎麼知道房間裡發生了什麼？
//
// 核心挑戰：
//  1. 不阻塞：發佈時仍持有房間執行通道，不能等網路
//  2. 分流：訂閱者只想收某個房間或某種事件
//  3. 隱私：個別事件（手牌）不能混進廣播主題
//
// 設計方案：
//
//	✅ Core NATS Publish - 只寫入客戶端緩衝，斷線時由重連機制補上
//	✅ 主題分層 - <prefix>.<room_code>.<event>，可用萬用字元訂閱
//	✅ 個別事件另開主題 - <prefix>.<room_code>.players.<player_id>.<event>
package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/koopa0/system-design/14-uno-game-server/internal/gateway"
)

// DefaultPrefix 預設主題前綴
const DefaultPrefix = "uno.rooms"

// Conn 發佈所需的最小連線介面（*nats.Conn 滿足）
type Conn interface {
	Publish(subject string, data []byte) error
}

// Envelope 發佈到 NATS 的訊息
type Envelope struct {
	RoomCode  string    `json:"room_code"`
	PlayerID  string    `json:"player_id,omitempty"`
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"ts"`
}

// Publisher 事件發佈器，實作 gateway.Broadcaster
type Publisher struct {
	conn   Conn
	nc     *nats.Conn // Connect 建立時才有，用於關閉
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

var _ gateway.Broadcaster = (*Publisher)(nil)

// NewPublisher 用既有連線建立發佈器
func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		now:    time.Now,
		logger: logger,
	}
}

// Connect 連接 NATS 並建立發佈器
//
// 連線選項：
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - PingInterval(20s)：心跳檢測
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("uno-game-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	p := NewPublisher(nc, prefix, logger)
	p.nc = nc
	return p, nil
}

// Subject 廣播事件的主題
func (p *Publisher) Subject(code, event string) string {
	return p.prefix + "." + code + "." + event
}

// PlayerSubject 個別事件的主題
func (p *Publisher) PlayerSubject(code, playerID, event string) string {
	return p.prefix + "." + code + ".players." + playerID + "." + event
}

// Broadcast 實作 gateway.Broadcaster
func (p *Publisher) Broadcast(code string, ev gateway.Event) {
	p.publish(p.Subject(code, ev.Type), Envelope{
		RoomCode: code,
		Event:    ev.Type,
		Data:     ev.Data,
	})
}

// Send 實作 gateway.Broadcaster
func (p *Publisher) Send(code, playerID string, ev gateway.Event) {
	p.publish(p.PlayerSubject(code, playerID, ev.Type), Envelope{
		RoomCode: code,
		PlayerID: playerID,
		Event:    ev.Type,
		Data:     ev.Data,
	})
}

// publish 失敗只記錄，不影響遊戲流程
func (p *Publisher) publish(subject string, env Envelope) {
	env.Timestamp = p.now()
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("序列化事件失敗", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("發佈事件失敗", "subject", subject, "error", err)
	}
}

// Close 送出緩衝中的訊息後關閉連線
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain NATS: %w", err)
	}
	return nil
}
