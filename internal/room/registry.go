// Package room 管理房間碼到房間的對應，以及每個房間的執行通道。
package room

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
)

// CodeStore 房間碼保留（跨節點避免撞碼）
//
// Reserve 回傳 false 代表已被其他節點使用
type CodeStore interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// CodeRefresher 保留有期限的 CodeStore
//
// Refresh 延長仍在使用的房間碼；lost 是已被其他節點取走、無法續約的碼
type CodeRefresher interface {
	Refresh(ctx context.Context, codes []string) (lost []string, err error)
}

// Notifier 房間有變動時呼叫，執行時仍持有該房間的執行通道
type Notifier func(r *Room)

// Registry 房間註冊表
//
// 鎖的順序：
//   - mu 只保護 rooms map，持有 mu 時絕不去拿房間的執行通道
//   - 需要逐一檢查房間時，先在 RLock 下複製清單，放開後再逐一 Exec
type Registry struct {
	rooms map[string]*Room // code -> Room
	mu    sync.RWMutex

	store        CodeStore
	notify       Notifier
	generate     func() string
	codeAttempts int
	idleTimeout  time.Duration
	refreshEvery time.Duration
	logger       *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option 註冊表選項
type Option func(*Registry)

// WithNotifier 房間變動通知
func WithNotifier(n Notifier) Option {
	return func(reg *Registry) {
		reg.notify = n
	}
}

// WithCodeGenerator 自訂房間碼產生器（測試撞碼用）
func WithCodeGenerator(gen func() string) Option {
	return func(reg *Registry) {
		reg.generate = gen
	}
}

// WithCodeAttempts 房間碼重試上限
func WithCodeAttempts(n int) Option {
	return func(reg *Registry) {
		if n > 0 {
			reg.codeAttempts = n
		}
	}
}

// WithIdleTimeout 閒置房間回收（0 表示不回收）
func WithIdleTimeout(d time.Duration) Option {
	return func(reg *Registry) {
		reg.idleTimeout = d
	}
}

// WithRefreshInterval 定期續約房間碼保留（store 實作 CodeRefresher 時才生效，0 表示不續約）
func WithRefreshInterval(d time.Duration) Option {
	return func(reg *Registry) {
		reg.refreshEvery = d
	}
}

// NewRegistry 創建房間註冊表
//
// store 為 nil 時只檢查本機的房間
func NewRegistry(store CodeStore, logger *slog.Logger, opts ...Option) *Registry {
	reg := &Registry{
		rooms:        make(map[string]*Room),
		store:        store,
		notify:       func(*Room) {},
		generate:     func() string { return GenerateCode(DefaultCodeLength) },
		codeAttempts: DefaultCodeAttempts,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(reg)
	}

	if reg.idleTimeout > 0 {
		reg.wg.Add(1)
		go reg.cleanupLoop()
	}
	if _, ok := reg.store.(CodeRefresher); ok && reg.refreshEvery > 0 {
		reg.wg.Add(1)
		go reg.refreshLoop()
	}
	return reg
}

// Create 創建房間，建立者成為唯一成員與房主
//
// 房間碼先比對本機再向 CodeStore 保留，撞碼就重試，超過上限回傳 ErrCodeExhausted
func (reg *Registry) Create(ctx context.Context, hostName string) (*Room, *game.Player, error) {
	name, err := normalizeName(hostName)
	if err != nil {
		return nil, nil, err
	}

	for attempt := 1; attempt <= reg.codeAttempts; attempt++ {
		code := reg.generate()
		if reg.exists(code) {
			reg.logger.Debug("房間碼衝突", "room_code", code, "attempt", attempt)
			continue
		}

		if reg.store != nil {
			ok, err := reg.store.Reserve(ctx, code)
			if err != nil {
				return nil, nil, fmt.Errorf("reserve room code: %w", err)
			}
			if !ok {
				reg.logger.Debug("房間碼已被其他節點使用", "room_code", code, "attempt", attempt)
				continue
			}
		}

		host := game.NewPlayer(uuid.NewString(), name)
		r := newRoom(code, host, reg.logger)

		reg.mu.Lock()
		if _, taken := reg.rooms[code]; taken {
			reg.mu.Unlock()
			continue
		}
		reg.rooms[code] = r
		reg.mu.Unlock()

		reg.logger.Info("房間已創建",
			"room_code", code,
			"host_id", host.ID,
			"host_name", name,
			"attempts", attempt)

		_ = r.Exec(func(r *Room) error {
			reg.notify(r)
			return nil
		})
		return r, host, nil
	}

	reg.logger.Warn("房間碼產生失敗", "attempts", reg.codeAttempts)
	return nil, nil, ErrCodeExhausted
}

// Join 加入等待中的房間
func (reg *Registry) Join(code, name string) (*Room, *game.Player, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, nil, err
	}
	r, err := reg.Get(code)
	if err != nil {
		return nil, nil, err
	}

	var player *game.Player
	err = r.Exec(func(r *Room) error {
		if r.phase != PhaseWaiting {
			return ErrRoomInGame
		}
		if len(r.players) >= MaxPlayers {
			return ErrRoomFull
		}

		player = game.NewPlayer(uuid.NewString(), name)
		r.players = append(r.players, player)

		r.logger.Info("玩家加入房間",
			"player_id", player.ID,
			"player_name", name,
			"players", len(r.players))

		reg.notify(r)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r, player, nil
}

// Leave 離開房間；房間空了就拆除
func (reg *Registry) Leave(ctx context.Context, code, playerID string) error {
	return reg.removeMember(ctx, code, func(r *Room) error {
		if r.indexOf(playerID) < 0 {
			return ErrPlayerNotFound
		}
		return nil
	}, playerID)
}

// Kick 房主踢人，移除方式與離開相同
func (reg *Registry) Kick(ctx context.Context, code, requesterID, targetID string) error {
	return reg.removeMember(ctx, code, func(r *Room) error {
		if err := r.requireHost(requesterID); err != nil {
			return err
		}
		if requesterID == targetID {
			return ErrCannotKickSelf
		}
		if r.indexOf(targetID) < 0 {
			return ErrPlayerNotFound
		}
		return nil
	}, targetID)
}

// removeMember 在執行通道內檢查、移除、通知；拆除在放開通道後完成
func (reg *Registry) removeMember(ctx context.Context, code string, check func(*Room) error, playerID string) error {
	r, err := reg.Get(code)
	if err != nil {
		return err
	}

	var empty bool
	err = r.Exec(func(r *Room) error {
		if err := check(r); err != nil {
			return err
		}
		removed, err := r.remove(playerID)
		if err != nil {
			return err
		}
		if empty = removed; empty {
			r.closed = true
		}
		reg.notify(r)
		return nil
	})
	if err != nil {
		return err
	}

	if empty {
		reg.destroy(ctx, r, "empty")
	}
	return nil
}

// Get 依房間碼取得房間（不分大小寫）
func (reg *Registry) Get(code string) (*Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	reg.mu.RLock()
	r, ok := reg.rooms[code]
	reg.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return r, nil
}

// Len 目前房間數
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Stats 獲取統計資訊
func (reg *Registry) Stats() map[string]any {
	phaseCount := make(map[Phase]int)
	totalPlayers := 0
	connected := 0

	// 直接拿通道鎖，不透過 Exec，避免統計查詢刷新閒置時間
	for _, r := range reg.list() {
		r.mu.Lock()
		if !r.closed {
			phaseCount[r.phase]++
			totalPlayers += len(r.players)
			for _, p := range r.players {
				if p.Connected {
					connected++
				}
			}
		}
		r.mu.Unlock()
	}

	return map[string]any{
		"total_rooms":       reg.Len(),
		"total_players":     totalPlayers,
		"connected_players": connected,
		"by_phase":          phaseCount,
	}
}

// Cleanup 回收閒置房間（公開方法供測試使用）
func (reg *Registry) Cleanup(ctx context.Context) int {
	if reg.idleTimeout <= 0 {
		return 0
	}

	removed := 0
	for _, r := range reg.list() {
		r.mu.Lock()
		expired := !r.closed && r.idle(reg.idleTimeout)
		if expired {
			r.closed = true
			reg.notify(r)
		}
		r.mu.Unlock()

		if expired {
			reg.destroy(ctx, r, "idle")
			removed++
		}
	}
	return removed
}

// RefreshCodes 續約所有開啟中房間的房間碼保留
//
// 房間存活時間可能超過保留期限，不續約的話其他節點會拿到同一個碼
func (reg *Registry) RefreshCodes(ctx context.Context) error {
	refresher, ok := reg.store.(CodeRefresher)
	if !ok {
		return nil
	}

	var codes []string
	for _, r := range reg.list() {
		r.mu.Lock()
		if !r.closed {
			codes = append(codes, r.Code)
		}
		r.mu.Unlock()
	}
	if len(codes) == 0 {
		return nil
	}

	lost, err := refresher.Refresh(ctx, codes)
	for _, code := range lost {
		reg.logger.Warn("房間碼保留已被其他節點取走", "room_code", code)
	}
	if err != nil {
		return fmt.Errorf("refresh room codes: %w", err)
	}
	return nil
}

// Stop 停止回收並關閉所有房間
func (reg *Registry) Stop(ctx context.Context) {
	reg.stopOnce.Do(func() {
		close(reg.stopCh)
	})
	reg.wg.Wait()

	for _, r := range reg.list() {
		r.mu.Lock()
		closed := r.closed
		if !closed {
			r.closed = true
			reg.notify(r)
		}
		r.mu.Unlock()

		if !closed {
			reg.destroy(ctx, r, "server_shutdown")
		}
	}

	reg.logger.Info("房間註冊表已停止")
}

// cleanupLoop 定期回收閒置房間
func (reg *Registry) cleanupLoop() {
	defer reg.wg.Done()

	interval := min(reg.idleTimeout/2, time.Minute)
	if interval <= 0 {
		interval = reg.idleTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := reg.Cleanup(context.Background()); n > 0 {
				reg.logger.Info("閒置房間已回收", "rooms", n)
			}
		case <-reg.stopCh:
			return
		}
	}
}

// refreshLoop 定期續約房間碼
func (reg *Registry) refreshLoop() {
	defer reg.wg.Done()

	ticker := time.NewTicker(reg.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := reg.RefreshCodes(context.Background()); err != nil {
				reg.logger.Warn("續約房間碼失敗", "error", err)
			}
		case <-reg.stopCh:
			return
		}
	}
}

// destroy 從 map 移除並釋放房間碼；呼叫前房間必須已標記 closed
func (reg *Registry) destroy(ctx context.Context, r *Room, reason string) {
	reg.mu.Lock()
	if reg.rooms[r.Code] == r {
		delete(reg.rooms, r.Code)
	}
	reg.mu.Unlock()

	if reg.store != nil {
		if err := reg.store.Release(ctx, r.Code); err != nil {
			reg.logger.Warn("釋放房間碼失敗", "room_code", r.Code, "error", err)
		}
	}

	reg.logger.Info("房間已移除", "room_code", r.Code, "reason", reason)
}

func (reg *Registry) exists(code string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.rooms[code]
	return ok
}

func (reg *Registry) list() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// normalizeName 去掉前後空白，長度 1-32 字元
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}
