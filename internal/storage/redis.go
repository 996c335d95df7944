package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCodeTTL 房間碼保留的存活時間
const DefaultCodeTTL = 24 * time.Hour

// Redis 以 Redis 保留房間碼（多節點部署）
//
// 系統設計考量：
//
//  1. 原子保留：
//     SET key owner NX EX ttl，同一個碼只有一個節點能寫入成功
//
//  2. 節點崩潰：
//     保留帶 TTL，節點掛掉後房間碼最終會被釋放，不會永久佔用
//
//  3. 釋放安全：
//     只刪除自己保留的碼（比對 owner），避免 TTL 過期後誤刪別的節點的新保留
//
//  4. 續約：
//     房間可能比 TTL 活得久，註冊表定期呼叫 Refresh 延長自己的保留；
//     已過期且沒人拿走的碼會重新保留，被別的節點拿走的碼回報為 lost
type Redis struct {
	client    *redis.Client
	owner     string
	ttl       time.Duration
	keyPrefix string
}

// releaseScript 只在 owner 相符時刪除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript owner 相符就延長；key 不存在就重新保留；被別人拿走回傳 0
var refreshScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if not owner then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// NewRedis 創建 Redis 房間碼保留
//
// 參數：
//   - client：Redis 客戶端
//   - owner：節點識別（寫入值，釋放時比對）
//   - ttl：保留時間（0 表示使用預設 24 小時）
func NewRedis(client *redis.Client, owner string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &Redis{
		client:    client,
		owner:     owner,
		ttl:       ttl,
		keyPrefix: "uno:room:",
	}
}

// Reserve 保留房間碼
func (r *Redis) Reserve(ctx context.Context, code string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.keyPrefix+code, r.owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve %s: %w", code, err)
	}
	return ok, nil
}

// Release 釋放房間碼
func (r *Redis) Release(ctx context.Context, code string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.keyPrefix + code}, r.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release %s: %w", code, err)
	}
	return nil
}

// TTL 保留的存活時間
func (r *Redis) TTL() time.Duration {
	return r.ttl
}

// Refresh 續約房間碼，回傳已被其他節點取走的碼
func (r *Redis) Refresh(ctx context.Context, codes []string) ([]string, error) {
	var lost []string
	for _, code := range codes {
		n, err := refreshScript.Run(ctx, r.client, []string{r.keyPrefix + code}, r.owner, r.ttl.Milliseconds()).Int()
		if err != nil {
			return lost, fmt.Errorf("redis refresh %s: %w", code, err)
		}
		if n == 0 {
			lost = append(lost, code)
		}
	}
	return lost, nil
}

// Ping 檢查連線
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
