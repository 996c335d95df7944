package room

import (
	"crypto/rand"
	"time"
)

const (
	// CodeAlphabet 房間碼字元集（去掉 I、O、0、1 這些容易看錯的字）
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// DefaultCodeLength 房間碼長度
	DefaultCodeLength = 6
	// DefaultCodeAttempts 產生房間碼的重試上限
	DefaultCodeAttempts = 10
)

// GenerateCode 產生 n 個字元的房間碼
//
// 字元集 32 個字，256 可以整除，單一位元組取餘數沒有偏差
func GenerateCode(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// 如果隨機讀取失敗，使用時間作為隨機源
		seed := time.Now().UnixNano()
		for i := range b {
			b[i] = byte(seed >> (i * 5))
		}
	}
	for i := range b {
		b[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(b)
}
