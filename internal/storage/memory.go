// Package storage 實現房間碼保留的後端
//
// 存儲架構演進：
//
//	V1：Memory（單機、開發測試）
//	V2：Redis（多節點共用房間碼空間）
package storage

import (
	"context"
	"sync"
)

// Memory 內存房間碼保留
//
// 使用場景：
//   - 單節點部署
//   - 單元測試（隔離外部依賴）
type Memory struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

// NewMemory 創建內存存儲實例
func NewMemory() *Memory {
	return &Memory{
		codes: make(map[string]struct{}),
	}
}

// Reserve 保留房間碼；已被保留時回傳 false
func (m *Memory) Reserve(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[code]; exists {
		return false, nil
	}
	m.codes[code] = struct{}{}
	return true, nil
}

// Release 釋放房間碼（不存在時不視為錯誤）
func (m *Memory) Release(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.codes, code)
	return nil
}

// Len 目前保留的房間碼數量
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}
