package syncgroup

import "sync"

// SyncGroup 是 sync.WaitGroup 的包装器，简化多账户循环的生命周期管理
// 自动管理 Add() 和 Done()，减少遗漏 Done() 的风险
type SyncGroup struct {
	wg sync.WaitGroup

	mu    sync.Mutex
	funcs []func()
	ran   bool
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个 goroutine 函数
// 注意：Add() 应该在 Run() 之前调用
func (w *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ran {
		// 已经启动过，不允许追加
		return
	}
	w.funcs = append(w.funcs, fn)
}

// Run 启动所有已添加的 goroutine（只生效一次）
func (w *SyncGroup) Run() {
	w.mu.Lock()
	if w.ran {
		w.mu.Unlock()
		return
	}
	fns := w.funcs
	w.funcs = nil
	w.ran = true
	w.mu.Unlock()

	for _, fn := range fns {
		w.wg.Add(1)
		go func(doFunc func()) {
			defer w.wg.Done()
			doFunc()
		}(fn)
	}
}

// Wait 等待所有 goroutine 完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
