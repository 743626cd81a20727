package resolver

import (
	"sync"

	"kingdom-api/internal/geocache"
)

// 文档注释：按玩家会话分配解析器
// 背景：每个玩家的位置流串行驱动自己的解析器实例（进入/离开状态互不干扰），
// 文件缓存跨实例共享，解析器重建不影响缓存生命周期。
// 约束：不做闲置回收，长进程下按玩家数线性增长（与缓存条目同为已接受的限制）。
type Registry struct {
	mu      sync.Mutex
	byID    map[string]*Resolver
	cache   *geocache.Cache
	fetch   FetchFunc
	radiusM float64
	onEvent func(playerID string, e Event)
}

func NewRegistry(cache *geocache.Cache, fetch FetchFunc, radiusM float64, onEvent func(playerID string, e Event)) *Registry {
	return &Registry{
		byID:    make(map[string]*Resolver),
		cache:   cache,
		fetch:   fetch,
		radiusM: radiusM,
		onEvent: onEvent,
	}
}

// Get：取出或创建玩家的解析器
func (g *Registry) Get(playerID string) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byID[playerID]; ok {
		return r
	}
	var cb func(Event)
	if g.onEvent != nil {
		id := playerID
		cb = func(e Event) { g.onEvent(id, e) }
	}
	r := New(g.cache, g.fetch, g.radiusM, cb)
	g.byID[playerID] = r
	return r
}

// Len：当前存活的解析器数量（观测用）
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}
