// 包 resolver：位置到王国的解析状态机
package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/geocache"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
)

// State：数据态。Ready 在显式刷新或缓存失效时可重新进入 Loading
type State int

const (
	StateNoData State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return "nodata"
}

// EventType：进入/离开领地的离散事件
type EventType string

const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

type Event struct {
	Type        EventType
	TerritoryID string
	Name        string
	At          time.Time
}

// FetchFunc：边界获取协作方（与 sources.Manager.Fetch 同构，测试可注入假实现）
type FetchFunc func(ctx context.Context, center geo.Coordinate, radiusM float64) ([]geo.Territory, string, error)

// Status：对表现层暴露的解析快照
type Status struct {
	State       State
	Territories []geo.Territory
	InsideID    string // 空串表示在所有领地之外；按 ID 引用，渲染时回查
	LastCoord   geo.Coordinate
	Err         string
	Events      []Event // 本次位置更新产生的迁移事件
}

// 文档注释：解析器
// 背景：持有当前领地集合与"身处领地"子状态；位置更新时逐领地做包含判定，
// 变化即发出一次进入/离开事件。列表在刷新成功时整体替换，从不逐元素修改。
// 约束：重叠领地按当前列表顺序取首个命中（已记录的确定性策略，测试覆盖）；
// 刷新在途时的二次刷新仅由布尔标志抑制，不做请求合并；在途拉取不可取消，
// 可能晚到覆盖较新状态（沿用既有取舍）。锁只保护状态，拉取期间不持锁。
type Resolver struct {
	mu      sync.Mutex
	cache   *geocache.Cache // 可为 nil（无盘缓存模式）
	fetch   FetchFunc
	radiusM float64
	onEvent func(Event)

	state       State
	loading     bool
	everLoaded  bool
	lastErr     error
	territories []geo.Territory
	insideID    string
	lastCoord   geo.Coordinate
	hasCoord    bool
}

// New：构造解析器；cache 与 fetch 显式注入，不依赖任何进程级单例
func New(cache *geocache.Cache, fetch FetchFunc, radiusM float64, onEvent func(Event)) *Resolver {
	if radiusM <= 0 {
		radiusM = 8000
	}
	return &Resolver{cache: cache, fetch: fetch, radiusM: radiusM, onEvent: onEvent}
}

// UpdateLocation：记录最新坐标并在 Ready 态下执行包含判定
// 背景：仅评估与发事件，不触发网络；数据加载由 Refresh/Locate 驱动
func (r *Resolver) UpdateLocation(coord geo.Coordinate) Status {
	r.mu.Lock()
	r.lastCoord = coord
	r.hasCoord = true
	var events []Event
	if r.state == StateReady {
		events = r.evaluateLocked(coord)
	}
	st := r.statusLocked(events)
	r.mu.Unlock()
	r.emit(events)
	return st
}

// Locate：表现层入口；首个定位或数据失效时同步走一次刷新，再行判定
// 约束：刷新过程中评估出的迁移事件随返回快照带回，表现层无须依赖回调
func (r *Resolver) Locate(ctx context.Context, coord geo.Coordinate) Status {
	st := r.UpdateLocation(coord)
	if st.State == StateReady {
		return st
	}
	events, err := r.refresh(ctx)
	if err != nil {
		logger.L().Debug("resolver_locate_refresh_fail", "err", err)
	}
	r.emit(events)
	r.mu.Lock()
	st = r.statusLocked(events)
	r.mu.Unlock()
	return st
}

// 文档注释：刷新领地集合
// 背景：优先复用缓存中仍然新鲜且邻近的条目；否则进入 Loading 并调用边界来源，
// 成功时整体替换列表并回写缓存。失败或空结果只置错误标志，既有列表保持可用
// （一旦有过成功拉取，宁可陈旧也不清空——有意的设计决定）。
func (r *Resolver) Refresh(ctx context.Context) error {
	events, err := r.refresh(ctx)
	r.emit(events)
	return err
}

// refresh：实际刷新逻辑；返回本次评估产生的迁移事件，由调用方发出并随快照带回
func (r *Resolver) refresh(ctx context.Context) ([]Event, error) {
	r.mu.Lock()
	if r.loading {
		r.mu.Unlock()
		logger.L().Debug("resolver_refresh_suppressed")
		return nil, nil
	}
	if !r.hasCoord {
		r.mu.Unlock()
		return nil, errors.New("no location fix yet")
	}
	center := r.lastCoord
	key := geocache.Key(center, r.radiusM)
	if r.cache != nil && r.cache.IsValidFor(key, center, r.radiusM, geocache.KingdomMaxAge) {
		if e := r.cache.Load(key, geocache.KingdomMaxAge); e != nil {
			r.territories = e.Territories
			r.state = StateReady
			r.everLoaded = true
			r.lastErr = nil
			events := r.evaluateLocked(center)
			r.mu.Unlock()
			logger.L().Debug("resolver_refresh_cache_hit", "key", key, "territories", len(e.Territories))
			return events, nil
		}
	}
	r.loading = true
	r.state = StateLoading
	r.mu.Unlock()

	logger.L().Debug("resolver_refresh_begin", "lat", center.Lat, "lon", center.Lon, "radius_m", r.radiusM)
	ts, src, err := r.fetch(ctx, center, r.radiusM)

	r.mu.Lock()
	r.loading = false
	if err != nil || len(ts) == 0 {
		if err == nil {
			err = errors.New("empty territory result")
		}
		r.lastErr = err
		if r.everLoaded {
			r.state = StateReady
		} else {
			r.state = StateNoData
		}
		r.mu.Unlock()
		logger.L().Error("resolver_refresh_error", "err", err)
		return nil, err
	}
	r.territories = ts
	r.state = StateReady
	r.everLoaded = true
	r.lastErr = nil
	var events []Event
	if r.hasCoord {
		events = r.evaluateLocked(r.lastCoord)
	}
	r.mu.Unlock()
	if r.cache != nil {
		if err := r.cache.Save(key, ts, center, r.radiusM); err != nil {
			logger.L().Error("resolver_cache_save_error", "key", key, "err", err)
		}
	}
	logger.L().Info("resolver_refresh_done", "source", src, "territories", len(ts))
	return events, nil
}

// Snapshot：读取当前状态（不评估、不发事件）
func (r *Resolver) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked(nil)
}

// TerritoryByID：按 ID 回查领地，避免在"选中"与"列表"间复制可变状态
func (r *Resolver) TerritoryByID(id string) *geo.Territory {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.territories {
		if r.territories[i].ID == id {
			t := r.territories[i]
			return &t
		}
	}
	return nil
}

// evaluateLocked：包含判定与迁移事件计算；调用方持锁
// 约束：按列表顺序取首个命中；包围盒先行过滤
func (r *Resolver) evaluateLocked(coord geo.Coordinate) []Event {
	var hit string
	var hitName string
	for i := range r.territories {
		t := &r.territories[i]
		if !geo.InBBox(coord, t.BBox) {
			continue
		}
		if geo.Contains(t.Boundary, coord) {
			hit = t.ID
			hitName = t.Name
			break
		}
	}
	if hit == r.insideID {
		return nil
	}
	var events []Event
	now := time.Now()
	if r.insideID != "" {
		prevName := ""
		for i := range r.territories {
			if r.territories[i].ID == r.insideID {
				prevName = r.territories[i].Name
				break
			}
		}
		events = append(events, Event{Type: EventExit, TerritoryID: r.insideID, Name: prevName, At: now})
		metrics.ExitEventsTotal.Inc()
	}
	if hit != "" {
		events = append(events, Event{Type: EventEnter, TerritoryID: hit, Name: hitName, At: now})
		metrics.EnterEventsTotal.Inc()
	}
	r.insideID = hit
	return events
}

func (r *Resolver) statusLocked(events []Event) Status {
	st := Status{
		State:       r.state,
		Territories: r.territories,
		InsideID:    r.insideID,
		LastCoord:   r.lastCoord,
		Events:      events,
	}
	if r.lastErr != nil {
		st.Err = r.lastErr.Error()
	}
	return st
}

// 事件回调在锁外执行，允许回调方反向读取解析器
func (r *Resolver) emit(events []Event) {
	if r.onEvent == nil {
		return
	}
	for _, e := range events {
		r.onEvent(e)
	}
}
