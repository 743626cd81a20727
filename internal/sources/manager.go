package sources

import (
	"context"
	"errors"
	"sync"
	"time"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
)

// 文档注释：边界来源接口（统一契约）
// 背景：抽象线上查询与本地快照为同构来源，解析层通过统一接口按序取数；
// Heartbeat 用于健康检测，不健康的来源在取数时被跳过。
// 约束：Fetch 返回的领地列表需自带闭合边界与包围盒；空结果按失败处理。
type Source interface {
	Name() string
	Fetch(ctx context.Context, center geo.Coordinate, radiusM float64) ([]geo.Territory, error)
	Heartbeat(ctx context.Context) error
}

type status struct {
	healthy bool
	last    time.Time
}

// 文档注释：来源管理器
// 背景：负责来源注册、心跳与按序故障转移；注册顺序即取数优先级。
// 约束：心跳周期默认 30s；线程安全读写。
type Manager struct {
	mu         sync.RWMutex
	order      []Source
	st         map[string]status
	hbInterval time.Duration
}

func NewManager() *Manager {
	return &Manager{st: make(map[string]status), hbInterval: 30 * time.Second}
}

func (m *Manager) Register(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, s)
	m.st[s.Name()] = status{healthy: true, last: time.Now()}
	logger.L().Info("source_registered", "name", s.Name())
}

// healthySources：按注册顺序返回当前健康的来源
func (m *Manager) healthySources() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Source
	for _, s := range m.order {
		if m.st[s.Name()].healthy {
			out = append(out, s)
		}
	}
	return out
}

// Start：启动心跳循环，在 ctx 取消时停止
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.doHeartbeat(ctx)
			}
		}
	}()
}

func (m *Manager) doHeartbeat(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.order {
		err := s.Heartbeat(ctx)
		if err != nil {
			m.st[s.Name()] = status{healthy: false, last: time.Now()}
			logger.L().Debug("source_heartbeat_fail", "name", s.Name(), "err", err)
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "fail").Inc()
		} else {
			m.st[s.Name()] = status{healthy: true, last: time.Now()}
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "ok").Inc()
		}
	}
}

// 文档注释：按优先级取数（故障转移）
// 背景：逐个尝试健康来源，首个返回非空领地列表者胜出；全部失败时返回聚合错误，
// 由解析层保留既有数据并上报可重试状态。
func (m *Manager) Fetch(ctx context.Context, center geo.Coordinate, radiusM float64) ([]geo.Territory, string, error) {
	hs := m.healthySources()
	if len(hs) == 0 {
		return nil, "", errors.New("no healthy boundary source")
	}
	var lastErr error
	for _, s := range hs {
		metrics.SourceRequestsTotal.WithLabelValues(s.Name()).Inc()
		ts, err := s.Fetch(ctx, center, radiusM)
		if err == nil && len(ts) > 0 {
			logger.L().Debug("source_fetch_ok", "name", s.Name(), "territories", len(ts))
			return ts, s.Name(), nil
		}
		if err == nil {
			err = errors.New("empty result")
		}
		metrics.SourceFailTotal.WithLabelValues(s.Name()).Inc()
		logger.L().Debug("source_fetch_fail", "name", s.Name(), "err", err)
		lastErr = err
	}
	return nil, "", lastErr
}
