// 包 geocache：按量化坐标为键的本地过期缓存，存放领地快照与原始边界环
package geocache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
)

// 新鲜度窗口：王国快照 24 小时，原始边界 7 天；同一存储下两套独立策略
const (
	KingdomMaxAge  = 24 * time.Hour
	BoundaryMaxAge = 7 * 24 * time.Hour
)

// 邻近命中规则：查询中心与缓存中心球面距离不超过一英里，半径差不超过 1 米
// 约束：半径单位全链路固定为米（键、条目、容差一致），测试中断言
const (
	ProximityM       = geo.MileM
	RadiusToleranceM = 1.0
)

// Entry：一次成功拉取的领地快照及其查询参数与创建时间
type Entry struct {
	Territories  []geo.Territory `json:"territories"`
	QueryCenter  geo.Coordinate  `json:"query_center"`
	QueryRadiusM float64         `json:"query_radius_m"`
	CreatedAt    time.Time       `json:"created_at"`
}

// 文档注释：文件缓存
// 背景：进程重启后仍可复用上次拉取结果，避免对外部边界服务的重复请求；
// 条目只在读取时做年龄与距离校验，不做主动清扫（长会话下的增长是已接受的限制）。
// 约束：多协程共享时由调用方保证键级别不冲突写；now 可注入以便测试。
type Cache struct {
	dir string
	now func() time.Time
}

func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	logger.L().Debug("geocache_init", "dir", dir)
	return &Cache{dir: dir, now: time.Now}, nil
}

// SetNow：替换时钟，仅测试使用
func (c *Cache) SetNow(now func() time.Time) { c.now = now }

// Key：量化缓存键
// 背景：中心坐标取 3 位小数（约 111 米分辨率）、半径取 1 位小数，
// 让邻近查询刻意碰撞到同一条目以复用结果。
func Key(center geo.Coordinate, radiusM float64) string {
	return fmt.Sprintf("%.3f_%.3f_%.1f", center.Lat, center.Lon, radiusM)
}

// Save：写入（覆盖）领地快照条目
func (c *Cache) Save(key string, territories []geo.Territory, center geo.Coordinate, radiusM float64) error {
	e := Entry{Territories: territories, QueryCenter: center, QueryRadiusM: radiusM, CreatedAt: c.now()}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path("area", key), b, 0o644); err != nil {
		return err
	}
	logger.L().Debug("geocache_save", "key", key, "territories", len(territories))
	return nil
}

// Load：读取条目；缺失或超过 maxAge 返回 nil
func (c *Cache) Load(key string, maxAge time.Duration) *Entry {
	b, err := os.ReadFile(c.path("area", key))
	if err != nil {
		return nil
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		logger.L().Error("geocache_decode_error", "key", key, "err", err)
		return nil
	}
	if c.now().Sub(e.CreatedAt) > maxAge {
		metrics.FileCacheStaleTotal.Inc()
		logger.L().Debug("geocache_stale", "key", key, "age_s", int64(c.now().Sub(e.CreatedAt).Seconds()))
		return nil
	}
	metrics.FileCacheHitsTotal.Inc()
	return &e
}

// IsValidFor：在年龄校验之外追加邻近匹配
// 约束：缓存中心与查询中心距离 ≤ 一英里，且半径差 ≤ 1 米，才视为可复用
func (c *Cache) IsValidFor(key string, center geo.Coordinate, radiusM float64, maxAge time.Duration) bool {
	e := c.Load(key, maxAge)
	if e == nil {
		return false
	}
	if geo.HaversineM(e.QueryCenter, center) > ProximityM {
		metrics.FileCacheStaleTotal.Inc()
		logger.L().Debug("geocache_distance_reject", "key", key)
		return false
	}
	if diff := e.QueryRadiusM - radiusM; diff > RadiusToleranceM || diff < -RadiusToleranceM {
		metrics.FileCacheStaleTotal.Inc()
		logger.L().Debug("geocache_radius_reject", "key", key)
		return false
	}
	return true
}

// Remove：显式删除单个条目
func (c *Cache) Remove(key string) {
	_ = os.Remove(c.path("area", key))
	_ = os.Remove(c.path("ring", key))
}

// Clear：清空缓存目录下的全部条目
func (c *Cache) Clear() {
	entries, _ := os.ReadDir(c.dir)
	for _, ent := range entries {
		name := ent.Name()
		if strings.HasSuffix(name, ".json") {
			_ = os.Remove(filepath.Join(c.dir, name))
		}
	}
	logger.L().Info("geocache_cleared", "dir", c.dir)
}

func (c *Cache) path(kind, key string) string {
	return filepath.Join(c.dir, kind+"-"+sanitize(key)+".json")
}

// 键中可能携带地名，做一次文件名安全替换
func sanitize(key string) string {
	repl := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return repl.Replace(key)
}
