package geocache

import (
	"encoding/json"
	"os"
	"strings"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
)

// ringEntry：按地名缓存的原始边界环
// 背景：边界几何变化极慢，单独用 7 天窗口缓存；命中时连同领地标识一起复用，
// 省下一次节流的外部边界查询
type ringEntry struct {
	Place     string           `json:"place"`
	ID        string           `json:"id"`
	Ring      []geo.Coordinate `json:"ring"`
	CreatedAt int64            `json:"created_at_unix"`
}

// SaveRing：写入（覆盖）地名对应的边界环及其领地标识
func (c *Cache) SaveRing(place, id string, ring []geo.Coordinate) error {
	e := ringEntry{Place: place, ID: id, Ring: ring, CreatedAt: c.now().Unix()}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := strings.ToLower(place)
	if err := os.WriteFile(c.path("ring", key), b, 0o644); err != nil {
		return err
	}
	logger.L().Debug("geocache_ring_save", "place", place, "id", id, "vertices", len(ring))
	return nil
}

// LoadRing：读取地名对应的领地标识与边界环；缺失或超过 7 天返回空环
func (c *Cache) LoadRing(place string) (string, []geo.Coordinate) {
	key := strings.ToLower(place)
	b, err := os.ReadFile(c.path("ring", key))
	if err != nil {
		return "", nil
	}
	var e ringEntry
	if err := json.Unmarshal(b, &e); err != nil {
		logger.L().Error("geocache_ring_decode_error", "place", place, "err", err)
		return "", nil
	}
	if c.now().Unix()-e.CreatedAt > int64(BoundaryMaxAge.Seconds()) {
		metrics.FileCacheStaleTotal.Inc()
		return "", nil
	}
	metrics.FileCacheHitsTotal.Inc()
	return e.ID, e.Ring
}
