package sources

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
)

// 文档注释：本地快照来源
// 背景：从数据目录加载预置的 GeoJSON 边界（FeatureCollection/Feature），
// 作为线上来源不可用时的离线兜底；加载一次常驻内存。
// 约束：约定属性字段 name（必填）与 id（缺省按文件名+序号生成）；
// 无有效多边形的要素逐个丢弃。
type SnapshotSource struct {
	territories []geo.Territory
}

func NewSnapshot(dir string) (*SnapshotSource, error) {
	s := &SnapshotSource{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".geojson") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var gj map[string]any
		if err := json.Unmarshal(b, &gj); err != nil {
			logger.L().Error("snapshot_decode_error", "file", name, "err", err)
			continue
		}
		s.addFromGeoJSON(strings.TrimSuffix(name, filepath.Ext(name)), gj)
	}
	logger.L().Info("snapshot_loaded", "dir", dir, "territories", len(s.territories))
	return s, nil
}

func (s *SnapshotSource) addFromGeoJSON(fileBase string, gj map[string]any) {
	t := strings.ToLower(str(gj, "type"))
	if t == "featurecollection" {
		if arr, ok := gj["features"].([]any); ok {
			for i, it := range arr {
				if f, ok := it.(map[string]any); ok {
					s.addFeature(fileBase+"-"+strconv.Itoa(i), f)
				}
			}
		}
		return
	}
	if t == "feature" {
		s.addFeature(fileBase, gj)
	}
}

func (s *SnapshotSource) addFeature(fallbackID string, f map[string]any) {
	g, ok := f["geometry"].(map[string]any)
	if !ok {
		return
	}
	ring := geo.RingFromGeometry(g)
	if ring == nil {
		return
	}
	var name, id, ruler string
	if p, ok := f["properties"].(map[string]any); ok {
		name = str(p, "name")
		id = str(p, "id")
		ruler = str(p, "ruler")
	}
	if name == "" {
		return
	}
	if id == "" {
		id = fallbackID
	}
	t := geo.NewTerritory(id, name, ring)
	t.Ruler = ruler
	s.territories = append(s.territories, t)
}

func (s *SnapshotSource) Name() string { return "snapshot" }

func (s *SnapshotSource) Heartbeat(ctx context.Context) error {
	if len(s.territories) == 0 {
		return errors.New("snapshot empty")
	}
	return nil
}

// Fetch：返回中心附近的快照领地（中心距 ≤ 查询半径 + 领地半径）
func (s *SnapshotSource) Fetch(ctx context.Context, center geo.Coordinate, radiusM float64) ([]geo.Territory, error) {
	var out []geo.Territory
	for _, t := range s.territories {
		if geo.HaversineM(center, t.Center) <= radiusM+t.RadiusM {
			out = append(out, t)
		}
	}
	return out, nil
}

func str(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}
