package sources

import (
	"context"
	"errors"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/geocache"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/nominatim"
)

// 文档注释：线上边界来源（Nominatim）
// 背景：包装客户端为统一来源；可选挂接环缓存，7 天内见过的地名直接复用缓存边界，
// 省下节流配额给未见过的地名；新拉取的边界回写环缓存。
// 约束：无有效多边形的地名按逐地丢弃，不作为整体失败。
type NominatimSource struct {
	c     *nominatim.Client
	rings *geocache.Cache
}

func NewNominatim(c *nominatim.Client, rings *geocache.Cache) *NominatimSource {
	return &NominatimSource{c: c, rings: rings}
}

func (s *NominatimSource) Name() string { return "nominatim" }

func (s *NominatimSource) Heartbeat(ctx context.Context) error { return s.c.Status(ctx) }

func (s *NominatimSource) Fetch(ctx context.Context, center geo.Coordinate, radiusM float64) ([]geo.Territory, error) {
	names, err := s.c.NearbyTowns(ctx, center, radiusM)
	if err != nil {
		return nil, err
	}
	var out []geo.Territory
	for _, name := range names {
		if s.rings != nil {
			if id, ring := s.rings.LoadRing(name); ring != nil {
				logger.L().Debug("nominatim_ring_reuse", "name", name, "id", id)
				out = append(out, geo.NewTerritory(id, name, ring))
				continue
			}
		}
		t, err := s.c.TerritoryByName(ctx, name)
		if err != nil {
			logger.L().Debug("nominatim_boundary_drop", "name", name, "err", err)
			continue
		}
		if s.rings != nil {
			_ = s.rings.SaveRing(name, t.ID, t.Boundary)
		}
		out = append(out, *t)
	}
	if len(out) == 0 {
		return nil, errors.New("no territories near center")
	}
	return out, nil
}
