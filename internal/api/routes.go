// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/geocache"
	"kingdom-api/internal/geoip"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
	"kingdom-api/internal/middleware"
	"kingdom-api/internal/resolver"
	"kingdom-api/internal/store"
)

// Deps：路由依赖集合，由主入口显式装配注入（不使用进程级单例）
type Deps struct {
	Store    *store.Store
	Redis    *redis.Client // 可为 nil
	Registry *resolver.Registry
	GeoIP    *geoip.Locator // 可为 nil
	Cache    *geocache.Cache
	Fetch    resolver.FetchFunc
	RadiusM  float64
}

// 解析结果结构：仅包含对外返回必要字段
type resolveResult struct {
	Player      string           `json:"player,omitempty"`
	State       string           `json:"state"`
	Inside      *geo.Territory   `json:"inside"`
	Territories []geo.Territory  `json:"territories"`
	Events      []resolveEvent   `json:"events,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type resolveEvent struct {
	Type        string `json:"type"`
	TerritoryID string `json:"territory_id"`
	Name        string `json:"name"`
}

// 解析访问者 IP：优先常见反向代理头；保证多层代理场景下稳定获取源 IP
func getClientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	if x := h.Get("x-real-ip"); x != "" {
		return x
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}
	return host
}

// coordFromRequest：定位参数取值顺序：查询参数 → 定位头 → GeoIP 近似
func coordFromRequest(r *http.Request, gip *geoip.Locator) (geo.Coordinate, bool) {
	latS := r.URL.Query().Get("lat")
	lonS := r.URL.Query().Get("lon")
	if latS != "" && lonS != "" {
		lat, e1 := strconv.ParseFloat(latS, 64)
		lon, e2 := strconv.ParseFloat(lonS, 64)
		if e1 == nil && e2 == nil {
			return geo.Coordinate{Lat: lat, Lon: lon}, true
		}
	}
	if g := middleware.PlayerGeoFrom(r.Context()); g.HasCoord {
		return g.Coord, true
	}
	if gip != nil {
		if c, err := gip.Approximate(getClientIP(r)); err == nil {
			return c, true
		}
	}
	return geo.Coordinate{}, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 /api 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	apiMux := http.NewServeMux()

	// 文档注释：位置解析入口
	// 背景：每个玩家持有独立的解析器实例；返回当前领地集合、所在王国与本次
	// 迁移事件。坐标缺失且无法近似时返回 400。
	apiMux.HandleFunc("/resolve", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		t0 := time.Now()
		metrics.ResolveRequestsTotal.Inc()
		coord, ok := coordFromRequest(r, d.GeoIP)
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "no coordinate"})
			return
		}
		player := r.URL.Query().Get("player")
		if player == "" {
			player = middleware.PlayerGeoFrom(ctx).PlayerID
		}
		if player == "" {
			player = getClientIP(r)
		}
		res := d.Registry.Get(player)
		st := res.Locate(ctx, coord)

		var out resolveResult
		out.Player = player
		out.State = st.State.String()
		out.Territories = st.Territories
		out.Error = st.Err
		if st.InsideID != "" {
			out.Inside = res.TerritoryByID(st.InsideID)
		} else {
			metrics.OutsideResultsTotal.Inc()
		}
		for _, e := range st.Events {
			out.Events = append(out.Events, resolveEvent{Type: string(e.Type), TerritoryID: e.TerritoryID, Name: e.Name})
		}
		if d.Store != nil {
			_ = d.Store.IncrStats(ctx, player)
			_ = d.Store.RecordRecent(ctx, geocache.Key(coord, d.RadiusM), coord, d.RadiusM)
		}
		metrics.ResolveDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
		writeJSON(w, out)
	})

	// 文档注释：区域领地快照
	// 背景：地图渲染按区域拉取；Redis 热点缓存 → 文件缓存 → 数据库 → 线上来源
	// 逐层兜底，命中层级越浅越省外部配额。
	apiMux.HandleFunc("/territories", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		coord, ok := coordFromRequest(r, d.GeoIP)
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "no coordinate"})
			return
		}
		radiusM := d.RadiusM
		if s := r.URL.Query().Get("radius"); s != "" {
			if f, e := strconv.ParseFloat(s, 64); e == nil && f > 0 {
				radiusM = f
			}
		}
		key := geocache.Key(coord, radiusM)
		if d.Redis != nil {
			if s, _ := d.Redis.Get(ctx, "terr:"+key).Result(); s != "" {
				metrics.RedisHitsTotal.Inc()
				w.Header().Set("content-type", "application/json; charset=utf-8")
				w.Header().Set("cache-control", "no-store")
				_, _ = w.Write([]byte(s))
				return
			}
			metrics.RedisMissesTotal.Inc()
		}
		var ts []geo.Territory
		if d.Cache != nil && d.Cache.IsValidFor(key, coord, radiusM, geocache.KingdomMaxAge) {
			if e := d.Cache.Load(key, geocache.KingdomMaxAge); e != nil {
				ts = e.Territories
			}
		}
		if ts == nil && d.Store != nil {
			if fromDB, err := d.Store.ListTerritoriesNear(ctx, coord, radiusM); err == nil && len(fromDB) > 0 {
				ts = fromDB
			}
		}
		if ts == nil && d.Fetch != nil {
			fetched, src, err := d.Fetch(ctx, coord, radiusM)
			if err != nil {
				logger.L().Error("territories_fetch_error", "err", err)
				w.WriteHeader(http.StatusBadGateway)
				writeJSON(w, map[string]string{"error": "boundary source unavailable, retry later"})
				return
			}
			ts = fetched
			logger.L().Debug("territories_live_fetch", "source", src, "count", len(ts))
			if d.Cache != nil {
				_ = d.Cache.Save(key, ts, coord, radiusM)
			}
		}
		body, _ := json.Marshal(map[string]any{"territories": ts})
		if d.Redis != nil {
			_ = d.Redis.Set(ctx, "terr:"+key, string(body), time.Hour).Err()
		}
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write(body)
	})

	// 文档注释：称王
	// 背景：战斗与资格裁决在游戏后端完成，这里只落最终归属；领地不存在返回 404
	apiMux.HandleFunc("/claim", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			TerritoryID string `json:"territory_id"`
			Player      string `json:"player"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TerritoryID == "" || req.Player == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := d.Store.Claim(r.Context(), req.TerritoryID, req.Player); err != nil {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	apiMux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		t, _ := d.Store.GetTotals(r.Context())
		writeJSON(w, map[string]any{"total": t.Total, "today": t.Today})
	})

	return apiMux
}
