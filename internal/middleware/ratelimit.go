package middleware

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：移动端位置流在高峰期频繁上报，对入口限速避免缓存与外部边界查询被打穿；
// 按环境变量开关与速率配置。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := time.Now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// ctxKey：上下文键类型，避免与其它包的字符串键冲突
type ctxKey string

const playerGeoKey ctxKey = "player_geo"

// PlayerGeo：客户端随请求头上报的定位信息
type PlayerGeo struct {
	Coord    geo.Coordinate
	HasCoord bool
	PlayerID string
}

// PlayerGeoFrom：从上下文读取客户端定位信息
func PlayerGeoFrom(ctx context.Context) PlayerGeo {
	if v, ok := ctx.Value(playerGeoKey).(PlayerGeo); ok {
		return v
	}
	return PlayerGeo{}
}

func Wrap(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 文档注释：玩家定位头注入
		// 背景：移动端把最近一次定位放在请求头，查询参数缺省时以此兜底；
		// 解析失败不阻断主流程。
		g := parsePlayerGeo(r)
		ctx := context.WithValue(r.Context(), playerGeoKey, g)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
	if os.Getenv("RATE_LIMIT_ENABLED") == "true" {
		qps := 200
		if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
			if n, e := strconv.Atoi(s); e == nil && n > 0 {
				qps = n
			}
		}
		tb := &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix()}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tb.allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			inner.ServeHTTP(w, r)
		})
	}
	return inner
}

// parsePlayerGeo：解析客户端定位头为结构体
// 约束：仅做基础的数值转换；异常值将被忽略
func parsePlayerGeo(r *http.Request) PlayerGeo {
	h := r.Header
	var g PlayerGeo
	g.PlayerID = h.Get("X-Player-ID")
	latS := h.Get("X-Player-Lat")
	lonS := h.Get("X-Player-Lon")
	if latS != "" && lonS != "" {
		lat, e1 := strconv.ParseFloat(latS, 64)
		lon, e2 := strconv.ParseFloat(lonS, 64)
		if e1 == nil && e2 == nil {
			g.Coord = geo.Coordinate{Lat: lat, Lon: lon}
			g.HasCoord = true
		}
	}
	if g.PlayerID != "" || g.HasCoord {
		logger.L().Debug("player_geo_inject", "player", g.PlayerID, "has_coord", g.HasCoord)
	}
	return g
}
