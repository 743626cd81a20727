// 包 nominatim：OpenStreetMap Nominatim 边界查询客户端
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
	"kingdom-api/internal/version"
)

// 文档注释：Nominatim 响应结构（jsonv2）
// 背景：仅解析本方案需要的标识、名称、坐标与多边形字段；lat/lon 按上游约定为字符串。
// 约束：geojson 字段仅在 polygon_geojson=1 时返回；错误与空结果由上层统一降级处理。
type Place struct {
	PlaceID     int64          `json:"place_id"`
	OSMType     string         `json:"osm_type"`
	OSMID       int64          `json:"osm_id"`
	Lat         string         `json:"lat"`
	Lon         string         `json:"lon"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Type        string         `json:"type"`
	GeoJSON     map[string]any `json:"geojson"`
}

type reverseResult struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// 文档注释：客户端
// 背景：公共 Nominatim 实例要求请求间隔不低于 1 秒，这里以 1.1 秒的令牌速率兜底；
// 该节流是外部硬约束而非本服务的设计选择，替换上游实例时方可调整。
// 约束：单次查询 10 秒超时；必须携带可识别的 User-Agent（附联系邮箱）。
type Client struct {
	base    string
	email   string
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func NewClient(base, email string, hc *http.Client) *Client {
	if base == "" {
		base = "https://nominatim.openstreetmap.org"
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		email:   email,
		http:    hc,
		limiter: rate.NewLimiter(rate.Every(1100*time.Millisecond), 1),
		timeout: 10 * time.Second,
	}
}

// SetPace：调整节流间隔
// 约束：仅自建实例（或测试内的假服务）可调低；公共实例保持默认 1100ms
func (c *Client) SetPace(d time.Duration) {
	if d <= 0 {
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(d), 1)
}

// NewFromEnv：从环境变量构建客户端
// 约束：NOMINATIM_PACE_MS 仅在自建实例时调低；公共实例保持默认 1100ms
func NewFromEnv() *Client {
	c := NewClient(os.Getenv("NOMINATIM_BASE"), os.Getenv("NOMINATIM_EMAIL"), nil)
	if s := os.Getenv("NOMINATIM_PACE_MS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			c.SetPace(time.Duration(n) * time.Millisecond)
		}
	}
	if s := os.Getenv("NOMINATIM_TIMEOUT_MS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			c.timeout = time.Duration(n) * time.Millisecond
		}
	}
	logger.L().Debug("nominatim_init", "base", c.base)
	return c
}

// do：节流后执行一次查询并解码到 out
func (c *Client) do(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	u := c.base + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	ua := "kingdom-api/" + version.Commit
	if c.email != "" {
		ua += " (" + c.email + ")"
	}
	req.Header.Set("User-Agent", ua)
	t0 := time.Now()
	metrics.NominatimRequestsTotal.Inc()
	logger.L().Debug("nominatim_req", "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		logger.L().Error("nominatim_http_error", "path", path, "err", err)
		metrics.NominatimFailTotal.Inc()
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.NominatimFailTotal.Inc()
		logger.L().Error("nominatim_status_error", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("nominatim status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		logger.L().Error("nominatim_decode_error", "path", path, "err", err)
		metrics.NominatimFailTotal.Inc()
		return err
	}
	dur := time.Since(t0).Milliseconds()
	metrics.NominatimDurationMs.Observe(float64(dur))
	metrics.NominatimSuccessTotal.Inc()
	logger.L().Debug("nominatim_resp", "path", path, "duration_ms", dur)
	return nil
}

// Status：上游可用性探测（/status），供来源健康检测使用
func (c *Client) Status(ctx context.Context) error {
	q := url.Values{}
	q.Set("format", "json")
	var r struct {
		Status int `json:"status"`
	}
	if err := c.do(ctx, "/status", q, &r); err != nil {
		return err
	}
	if r.Status != 0 {
		return fmt.Errorf("nominatim unhealthy: %d", r.Status)
	}
	return nil
}

// ReverseTown：反查坐标所在城镇名
// 背景：zoom=10 对应城镇层级；address 中按 town/city/village/municipality 顺序取名
func (c *Client) ReverseTown(ctx context.Context, pt geo.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(pt.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(pt.Lon, 'f', 6, 64))
	q.Set("zoom", "10")
	var r reverseResult
	if err := c.do(ctx, "/reverse", q, &r); err != nil {
		return "", err
	}
	for _, k := range []string{"town", "city", "village", "municipality"} {
		if v := r.Address[k]; v != "" {
			return v, nil
		}
	}
	if r.Name != "" {
		return r.Name, nil
	}
	return "", errors.New("no town at coordinate")
}

// SearchBoundary：按地名查询带多边形的首个结果
func (c *Client) SearchBoundary(ctx context.Context, name string) (*Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", name)
	q.Set("polygon_geojson", "1")
	q.Set("limit", "1")
	var ps []Place
	if err := c.do(ctx, "/search", q, &ps); err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, errors.New("no result for " + name)
	}
	return &ps[0], nil
}

// 文档注释：反查中心附近的城镇名集合
// 背景：以中心与四个方向探测点反查城镇名去重；单点反查失败不作为整体失败。
// 约束：每次外部查询都经过节流器，radiusM 决定探测点的偏移距离。
func (c *Client) NearbyTowns(ctx context.Context, center geo.Coordinate, radiusM float64) ([]string, error) {
	probes := probePoints(center, radiusM)
	names := make([]string, 0, len(probes))
	seen := map[string]bool{}
	for _, p := range probes {
		name, err := c.ReverseTown(ctx, p)
		if err != nil {
			logger.L().Debug("nominatim_probe_miss", "lat", p.Lat, "lon", p.Lon, "err", err)
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("no towns near center")
	}
	return names, nil
}

// TerritoryByName：按地名拉取带边界的领地
func (c *Client) TerritoryByName(ctx context.Context, name string) (*geo.Territory, error) {
	p, err := c.SearchBoundary(ctx, name)
	if err != nil {
		return nil, err
	}
	return TerritoryFromPlace(p)
}

// TerritoryFromPlace：将一条带多边形的结果转换为领地
// 约束：环顶点抽稀到上限以内；中心与半径由边界推导，不信任上游中心点字段
func TerritoryFromPlace(p *Place) (*geo.Territory, error) {
	ring := geo.RingFromGeometry(p.GeoJSON)
	if ring == nil {
		return nil, errors.New("no usable polygon")
	}
	name := p.Name
	if name == "" {
		if i := strings.IndexByte(p.DisplayName, ','); i > 0 {
			name = p.DisplayName[:i]
		} else {
			name = p.DisplayName
		}
	}
	t := geo.NewTerritory(p.OSMType+"/"+strconv.FormatInt(p.OSMID, 10), name, ring)
	return &t, nil
}

// 探测点：中心与东西南北四向各一点，偏移量取查询半径
func probePoints(center geo.Coordinate, radiusM float64) []geo.Coordinate {
	if radiusM <= 0 {
		return []geo.Coordinate{center}
	}
	dLat := radiusM / 111320.0
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusM / (111320.0 * cosLat)
	return []geo.Coordinate{
		center,
		{Lat: center.Lat + dLat, Lon: center.Lon},
		{Lat: center.Lat - dLat, Lon: center.Lon},
		{Lat: center.Lat, Lon: center.Lon + dLon},
		{Lat: center.Lat, Lon: center.Lon - dLon},
	}
}
