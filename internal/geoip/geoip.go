// 包 geoip：基于本地 mmdb 的 IP 近似定位，为缺少 GPS 定位的客户端兜底
package geoip

import (
	"errors"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
)

// 文档注释：mmdb 定位器
// 背景：移动端在无定位权限或冷启动时只能提供来源 IP；用城市级 mmdb 粗定位作为
// 解析中心的近似（公里级误差，仅用于圈定查询区域，不用于包含判定）。
// 约束：数据库文件只读常驻；缺失文件时整个能力关闭，不影响主流程。
type Locator struct {
	r *geoip2.Reader
}

// OpenFromEnv：按 GEOIP_MMDB_PATH 打开数据库；未配置或打开失败返回 nil
func OpenFromEnv() *Locator {
	path := os.Getenv("GEOIP_MMDB_PATH")
	if path == "" {
		logger.L().Info("geoip_disabled")
		return nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		logger.L().Error("geoip_open_error", "path", path, "err", err)
		return nil
	}
	logger.L().Info("geoip_ready", "path", path)
	return &Locator{r: r}
}

func (l *Locator) Close() error { return l.r.Close() }

// Approximate：IP 文本到近似坐标
// 约束：非法 IP 或库中无记录时返回错误；零值坐标（0,0）视为无记录
func (l *Locator) Approximate(ipText string) (geo.Coordinate, error) {
	ip := net.ParseIP(ipText)
	if ip == nil {
		return geo.Coordinate{}, errors.New("bad ip")
	}
	city, err := l.r.City(ip)
	if err != nil {
		return geo.Coordinate{}, err
	}
	c := geo.Coordinate{Lat: city.Location.Latitude, Lon: city.Location.Longitude}
	if c.Lat == 0 && c.Lon == 0 {
		return geo.Coordinate{}, errors.New("no location for ip")
	}
	logger.L().Debug("geoip_hit", "ip", ipText, "lat", c.Lat, "lon", c.Lon)
	return c, nil
}
