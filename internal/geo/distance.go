package geo

import "math"

const earthRadiusM = 6371000.0

// MileM：缓存邻近判定使用的一英里（米）
const MileM = 1609.34

// HaversineM：球面距离（Haversine），返回米
func HaversineM(a, b Coordinate) float64 {
    dLat := (b.Lat - a.Lat) * math.Pi / 180
    dLon := (b.Lon - a.Lon) * math.Pi / 180
    s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
    c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
    return earthRadiusM * c
}

// Centroid：顶点算术均值作为领地中心的近似
// 约束：城镇尺度下足够；不按球面面积加权
func Centroid(ring []Coordinate) Coordinate {
    if len(ring) == 0 { return Coordinate{} }
    n := len(ring)
    // 闭合环首尾重复时不重复计入
    if n > 1 && ring[0] == ring[n-1] { n-- }
    var lat, lon float64
    for i := 0; i < n; i++ {
        lat += ring[i].Lat
        lon += ring[i].Lon
    }
    return Coordinate{Lat: lat / float64(n), Lon: lon / float64(n)}
}

// EstimateRadiusM：中心到最远顶点的球面距离，作为领地近似半径（米）
func EstimateRadiusM(center Coordinate, ring []Coordinate) float64 {
    var max float64
    for _, p := range ring {
        if d := HaversineM(center, p); d > max { max = d }
    }
    return max
}
