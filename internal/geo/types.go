package geo

// 文档注释：王国领地与坐标的最小数据结构
// 背景：统一承载领地元数据与边界几何；保持轻量以便常驻内存与快速判定。
// 约束：边界为单一外环（首尾闭合）；多面来源在解析阶段取最大外环；半径单位固定为米。
type Coordinate struct { Lat float64 `json:"lat"`; Lon float64 `json:"lon"` }

// Territory：一个绑定真实城镇的多边形领地；Ruler 为空表示无主
type Territory struct {
    ID       string       `json:"id"`
    Name     string       `json:"name"`
    Ruler    string       `json:"ruler,omitempty"`
    Center   Coordinate   `json:"center"`
    Boundary []Coordinate `json:"boundary"`
    RadiusM  float64      `json:"radius_m"`
    BBox     [4]float64   `json:"bbox"` // minLon, minLat, maxLon, maxLat
}

// NewTerritory：由边界环构造领地：抽稀并闭合，中心/半径/包围盒由几何推导
func NewTerritory(id, name string, ring []Coordinate) Territory {
    ring = Simplify(ring, DefaultMaxVertices)
    center := Centroid(ring)
    return Territory{
        ID:       id,
        Name:     name,
        Center:   center,
        Boundary: ring,
        RadiusM:  EstimateRadiusM(center, ring),
        BBox:     ComputeBBox(ring),
    }
}

// ComputeBBox：计算边界环的包围盒（minLon, minLat, maxLon, maxLat）
func ComputeBBox(ring []Coordinate) [4]float64 {
    b := [4]float64{180, 90, -180, -90}
    for _, pt := range ring {
        if pt.Lon < b[0] { b[0] = pt.Lon }
        if pt.Lat < b[1] { b[1] = pt.Lat }
        if pt.Lon > b[2] { b[2] = pt.Lon }
        if pt.Lat > b[3] { b[3] = pt.Lat }
    }
    return b
}

// InBBox：快速包围盒过滤，先于逐边判定执行
func InBBox(pt Coordinate, b [4]float64) bool {
    return pt.Lon >= b[0] && pt.Lon <= b[2] && pt.Lat >= b[1] && pt.Lat <= b[3]
}
