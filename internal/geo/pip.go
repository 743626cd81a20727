package geo

// 文档注释：点入多边形判定（Even-Odd 射线法）
// 背景：对领地边界执行包含判定；城镇尺度下按 (lon, lat) 平面近似处理。
// 约束：跨反子午线或高纬大范围多边形不在适用范围内（已知限制，不做修正）；
// 点恰好落在边上的结果由数值实现决定，对固定输入稳定但不跨实现约定。
func Contains(ring []Coordinate, pt Coordinate) bool {
    if distinctVertices(ring) < 3 { return false }
    n := len(ring)
    inside := false
    x := pt.Lon
    y := pt.Lat
    for i, j := 0, n-1; i < n; j, i = i, i+1 {
        xi := ring[i].Lon; yi := ring[i].Lat
        xj := ring[j].Lon; yj := ring[j].Lat
        intersect := ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi)
        if intersect { inside = !inside }
    }
    return inside
}

// 退化边界（少于 3 个不同顶点）恒不包含
func distinctVertices(ring []Coordinate) int {
    seen := make(map[Coordinate]struct{}, len(ring))
    for _, p := range ring { seen[p] = struct{}{} }
    return len(seen)
}
