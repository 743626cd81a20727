package geo

import "strings"

// 文档注释：从 GeoJSON geometry 提取领地外环
// 背景：外部边界服务返回 Polygon/MultiPolygon；领地模型只保留单一外环，
// 多面取顶点最多的部分作为主城区近似。
// 约束：坐标按 GeoJSON 约定为 [lon, lat]；不足 4 个坐标对的环视为无效几何返回 nil
// （部分几何缺失按逐地静默丢弃处理，不构成整体失败）。
func RingFromGeometry(g map[string]any) []Coordinate {
    gt := strings.ToLower(getStr(g, "type"))
    switch gt {
    case "polygon":
        coords, ok := g["coordinates"].([]any)
        if !ok || len(coords) == 0 { return nil }
        return ringFromPairs(coords[0])
    case "multipolygon":
        coords, ok := g["coordinates"].([]any)
        if !ok { return nil }
        var best []Coordinate
        for _, part := range coords {
            rings, ok := part.([]any)
            if !ok || len(rings) == 0 { continue }
            if r := ringFromPairs(rings[0]); len(r) > len(best) { best = r }
        }
        return best
    }
    return nil
}

func ringFromPairs(v any) []Coordinate {
    arr, ok := v.([]any)
    if !ok || len(arr) < 4 { return nil }
    out := make([]Coordinate, 0, len(arr))
    for _, p := range arr {
        vv, ok := p.([]any)
        if !ok || len(vv) < 2 { continue }
        out = append(out, Coordinate{Lat: toFloat(vv[1]), Lon: toFloat(vv[0])})
    }
    if len(out) < 4 { return nil }
    return out
}

func getStr(m map[string]any, k string) string {
    if v, ok := m[k].(string); ok { return v }
    return ""
}

func toFloat(v any) float64 {
    switch x := v.(type) {
    case float64:
        return x
    case float32:
        return float64(x)
    case int:
        return float64(x)
    case int64:
        return float64(x)
    default:
        return 0
    }
}
