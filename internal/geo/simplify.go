package geo

// DefaultMaxVertices：下发与判定使用的边界顶点上限
const DefaultMaxVertices = 50

// 文档注释：边界抽稀（均匀取点）
// 背景：外部边界数据常含数千顶点，超出渲染与判定所需精度；按固定步长抽取到上限以内。
// 约束：均匀抽稀是有损近似，复杂凹多边形可能产生自交；仅服务于粗粒度包含判定与展示，
// 不用于一致性敏感的场景。输出恒为闭合环（首尾相等）。顶点计数不含闭合重复点，
// 抽稀结果可再次传入且保持不变（幂等）。
func Simplify(ring []Coordinate, maxVertices int) []Coordinate {
    if maxVertices <= 0 { maxVertices = DefaultMaxVertices }
    n := len(ring)
    if n > 1 && ring[0] == ring[n-1] { n-- }
    if n <= maxVertices {
        return closeRing(ring)
    }
    step := (n + maxVertices - 1) / maxVertices
    out := make([]Coordinate, 0, maxVertices+1)
    for i := 0; i < n; i += step {
        out = append(out, ring[i])
    }
    return closeRing(out)
}

// 重新闭合：保留点的首尾不一致时补回首点
func closeRing(ring []Coordinate) []Coordinate {
    if len(ring) == 0 { return ring }
    if ring[0] == ring[len(ring)-1] { return ring }
    out := make([]Coordinate, 0, len(ring)+1)
    out = append(out, ring...)
    return append(out, ring[0])
}
