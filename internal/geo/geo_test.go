package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 以 (51.15, 0.87) 附近的正方形作为测试边界
func squareRing(lat, lon, halfDeg float64) []Coordinate {
	return []Coordinate{
		{Lat: lat - halfDeg, Lon: lon - halfDeg},
		{Lat: lat - halfDeg, Lon: lon + halfDeg},
		{Lat: lat + halfDeg, Lon: lon + halfDeg},
		{Lat: lat + halfDeg, Lon: lon - halfDeg},
		{Lat: lat - halfDeg, Lon: lon - halfDeg},
	}
}

func TestContainsInsideAndOutside(t *testing.T) {
	ring := squareRing(51.15, 0.87, 0.05)
	assert.True(t, Contains(ring, Coordinate{Lat: 51.15, Lon: 0.87}))
	assert.True(t, Contains(ring, Coordinate{Lat: 51.12, Lon: 0.90}))
	assert.False(t, Contains(ring, Coordinate{Lat: 51.25, Lon: 0.87}))
	assert.False(t, Contains(ring, Coordinate{Lat: 51.15, Lon: 1.10}))
}

func TestContainsDegenerateRing(t *testing.T) {
	assert.False(t, Contains(nil, Coordinate{}))
	assert.False(t, Contains([]Coordinate{{Lat: 1, Lon: 1}}, Coordinate{Lat: 1, Lon: 1}))
	// 首尾重复后仍只有两个不同顶点
	twoPoint := []Coordinate{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}, {Lat: 1, Lon: 1}}
	assert.False(t, Contains(twoPoint, Coordinate{Lat: 1.5, Lon: 1.5}))
}

func TestContainsConcave(t *testing.T) {
	// U 形：豁口内的点不应命中
	ring := []Coordinate{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 3}, {Lat: 3, Lon: 3},
		{Lat: 3, Lon: 2}, {Lat: 1, Lon: 2}, {Lat: 1, Lon: 1},
		{Lat: 3, Lon: 1}, {Lat: 3, Lon: 0}, {Lat: 0, Lon: 0},
	}
	assert.True(t, Contains(ring, Coordinate{Lat: 0.5, Lon: 1.5}))
	assert.False(t, Contains(ring, Coordinate{Lat: 2, Lon: 1.5}))
}

func TestBBox(t *testing.T) {
	ring := squareRing(51.15, 0.87, 0.05)
	b := ComputeBBox(ring)
	assert.InDelta(t, 0.82, b[0], 1e-9)
	assert.InDelta(t, 51.10, b[1], 1e-9)
	assert.InDelta(t, 0.92, b[2], 1e-9)
	assert.InDelta(t, 51.20, b[3], 1e-9)
	assert.True(t, InBBox(Coordinate{Lat: 51.15, Lon: 0.87}, b))
	assert.False(t, InBBox(Coordinate{Lat: 52, Lon: 0.87}, b))
}

func TestSimplifyUnderLimitStaysAndCloses(t *testing.T) {
	ring := squareRing(51.15, 0.87, 0.05)
	out := Simplify(ring, DefaultMaxVertices)
	assert.Equal(t, ring, out)
	assert.Equal(t, out[0], out[len(out)-1])

	// 未闭合输入也要闭合输出
	open := ring[:len(ring)-1]
	out = Simplify(open, DefaultMaxVertices)
	assert.Equal(t, out[0], out[len(out)-1])
	assert.Len(t, out, len(open)+1)
}

func TestSimplifyDecimatesLargeRing(t *testing.T) {
	big := make([]Coordinate, 0, 1001)
	for i := 0; i < 1000; i++ {
		big = append(big, Coordinate{Lat: float64(i) * 0.0001, Lon: float64(i%7) * 0.0001})
	}
	big = append(big, big[0])
	out := Simplify(big, 50)
	require.NotEmpty(t, out)
	assert.LessOrEqual(t, len(out), 51) // 50 个保留点 + 闭合补点
	assert.Equal(t, big[0], out[0])     // 首点保留
	assert.Equal(t, out[0], out[len(out)-1])

	// 幂等：再次抽稀不改变结果
	again := Simplify(out, 50)
	assert.Equal(t, out, again)
}

func TestSimplifyExactLimitIdempotent(t *testing.T) {
	// 抽稀恰好保留 maxVertices 个点时，闭合补点不得被当作顶点再次触发抽稀
	ring := make([]Coordinate, 0, 100)
	for i := 0; i < 99; i++ {
		ring = append(ring, Coordinate{Lat: float64(i) * 0.001, Lon: float64(i%5) * 0.001})
	}
	ring = append(ring, ring[0]) // 100 个元素的闭合环
	out := Simplify(ring, 50)
	assert.LessOrEqual(t, len(out), 51)
	assert.Equal(t, out[0], out[len(out)-1])
	assert.Equal(t, out, Simplify(out, 50))

	// 已闭合且顶点数恰为上限的环原样保留
	atLimit := Simplify(out, 50)
	assert.Equal(t, out, Simplify(atLimit, 50))
}

func TestCentroidSkipsClosingPoint(t *testing.T) {
	ring := squareRing(51.15, 0.87, 0.05)
	c := Centroid(ring)
	assert.InDelta(t, 51.15, c.Lat, 1e-9)
	assert.InDelta(t, 0.87, c.Lon, 1e-9)
}

func TestHaversineAndRadius(t *testing.T) {
	a := Coordinate{Lat: 51.15, Lon: 0.87}
	b := Coordinate{Lat: 51.15, Lon: 0.87}
	assert.InDelta(t, 0, HaversineM(a, b), 1e-6)

	// 纬度差 1 度约 111 公里
	c := Coordinate{Lat: 52.15, Lon: 0.87}
	d := HaversineM(a, c)
	assert.InDelta(t, 111200, d, 1000)

	ring := squareRing(51.15, 0.87, 0.05)
	r := EstimateRadiusM(Centroid(ring), ring)
	assert.Greater(t, r, 5000.0)
	assert.Less(t, r, 10000.0)
}

func TestRingFromGeometryPolygon(t *testing.T) {
	g := map[string]any{
		"type": "Polygon",
		"coordinates": []any{
			[]any{
				[]any{0.82, 51.10}, []any{0.92, 51.10},
				[]any{0.92, 51.20}, []any{0.82, 51.10},
			},
		},
	}
	ring := RingFromGeometry(g)
	require.Len(t, ring, 4)
	assert.Equal(t, Coordinate{Lat: 51.10, Lon: 0.82}, ring[0])
}

func TestRingFromGeometryMultiPolygonPicksLargest(t *testing.T) {
	small := []any{[]any{0.0, 0.0}, []any{1.0, 0.0}, []any{1.0, 1.0}, []any{0.0, 0.0}}
	large := []any{
		[]any{10.0, 10.0}, []any{11.0, 10.0}, []any{11.0, 11.0},
		[]any{10.0, 11.0}, []any{10.0, 10.0},
	}
	g := map[string]any{
		"type": "MultiPolygon",
		"coordinates": []any{
			[]any{small},
			[]any{large},
		},
	}
	ring := RingFromGeometry(g)
	require.Len(t, ring, 5)
	assert.Equal(t, Coordinate{Lat: 10, Lon: 10}, ring[0])
}

func TestRingFromGeometryRejectsInvalid(t *testing.T) {
	assert.Nil(t, RingFromGeometry(map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}}))
	assert.Nil(t, RingFromGeometry(map[string]any{"type": "Polygon"}))
	// 少于 4 个坐标对的环无效
	g := map[string]any{
		"type": "Polygon",
		"coordinates": []any{
			[]any{[]any{0.0, 0.0}, []any{1.0, 0.0}, []any{0.0, 0.0}},
		},
	}
	assert.Nil(t, RingFromGeometry(g))
}
