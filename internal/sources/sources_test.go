package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/geocache"
	"kingdom-api/internal/nominatim"
)

// fakeSource：可编排返回值的测试来源
type fakeSource struct {
	name     string
	ts       []geo.Territory
	fetchErr error
	hbErr    error
	calls    int
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Fetch(ctx context.Context, center geo.Coordinate, radiusM float64) ([]geo.Territory, error) {
	f.calls++
	return f.ts, f.fetchErr
}
func (f *fakeSource) Heartbeat(ctx context.Context) error { return f.hbErr }

func oneTerritory(id string) []geo.Territory {
	ring := []geo.Coordinate{
		{Lat: 51.10, Lon: 0.82}, {Lat: 51.10, Lon: 0.92},
		{Lat: 51.20, Lon: 0.92}, {Lat: 51.10, Lon: 0.82},
	}
	center := geo.Centroid(ring)
	return []geo.Territory{{
		ID: id, Name: id, Center: center, Boundary: ring,
		RadiusM: geo.EstimateRadiusM(center, ring),
		BBox:    geo.ComputeBBox(ring),
	}}
}

func TestManagerFirstHealthyWins(t *testing.T) {
	m := NewManager()
	a := &fakeSource{name: "a", ts: oneTerritory("a1")}
	b := &fakeSource{name: "b", ts: oneTerritory("b1")}
	m.Register(a)
	m.Register(b)

	ts, src, err := m.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.NoError(t, err)
	assert.Equal(t, "a", src)
	assert.Equal(t, "a1", ts[0].ID)
	assert.Equal(t, 0, b.calls, "首选来源成功时不应访问后备来源")
}

func TestManagerFailover(t *testing.T) {
	m := NewManager()
	m.Register(&fakeSource{name: "a", fetchErr: errors.New("down")})
	m.Register(&fakeSource{name: "b", ts: oneTerritory("b1")})

	ts, src, err := m.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.NoError(t, err)
	assert.Equal(t, "b", src)
	assert.Equal(t, "b1", ts[0].ID)
}

func TestManagerEmptyResultIsFailure(t *testing.T) {
	m := NewManager()
	m.Register(&fakeSource{name: "a"}) // 返回空列表
	m.Register(&fakeSource{name: "b", ts: oneTerritory("b1")})

	_, src, err := m.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.NoError(t, err)
	assert.Equal(t, "b", src)
}

func TestManagerAllFail(t *testing.T) {
	m := NewManager()
	m.Register(&fakeSource{name: "a", fetchErr: errors.New("a down")})
	m.Register(&fakeSource{name: "b", fetchErr: errors.New("b down")})

	_, _, err := m.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b down")
}

func TestManagerSkipsUnhealthy(t *testing.T) {
	m := NewManager()
	a := &fakeSource{name: "a", ts: oneTerritory("a1"), hbErr: errors.New("sick")}
	b := &fakeSource{name: "b", ts: oneTerritory("b1")}
	m.Register(a)
	m.Register(b)
	m.doHeartbeat(context.Background())

	ts, src, err := m.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.NoError(t, err)
	assert.Equal(t, "b", src)
	assert.Equal(t, "b1", ts[0].ID)
	assert.Equal(t, 0, a.calls)

	// 心跳恢复后重新参与
	a.hbErr = nil
	m.doHeartbeat(context.Background())
	_, src, err = m.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.NoError(t, err)
	assert.Equal(t, "a", src)
}

func TestManagerNoHealthySource(t *testing.T) {
	m := NewManager()
	a := &fakeSource{name: "a", hbErr: errors.New("sick")}
	m.Register(a)
	m.doHeartbeat(context.Background())
	_, _, err := m.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no healthy")
}

// 假 Nominatim 服务：反查按纬度给出镇名，边界查询计数以便断言缓存命中
func fakeNominatim(t *testing.T, searches *int32, canterburyPolygon bool) *nominatim.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/reverse":
			lat, _ := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
			if lat > 51.2 {
				_, _ = w.Write([]byte(`{"address": {"town": "Canterbury"}}`))
			} else {
				_, _ = w.Write([]byte(`{"address": {"town": "Ashford"}}`))
			}
		case "/search":
			atomic.AddInt32(searches, 1)
			if r.URL.Query().Get("q") == "Ashford" {
				_, _ = w.Write([]byte(`[{
                    "osm_type": "relation", "osm_id": 123, "name": "Ashford",
                    "geojson": {"type": "Polygon",
                        "coordinates": [[[0.82,51.10],[0.92,51.10],[0.92,51.20],[0.82,51.10]]]}
                }]`))
			} else if canterburyPolygon {
				_, _ = w.Write([]byte(`[{
                    "osm_type": "relation", "osm_id": 456, "name": "Canterbury",
                    "geojson": {"type": "Polygon",
                        "coordinates": [[[1.02,51.24],[1.12,51.24],[1.12,51.32],[1.02,51.24]]]}
                }]`))
			} else {
				// Canterbury 只有点要素，无多边形
				_, _ = w.Write([]byte(`[{"osm_type": "node", "osm_id": 7, "name": "Canterbury"}]`))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	c := nominatim.NewClient(srv.URL, "", srv.Client())
	c.SetPace(time.Nanosecond)
	return c
}

func TestNominatimSourceRingCacheReadThrough(t *testing.T) {
	var searches int32
	c := fakeNominatim(t, &searches, true)
	rings, err := geocache.New(t.TempDir())
	require.NoError(t, err)
	s := NewNominatim(c, rings)
	center := geo.Coordinate{Lat: 51.15, Lon: 0.87}

	ts, err := s.Fetch(context.Background(), center, 8000)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&searches))

	// 7 天内的边界按地名直接复用，不再发起外部边界查询
	ts, err = s.Fetch(context.Background(), center, 8000)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&searches))
	assert.Equal(t, "relation/123", ts[0].ID)
	assert.Equal(t, "Ashford", ts[0].Name)
	assert.Equal(t, ts[0].Boundary[0], ts[0].Boundary[len(ts[0].Boundary)-1])
}

func TestNominatimSourceDropsPlacesWithoutPolygon(t *testing.T) {
	var searches int32
	c := fakeNominatim(t, &searches, false)
	s := NewNominatim(c, nil)

	ts, err := s.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "relation/123", ts[0].ID)
}

const snapshotFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"name": "Ashford", "id": "relation/1", "ruler": "alice"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[0.82,51.10],[0.92,51.10],[0.92,51.20],[0.82,51.20],[0.82,51.10]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"id": "no-name"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[1.0,52.0],[1.1,52.0],[1.1,52.1],[1.0,52.0]]]
      }
    }
  ]
}`

func TestSnapshotLoadsAndFilters(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kent.geojson"), []byte(snapshotFixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0o644))

	s, err := NewSnapshot(dir)
	require.NoError(t, err)
	require.NoError(t, s.Heartbeat(context.Background()))

	// 无 name 的要素被丢弃
	near, err := s.Fetch(context.Background(), geo.Coordinate{Lat: 51.15, Lon: 0.87}, 8000)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "relation/1", near[0].ID)
	assert.Equal(t, "alice", near[0].Ruler)
	assert.Equal(t, near[0].Boundary[0], near[0].Boundary[len(near[0].Boundary)-1])

	// 远处查询为空
	far, err := s.Fetch(context.Background(), geo.Coordinate{Lat: 40.0, Lon: -74.0}, 8000)
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestSnapshotEmptyDirUnhealthy(t *testing.T) {
	s, err := NewSnapshot(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Heartbeat(context.Background()))
}

func TestSnapshotMissingDir(t *testing.T) {
	_, err := NewSnapshot(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
