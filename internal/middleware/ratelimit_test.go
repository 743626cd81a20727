package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerGeoInjection(t *testing.T) {
	var got PlayerGeo
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PlayerGeoFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
	req.Header.Set("X-Player-ID", "alice")
	req.Header.Set("X-Player-Lat", "51.15")
	req.Header.Set("X-Player-Lon", "0.87")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", got.PlayerID)
	require.True(t, got.HasCoord)
	assert.InDelta(t, 51.15, got.Coord.Lat, 1e-9)
	assert.InDelta(t, 0.87, got.Coord.Lon, 1e-9)
}

func TestPlayerGeoBadCoordsIgnored(t *testing.T) {
	var got PlayerGeo
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PlayerGeoFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
	req.Header.Set("X-Player-Lat", "not-a-number")
	req.Header.Set("X-Player-Lon", "0.87")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, got.HasCoord)
}

func TestPlayerGeoFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
	g := PlayerGeoFrom(req.Context())
	assert.Empty(t, g.PlayerID)
	assert.False(t, g.HasCoord)
}

func TestTokenBucketExhaustion(t *testing.T) {
	tb := &TokenBucket{capacity: 2, tokens: 2}
	assert.True(t, tb.allow())
	assert.True(t, tb.allow())
	assert.False(t, tb.allow())
}

func TestRateLimitReturns429(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_QPS", "1")
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/resolve", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/resolve", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
