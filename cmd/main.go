// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"kingdom-api/internal/api"
	"kingdom-api/internal/geo"
	"kingdom-api/internal/geocache"
	"kingdom-api/internal/geoip"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
	"kingdom-api/internal/middleware"
	"kingdom-api/internal/migrate"
	"kingdom-api/internal/nominatim"
	"kingdom-api/internal/refresh"
	"kingdom-api/internal/resolver"
	"kingdom-api/internal/sources"
	"kingdom-api/internal/store"
	"kingdom-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		l.Error("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
	}
	st := store.AttachDB(db)
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(context.Background()).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
	} else {
		l.Info("redis_ping_ok")
	}

	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = filepath.Join("data", "geocache")
	}
	cache, err := geocache.New(cacheDir)
	if err != nil {
		l.Error("geocache_error", "dir", cacheDir, "err", err)
		os.Exit(1)
	}

	gip := geoip.OpenFromEnv()

	// 文档注释：来源管理器初始化
	// 背景：注册顺序即优先级；线上 Nominatim 优先，本地快照目录存在时作为离线兜底。
	mgr := sources.NewManager()
	mgr.Register(sources.NewNominatim(nominatim.NewFromEnv(), cache))
	snapDir := os.Getenv("SNAPSHOT_DIR")
	if snapDir == "" {
		snapDir = filepath.Join("data", "boundaries")
	}
	if snap, err := sources.NewSnapshot(snapDir); err == nil {
		mgr.Register(snap)
	} else {
		l.Info("snapshot_skipped", "dir", snapDir, "err", err)
	}
	mgr.Start(context.Background())

	radiusM := 8000.0
	if s := os.Getenv("RESOLVE_RADIUS_M"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f > 0 {
			radiusM = f
		}
	}

	// 拉取组合：来源取数成功后同步落库，并用库中归属补全 ruler
	fetch := func(ctx context.Context, center geo.Coordinate, r float64) ([]geo.Territory, string, error) {
		ts, src, err := mgr.Fetch(ctx, center, r)
		if err != nil {
			return nil, src, err
		}
		if err := st.UpsertTerritories(ctx, ts); err != nil {
			l.Error("territories_upsert_error", "err", err)
		}
		for i := range ts {
			if ruler, err := st.GetRuler(ctx, ts[i].ID); err == nil {
				ts[i].Ruler = ruler
			}
		}
		return ts, src, nil
	}

	reg := resolver.NewRegistry(cache, fetch, radiusM, func(playerID string, e resolver.Event) {
		l.Info("territory_transition", "player", playerID, "type", string(e.Type), "territory", e.TerritoryID, "name", e.Name)
	})

	if os.Getenv("REFRESH_ENABLE") == "" || os.Getenv("REFRESH_ENABLE") == "true" {
		refresh.StartWeekly(st, mgr, cache)
	}

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(api.Deps{
		Store:    st,
		Redis:    rc,
		Registry: reg,
		GeoIP:    gip,
		Cache:    cache,
		Fetch:    fetch,
		RadiusM:  radiusM,
	})
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	mux.HandleFunc(apiBase+"/reload-boundaries", func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get("x-admin-token")
		if t == "" || t != os.Getenv("ADMIN_TOKEN") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		cache.Clear()
		l.Info("boundaries_cache_cleared")
		w.WriteHeader(http.StatusNoContent)
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler}
	if os.Getenv("TLS_ENABLE") == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		_ = utils.EnsureSelfSignedCert(certPath, keyPath, "kingdom-api.local")
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		_ = s.ListenAndServeTLS(certPath, keyPath)
		return
	}
	l.Info("listening", "addr", addr)
	_ = s.ListenAndServe()
}
