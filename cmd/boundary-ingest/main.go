// 离线灌注工具：按城镇名列表预拉取边界并落库、落文件缓存
// 背景：新开服区域先行批量灌注，线上解析时尽量命中本地数据，少打外部接口
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/geocache"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/migrate"
	"kingdom-api/internal/nominatim"
	"kingdom-api/internal/store"
	"kingdom-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	var listPath string
	var cacheDir string
	var skipDB bool
	flag.StringVar(&listPath, "file", "", "每行一个城镇名的列表文件；为空时从命令行参数取名")
	flag.StringVar(&cacheDir, "cache", filepath.Join("data", "geocache"), "文件缓存目录")
	flag.BoolVar(&skipDB, "skip-db", false, "只写文件缓存，不连数据库")
	flag.Parse()

	names := flag.Args()
	if listPath != "" {
		f, err := os.Open(listPath)
		if err != nil {
			l.Error("list_open_error", "file", listPath, "err", err)
			os.Exit(1)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			names = append(names, line)
		}
		f.Close()
	}
	if len(names) == 0 {
		l.Error("no_places_given")
		os.Exit(1)
	}

	cache, err := geocache.New(cacheDir)
	if err != nil {
		l.Error("geocache_error", "dir", cacheDir, "err", err)
		os.Exit(1)
	}

	var st *store.Store
	if !skipDB {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
	}

	c := nominatim.NewFromEnv()
	ctx := context.Background()
	okCount := 0
	for _, name := range names {
		p, err := c.SearchBoundary(ctx, name)
		if err != nil {
			l.Error("ingest_search_fail", "name", name, "err", err)
			continue
		}
		t, err := nominatim.TerritoryFromPlace(p)
		if err != nil {
			l.Error("ingest_no_polygon", "name", name, "err", err)
			continue
		}
		if err := cache.SaveRing(name, t.ID, t.Boundary); err != nil {
			l.Error("ingest_ring_save_fail", "name", name, "err", err)
		}
		if st != nil {
			if err := st.UpsertTerritories(ctx, []geo.Territory{*t}); err != nil {
				l.Error("ingest_upsert_fail", "name", name, "err", err)
				continue
			}
		}
		okCount++
		l.Info("ingest_ok", "name", name, "id", t.ID, "vertices", len(t.Boundary), "radius_m", int64(t.RadiusM))
	}
	l.Info("ingest_done", "requested", len(names), "succeeded", okCount)
}
