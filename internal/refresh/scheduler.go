// 包 refresh：调度每周的边界重拉任务，运行在服务进程内的后台协程
package refresh

import (
	"context"
	"os"
	"strconv"
	"time"

	"kingdom-api/internal/geocache"
	"kingdom-api/internal/logger"
	"kingdom-api/internal/metrics"
	"kingdom-api/internal/sources"
	"kingdom-api/internal/store"
)

// nextMondayAt：计算下一次周一指定小时的时间点
// 约束：基于传入时区 loc 与整点 hour；仅前推至未来时间
func nextMondayAt(loc *time.Location, hour int) time.Time {
	now := time.Now().In(loc)
	d := now
	for i := 0; i <= 7; i++ {
		d = now.AddDate(0, 0, i)
		if d.Weekday() == time.Monday {
			t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
			if t.After(now) {
				return t
			}
		}
	}
	d = now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
}

// StartWeekly：每周一凌晨重拉活跃区域的边界
// 背景：城镇边界变化缓慢，每周一次足够；逐区域经过来源管理器（含节流），
// 结果同时回写数据库与文件缓存。错误记日志后继续调度。
// 约束：REFRESH_HOUR 覆盖小时（整数）；REFRESH_TZ 覆盖时区名，默认 UTC
func StartWeekly(st *store.Store, mgr *sources.Manager, cache *geocache.Cache) {
	l := logger.L()
	tz := os.Getenv("REFRESH_TZ")
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	hour := 3
	if h := os.Getenv("REFRESH_HOUR"); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			hour = n
		}
	}
	next := nextMondayAt(loc, hour)
	go func() {
		for {
			time.Sleep(time.Until(next))
			l.Info("refresh_start", "next", next)
			runOnce(st, mgr, cache)
			next = next.AddDate(0, 0, 7)
		}
	}()
}

func runOnce(st *store.Store, mgr *sources.Manager, cache *geocache.Cache) {
	l := logger.L()
	metrics.RefreshRunsTotal.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	areas, err := st.FetchRecentAreas(ctx, 24*7, 100)
	if err != nil {
		l.Error("refresh_candidates_error", "err", err)
		return
	}
	for _, a := range areas {
		ts, src, err := mgr.Fetch(ctx, a.Center, a.RadiusM)
		if err != nil {
			l.Error("refresh_area_error", "key", a.Key, "err", err)
			continue
		}
		if err := st.UpsertTerritories(ctx, ts); err != nil {
			l.Error("refresh_upsert_error", "key", a.Key, "err", err)
		}
		if cache != nil {
			_ = cache.Save(a.Key, ts, a.Center, a.RadiusM)
		}
		l.Info("refresh_area_done", "key", a.Key, "source", src, "territories", len(ts))
	}
	l.Info("refresh_done", "areas", len(areas))
}
