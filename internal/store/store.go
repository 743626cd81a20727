// 包 store: 提供与 PostgreSQL 的数据访问层，包含领地、称王记录与统计读写
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/lib/pq"

	"kingdom-api/internal/geo"
	"kingdom-api/internal/logger"
)

// Store: 数据库访问入口，持有连接池并提供领地/统计接口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	return &Store{db: db}, nil
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// UpsertTerritories: 写入/更新一批领地
// 背景：解析成功后落库，作为缓存之外的权威快照；ruler 字段不被拉取结果覆盖
func (s *Store) UpsertTerritories(ctx context.Context, ts []geo.Territory) error {
	for _, t := range ts {
		b, err := json.Marshal(t.Boundary)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO _kd_territories(id, name, center_lat, center_lon, radius_m, boundary, fetched_at)
        VALUES($1,$2,$3,$4,$5,$6,now())
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, center_lat=EXCLUDED.center_lat, center_lon=EXCLUDED.center_lon,
            radius_m=EXCLUDED.radius_m, boundary=EXCLUDED.boundary, fetched_at=now()`,
			t.ID, t.Name, t.Center.Lat, t.Center.Lon, t.RadiusM, b)
		if err != nil {
			return err
		}
	}
	logger.L().Debug("db_territories_upsert", "count", len(ts))
	return nil
}

// ListTerritoriesNear: 查询中心附近的领地
// 约束：先按经纬度窗口粗筛（度数近似），精确的球面距离过滤在调用方完成
func (s *Store) ListTerritoriesNear(ctx context.Context, center geo.Coordinate, radiusM float64) ([]geo.Territory, error) {
	dDeg := radiusM/111320.0 + 0.5
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ruler, center_lat, center_lon, radius_m, boundary
        FROM _kd_territories
        WHERE center_lat BETWEEN $1 AND $2 AND center_lon BETWEEN $3 AND $4`,
		center.Lat-dDeg, center.Lat+dDeg, center.Lon-dDeg, center.Lon+dDeg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []geo.Territory
	for rows.Next() {
		var t geo.Territory
		var b []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Ruler, &t.Center.Lat, &t.Center.Lon, &t.RadiusM, &b); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &t.Boundary); err != nil {
			logger.L().Error("db_boundary_decode_error", "id", t.ID, "err", err)
			continue
		}
		t.BBox = geo.ComputeBBox(t.Boundary)
		if geo.HaversineM(center, t.Center) <= radiusM+t.RadiusM {
			out = append(out, t)
		}
	}
	logger.L().Debug("db_territories_near", "lat", center.Lat, "lon", center.Lon, "count", len(out))
	return out, rows.Err()
}

// GetRuler: 读取领地当前统治者；领地不存在时返回错误
func (s *Store) GetRuler(ctx context.Context, territoryID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT ruler FROM _kd_territories WHERE id=$1`, territoryID)
	var ruler string
	if err := row.Scan(&ruler); err != nil {
		return "", err
	}
	return ruler, nil
}

// Claim: 变更领地统治者并追加称王记录
// 背景：战斗裁决在游戏后端完成，这里只落结果；同一事务内更新与记账
func (s *Store) Claim(ctx context.Context, territoryID, player string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE _kd_territories SET ruler=$1 WHERE id=$2`, player, territoryID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return errors.New("unknown territory")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _kd_claims(territory_id, player) VALUES($1,$2)`, territoryID, player); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Info("db_claim", "territory", territoryID, "player", player)
	return nil
}

// IncrStats: 成功解析后递增总计与当日计数；玩家标识存在时递增玩家计数
func (s *Store) IncrStats(ctx context.Context, player string) error {
	_, _ = s.db.ExecContext(ctx, "UPDATE _kd_stats_total SET total_resolutions=total_resolutions+1 WHERE id=1")
	_, _ = s.db.ExecContext(ctx, "INSERT INTO _kd_stats_daily(day, resolutions) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET resolutions=_kd_stats_daily.resolutions+1")
	if player != "" {
		_, _ = s.db.ExecContext(ctx, "UPDATE _kd_stats_total SET total_players=total_players+1 WHERE id=1")
		_, _ = s.db.ExecContext(ctx, "INSERT INTO _kd_stats_daily(day, players) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET players=_kd_stats_daily.players+1")
	}
	return nil
}

// Totals: 统计返回结构，包含累计与当日解析次数
type Totals struct {
	Total int64
	Today int64
}

// GetTotals: 读取累计与当日解析次数，用于接口返回
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, "SELECT total_resolutions FROM _kd_stats_total WHERE id=1")
	_ = row.Scan(&t.Total)
	row2 := s.db.QueryRowContext(ctx, "SELECT resolutions FROM _kd_stats_daily WHERE day=current_date")
	_ = row2.Scan(&t.Today)
	return &t, nil
}

// 文档注释：记录最近的区域查询（去重累加）
// 背景：作为后台边界刷新的候选来源，保留最近被查询的区域键与次数；不影响主流程。
func (s *Store) RecordRecent(ctx context.Context, key string, center geo.Coordinate, radiusM float64) error {
	_, _ = s.db.ExecContext(ctx, `INSERT INTO _kd_recent_queries(query_key, center_lat, center_lon, radius_m, last_seen, queries)
        VALUES($1,$2,$3,$4,now(),1)
        ON CONFLICT (query_key) DO UPDATE SET last_seen=now(), queries=_kd_recent_queries.queries+1`,
		key, center.Lat, center.Lon, radiusM)
	return nil
}

// RecentArea: 刷新候选区域
type RecentArea struct {
	Key     string
	Center  geo.Coordinate
	RadiusM float64
}

// 文档注释：获取待刷新的活跃区域列表
// 背景：按最近访问排序返回指定数量，供周期刷新任务逐区域重拉边界。
func (s *Store) FetchRecentAreas(ctx context.Context, hours int, limit int) ([]RecentArea, error) {
	if hours <= 0 {
		hours = 24 * 7
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT query_key, center_lat, center_lon, radius_m
        FROM _kd_recent_queries
        WHERE last_seen >= now() - make_interval(hours => $1)
        ORDER BY last_seen DESC
        LIMIT $2`, hours, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecentArea
	for rows.Next() {
		var a RecentArea
		if err := rows.Scan(&a.Key, &a.Center.Lat, &a.Center.Lon, &a.RadiusM); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
