package migrate

import (
	"database/sql"

	"kingdom-api/internal/logger"
)

// 背景：首次运行自动创建领地、称王记录与统计所需的表结构
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _kd_territories (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            ruler TEXT NOT NULL DEFAULT '',
            center_lat DOUBLE PRECISION NOT NULL,
            center_lon DOUBLE PRECISION NOT NULL,
            radius_m DOUBLE PRECISION NOT NULL,
            boundary JSONB NOT NULL,
            fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_territories_center ON _kd_territories(center_lat, center_lon)`,
		`CREATE TABLE IF NOT EXISTS _kd_claims (
            id SERIAL PRIMARY KEY,
            territory_id TEXT NOT NULL REFERENCES _kd_territories(id),
            player TEXT NOT NULL,
            claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_claims_territory ON _kd_claims(territory_id, claimed_at)`,
		`CREATE TABLE IF NOT EXISTS _kd_stats_total (
            id INT PRIMARY KEY,
            total_resolutions BIGINT NOT NULL DEFAULT 0,
            total_players BIGINT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS _kd_stats_daily (
            day DATE PRIMARY KEY,
            resolutions BIGINT NOT NULL DEFAULT 0,
            players BIGINT NOT NULL DEFAULT 0
        )`,
		`INSERT INTO _kd_stats_total(id, total_resolutions, total_players)
         VALUES(1, 0, 0)
         ON CONFLICT (id) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS _kd_recent_queries (
            query_key TEXT PRIMARY KEY,
            center_lat DOUBLE PRECISION NOT NULL,
            center_lon DOUBLE PRECISION NOT NULL,
            radius_m DOUBLE PRECISION NOT NULL,
            last_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
            queries BIGINT NOT NULL DEFAULT 0
        )`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
