package migrate

import (
	"database/sql"

	"covres/internal/logger"
)

// 背景：首次运行自动创建协变量、观测点与网格表，保障后续导入与读取
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；只用 postgres 与 sqlite 共同支持的类型
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS covariate_records (
            id BIGINT PRIMARY KEY,
            lat DOUBLE PRECISION NOT NULL,
            lon DOUBLE PRECISION NOT NULL,
            year INTEGER
        )`,
		`CREATE INDEX IF NOT EXISTS idx_covariate_records_year ON covariate_records(year)`,
		`CREATE TABLE IF NOT EXISTS covariate_values (
            record_id BIGINT NOT NULL REFERENCES covariate_records(id),
            name TEXT NOT NULL,
            num DOUBLE PRECISION,
            level TEXT,
            PRIMARY KEY (record_id, name)
        )`,
		`CREATE TABLE IF NOT EXISTS sample_locations (
            idx INTEGER PRIMARY KEY,
            lat DOUBLE PRECISION NOT NULL,
            lon DOUBLE PRECISION NOT NULL,
            year INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS grid_cells (
            idx INTEGER PRIMARY KEY,
            lat DOUBLE PRECISION NOT NULL,
            lon DOUBLE PRECISION NOT NULL
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
