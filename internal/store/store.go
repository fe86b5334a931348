// 包 store: 协变量、观测点与网格的数据库读取层
package store

import (
	"context"
	"database/sql"

	"covres/internal/covariate"
	"covres/internal/logger"
	"covres/internal/metrics"
	"covres/internal/utils"
)

// Store: 数据库访问入口，持有连接池与方言
type Store struct {
	db *sql.DB
	d  utils.Dialect
}

func AttachDB(db *sql.DB, d utils.Dialect) *Store { return &Store{db: db, d: d} }

// Open: 按方言与 DSN 打开数据库
func Open(d utils.Dialect, dsn string) (*Store, error) {
	db, err := utils.Open(d, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, d: d}, nil
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() utils.Dialect { return s.d }

// 文档注释：读取全部协变量记录
// 背景：记录与取值分两表存储，左连接后按记录 id 聚合；没有任何取值的记录仍会返回。
// 约束：year 为 NULL 的记录视为静态；num 与 level 均为 NULL 的取值跳过。记录顺序按 id 升序。
func (s *Store) LoadRecords(ctx context.Context) ([]covariate.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.lat, r.lon, r.year, v.name, v.num, v.level
        FROM covariate_records r LEFT JOIN covariate_values v ON v.record_id = r.id
        ORDER BY r.id, v.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []covariate.Record
	last := int64(-1)
	for rows.Next() {
		var (
			id       int64
			lat, lon float64
			year     sql.NullInt64
			name     sql.NullString
			num      sql.NullFloat64
			level    sql.NullString
		)
		if err := rows.Scan(&id, &lat, &lon, &year, &name, &num, &level); err != nil {
			return nil, err
		}
		if id != last {
			out = append(out, covariate.Record{Lat: lat, Lon: lon, Year: int(year.Int64), Static: !year.Valid, Values: covariate.Values{}})
			last = id
		}
		if !name.Valid {
			continue
		}
		r := &out[len(out)-1]
		switch {
		case level.Valid:
			r.Values[name.String] = covariate.Level(level.String)
		case num.Valid:
			r.Values[name.String] = covariate.Number(num.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("db_records_loaded", "records", len(out))
	metrics.RecordsLoaded.WithLabelValues("sql").Add(float64(len(out)))
	return out, nil
}

// LoadSamples: 按 idx 顺序读取观测点；索引重排为连续位置
func (s *Store) LoadSamples(ctx context.Context) ([]covariate.SampleLocation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT lat, lon, year FROM sample_locations ORDER BY idx")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []covariate.SampleLocation
	for rows.Next() {
		sl := covariate.SampleLocation{Index: len(out)}
		if err := rows.Scan(&sl.Lat, &sl.Lon, &sl.Year); err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// LoadGrid: 按 idx 顺序读取外推网格
func (s *Store) LoadGrid(ctx context.Context) ([]covariate.GridCell, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT lat, lon FROM grid_cells ORDER BY idx")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []covariate.GridCell
	for rows.Next() {
		c := covariate.GridCell{Index: len(out)}
		if err := rows.Scan(&c.Lat, &c.Lon); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountRecords: 记录总数，用于导入前判断是否为空库
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	var c int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM covariate_records").Scan(&c)
	return c, err
}
