package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"covres/internal/covariate"
	"covres/internal/logger"
	"covres/internal/metrics"
	"covres/internal/utils"
)

// batchSize：每批提交的行数
const batchSize = 5000

// batch：分批提交的事务；每次提交后重新开启事务并重新准备语句
type batch struct {
	ctx   context.Context
	db    *sql.DB
	tx    *sql.Tx
	sqls  []string
	stmts []*sql.Stmt
	count int
	event string
}

func newBatch(ctx context.Context, db *sql.DB, event string, sqls ...string) (*batch, error) {
	b := &batch{ctx: ctx, db: db, sqls: sqls, event: event}
	if err := b.begin(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *batch) begin() error {
	tx, err := b.db.BeginTx(b.ctx, nil)
	if err != nil {
		return err
	}
	b.tx = tx
	b.stmts = b.stmts[:0]
	for _, q := range b.sqls {
		st, err := tx.PrepareContext(b.ctx, q)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		b.stmts = append(b.stmts, st)
	}
	return nil
}

func (b *batch) exec(i int, args ...any) error {
	_, err := b.stmts[i].ExecContext(b.ctx, args...)
	return err
}

// done 记一行；满一批时提交并开启下一批
func (b *batch) done() error {
	b.count++
	if b.count%batchSize != 0 {
		return nil
	}
	logger.L().Info(b.event+"_progress", "count", b.count)
	if err := b.tx.Commit(); err != nil {
		return err
	}
	return b.begin()
}

func (b *batch) commit() error {
	if err := b.tx.Commit(); err != nil {
		return err
	}
	logger.L().Info(b.event+"_done", "count", b.count)
	return nil
}

// clear 在首批事务内清空表；首批失败时旧内容随回滚保留
func (b *batch) clear(table string) error {
	if _, err := b.tx.ExecContext(b.ctx, "DELETE FROM "+table); err != nil {
		b.rollback()
		return err
	}
	return nil
}

func (b *batch) rollback() { _ = b.tx.Rollback() }

// 文档注释：批量写入协变量记录及其取值
// 背景：记录 id 由当前最大 id 顺延分配，避免依赖自增语法在不同方言间的差异。
// 约束：静态记录的 year 写 NULL；数值写 num 列，分类水平写 level 列，缺失值不写入。
// 异常：任一行失败时回滚当前批次并返回错误；已提交的批次保留。
func ImportRecords(ctx context.Context, db *sql.DB, d utils.Dialect, records []covariate.Record) (int, error) {
	var next int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM covariate_records").Scan(&next); err != nil {
		return 0, err
	}
	logger.L().Info("import_records_start", "records", len(records), "first_id", next+1)
	b, err := newBatch(ctx, db, "import_records",
		"INSERT INTO covariate_records(id, lat, lon, year) VALUES("+d.Placeholders(4)+")",
		"INSERT INTO covariate_values(record_id, name, num, level) VALUES("+d.Placeholders(4)+")",
	)
	if err != nil {
		return 0, err
	}
	for i, r := range records {
		next++
		var year any
		if !r.Static {
			year = r.Year
		}
		if err := b.exec(0, next, r.Lat, r.Lon, year); err != nil {
			b.rollback()
			return b.count, fmt.Errorf("record %d: %w", i, err)
		}
		for _, name := range covariate.Names([]covariate.Record{r}) {
			v := r.Values[name]
			if v.Missing() {
				continue
			}
			var num, level any
			if v.IsLevel {
				level = v.Str
			} else {
				num = v.Num
			}
			if err := b.exec(1, next, name, num, level); err != nil {
				b.rollback()
				return b.count, fmt.Errorf("record %d value %q: %w", i, name, err)
			}
		}
		if err := b.done(); err != nil {
			return b.count, err
		}
	}
	if err := b.commit(); err != nil {
		return b.count, err
	}
	metrics.RecordsLoaded.WithLabelValues("import").Add(float64(b.count))
	return b.count, nil
}

// ImportSamples 替换 sample_locations 的全部内容，idx 即观测序号；清空与首批写入同属一个事务
func ImportSamples(ctx context.Context, db *sql.DB, d utils.Dialect, samples []covariate.SampleLocation) (int, error) {
	b, err := newBatch(ctx, db, "import_samples",
		"INSERT INTO sample_locations(idx, lat, lon, year) VALUES("+d.Placeholders(4)+")")
	if err != nil {
		return 0, err
	}
	if err := b.clear("sample_locations"); err != nil {
		return 0, err
	}
	for _, s := range samples {
		if err := b.exec(0, s.Index, s.Lat, s.Lon, s.Year); err != nil {
			b.rollback()
			return b.count, fmt.Errorf("sample %d: %w", s.Index, err)
		}
		if err := b.done(); err != nil {
			return b.count, err
		}
	}
	return b.count, b.commit()
}

// ImportGrid 替换 grid_cells 的全部内容
func ImportGrid(ctx context.Context, db *sql.DB, d utils.Dialect, grid []covariate.GridCell) (int, error) {
	b, err := newBatch(ctx, db, "import_grid",
		"INSERT INTO grid_cells(idx, lat, lon) VALUES("+d.Placeholders(3)+")")
	if err != nil {
		return 0, err
	}
	if err := b.clear("grid_cells"); err != nil {
		return 0, err
	}
	for _, c := range grid {
		if err := b.exec(0, c.Index, c.Lat, c.Lon); err != nil {
			b.rollback()
			return b.count, fmt.Errorf("grid cell %d: %w", c.Index, err)
		}
		if err := b.done(); err != nil {
			return b.count, err
		}
	}
	return b.count, b.commit()
}
