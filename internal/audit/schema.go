package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"EcoBot-Chain/deploy/migrations"
	xerrors "EcoBot-Chain/internal/errors"
)

// schemaSource holds the statistics DDL, one file per step.
var schemaSource fs.FS = migrations.Files

const (
	schemaLockName    = "ecobot_statistics_schema"
	schemaLockSeconds = 30

	lockSchemaSQL    = `SELECT GET_LOCK(?, ?)`
	unlockSchemaSQL  = `SELECT RELEASE_LOCK(?)`
	appliedStepsSQL  = `SELECT step FROM statistics_schema`
	recordStepSQL    = `INSERT INTO statistics_schema (step, applied_by, applied_at) VALUES (?, ?, ?)`
	createStepLogSQL = `CREATE TABLE IF NOT EXISTS statistics_schema (
        step VARCHAR(64) NOT NULL PRIMARY KEY,
        applied_by VARCHAR(64) NOT NULL,
        applied_at BIGINT NOT NULL
)`
)

type schemaStep struct {
	name       string
	statements []string
}

// ensureSchema applies the statistics DDL steps that have not run yet.
// Every agent process opens the same database at startup, so the steps run
// under a MySQL named lock held on one connection. MySQL commits DDL
// implicitly, so a step is marked done after its statements instead of in a
// transaction; every statement is written to be re-runnable.
func (r *MySQLRecorder) ensureSchema(ctx context.Context) error {
	steps, err := schemaSteps(schemaSource)
	if err != nil {
		return err
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取统计库连接失败")
	}
	defer conn.Close()

	var locked sql.NullInt64
	if err := conn.QueryRowContext(ctx, lockSchemaSQL, schemaLockName, schemaLockSeconds).Scan(&locked); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取统计库迁移锁失败")
	}
	if locked.Int64 != 1 {
		return xerrors.New(xerrors.CodeStorageFailure, "等待统计库迁移锁超时")
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), unlockSchemaSQL, schemaLockName)
	}()

	if _, err := conn.ExecContext(ctx, createStepLogSQL); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 statistics_schema 表失败")
	}
	done, err := appliedSteps(ctx, conn)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if done[step.name] {
			continue
		}
		for _, stmt := range step.statements {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("执行统计库迁移 %s 失败", step.name))
			}
		}
		if _, err := conn.ExecContext(ctx, recordStepSQL, step.name, r.agent, time.Now().UnixMilli()); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录统计库迁移失败")
		}
	}
	return nil
}

func appliedSteps(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, appliedStepsSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 statistics_schema 失败")
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var step string
		if err := rows.Scan(&step); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 statistics_schema 失败")
		}
		done[step] = true
	}
	return done, rows.Err()
}

// schemaSteps reads *.sql from source in file name order. A step is named
// after its file without the extension.
func schemaSteps(source fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(source, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取统计库迁移文件失败: %w", err)
	}
	sort.Strings(names)

	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(source, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		var statements []string
		for _, stmt := range strings.Split(string(content), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				statements = append(statements, stmt)
			}
		}
		if len(statements) > 0 {
			steps = append(steps, schemaStep{name: strings.TrimSuffix(path.Base(name), ".sql"), statements: statements})
		}
	}
	return steps, nil
}
