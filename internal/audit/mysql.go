package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	xerrors "EcoBot-Chain/internal/errors"
)

// MySQLConfig 描述统计库连接参数。
type MySQLConfig struct {
	DSN             string
	Agent           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// MySQLRecorder 将统计事件写入 statistics_events 表。
type MySQLRecorder struct {
	db    *sql.DB
	agent string
	newID func() string
}

const insertEventSQL = `INSERT INTO statistics_events (id, agent, event_type, occurred_at, payload)
    VALUES (?, ?, ?, ?, ?)`

// NewMySQLRecorder 连接数据库并执行内置迁移。
func NewMySQLRecorder(ctx context.Context, cfg MySQLConfig) (*MySQLRecorder, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := newMySQLRecorder(db, cfg.Agent)
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func newMySQLRecorder(db *sql.DB, agent string) *MySQLRecorder {
	return &MySQLRecorder{db: db, agent: agent, newID: uuid.NewString}
}

func openDatabase(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeConfigurationMissing, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(4)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}
	return db, nil
}

// Record 实现 Recorder 接口，重复 id（1062）视为已写入。
func (r *MySQLRecorder) Record(ctx context.Context, event Event) error {
	data := event.Data
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化统计事件失败")
	}
	_, err = r.db.ExecContext(ctx, insertEventSQL,
		r.newID(), r.agent, event.Type, event.Timestamp.UnixMilli(), string(payload))
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入统计事件失败")
	}
	return nil
}

// Close 实现 Recorder 接口。
func (r *MySQLRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
