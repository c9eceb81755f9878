package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/pkg/otel"
	"projecthub/pkg/outbox"
)

// tracedQuerier 为每条语句创建一个 db span
type tracedQuerier struct {
	q outbox.DBTX
}

func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "query"
	}
	return strings.ToLower(fields[0])
}

func (t tracedQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := otel.DBSpan(ctx, operation(sql), sql)
	tag, err := t.q.Exec(ctx, sql, args...)
	otel.EndDBSpan(span, err)
	return tag, err
}

func (t tracedQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := otel.DBSpan(ctx, operation(sql), sql)
	rows, err := t.q.Query(ctx, sql, args...)
	otel.EndDBSpan(span, err)
	return rows, err
}

func (t tracedQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := otel.DBSpan(ctx, operation(sql), sql)
	return tracedRow{row: t.q.QueryRow(ctx, sql, args...), end: func(err error) { otel.EndDBSpan(span, err) }}
}

type tracedRow struct {
	row pgx.Row
	end func(error)
}

func (r tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	r.end(err)
	return err
}

// PGStore 是基于 pgx 的 Store 实现
type PGStore struct {
	pool   *pgxpool.Pool
	q      outbox.DBTX
	inTx   bool
	logger *zap.Logger
}

func NewPGStore(pool *pgxpool.Pool, logger *zap.Logger) *PGStore {
	return &PGStore{
		pool:   pool,
		q:      tracedQuerier{q: pool},
		logger: logger,
	}
}

func (s *PGStore) Users() UserRepository {
	return &UserRepo{db: s.q, logger: s.logger}
}

func (s *PGStore) Projects() ProjectRepository {
	return &ProjectRepo{db: s.q, logger: s.logger}
}

func (s *PGStore) Tasks() TaskRepository {
	return &TaskRepo{db: s.q, logger: s.logger}
}

func (s *PGStore) Milestones() MilestoneRepository {
	return &MilestoneRepo{db: s.q, logger: s.logger}
}

func (s *PGStore) Notifications() NotificationRepository {
	return &NotificationRepo{db: s.q, logger: s.logger}
}

func (s *PGStore) Events() EventRepository {
	return &EventRepo{db: s.q, logger: s.logger}
}

// WithinTx 开启事务执行 fn；已在事务内时直接复用
func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.NewStorageError("begin tx", err)
	}
	txStore := &PGStore{pool: s.pool, q: tracedQuerier{q: tx}, inTx: true, logger: s.logger}

	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.NewStorageError("commit tx", err)
	}
	return nil
}

// storageErr 把 pgx 错误映射为领域错误
func storageErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, model.ErrConflict)
	}
	return model.NewStorageError(op, err)
}

// likePattern 转义 LIKE 通配符后包成 %term%
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// accessibleProject 是 owner 或成员可见的谓词，$1 为用户 ID，别名 p
const accessibleProject = `(p.owner_id = $1 OR EXISTS (
	SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $1))`
