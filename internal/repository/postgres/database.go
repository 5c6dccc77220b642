package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/bullion/compliance-service/internal/config"
	"github.com/bullion/compliance-service/internal/repository"
)

var _ repository.Store = (*Database)(nil)

// querier is satisfied by the pool and by an open transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the subset of *pgxpool.Pool the store needs
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Database implements repository.Store on PostgreSQL
type Database struct {
	pool DB
}

// NewDatabase wraps an existing pool
func NewDatabase(pool DB) *Database {
	return &Database{pool: pool}
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}
	poolCfg.MinConns = cfg.MinIdleConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return pool, nil
}

// NewQueryBuilder returns a squirrel builder using $n placeholders
func NewQueryBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// inTx runs fn in a transaction, rolling back when fn fails
func (db *Database) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit transaction")
}

func execBuilder(ctx context.Context, q querier, b squirrel.Sqlizer) (int64, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build query")
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func queryRowBuilder(ctx context.Context, q querier, b squirrel.Sqlizer) (pgx.Row, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	return q.QueryRow(ctx, sql, args...), nil
}

func exists(ctx context.Context, q querier, table string, where squirrel.Sqlizer) (bool, error) {
	inner, args, err := NewQueryBuilder().Select("1").From(table).Where(where).ToSql()
	if err != nil {
		return false, errors.Wrap(err, "build query")
	}
	var found bool
	if err := q.QueryRow(ctx, "SELECT EXISTS ("+inner+")", args...).Scan(&found); err != nil {
		return false, errors.Wrapf(err, "check %s", table)
	}
	return found, nil
}
