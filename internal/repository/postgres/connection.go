package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"biocloud/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Prefix       string
	Profiles     string
	Projects     string
	Comments     string
	ProjectViews string
	// ChangeChannel is the LISTEN/NOTIFY channel fed by row triggers
	ChangeChannel string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Prefix:        prefix,
		Profiles:      fmt.Sprintf("%sprofiles", prefix),
		Projects:      fmt.Sprintf("%sprojects", prefix),
		Comments:      fmt.Sprintf("%scomments", prefix),
		ProjectViews:  fmt.Sprintf("%sproject_views", prefix),
		ChangeChannel: fmt.Sprintf("%sbiocloud_changes", prefix),
	}
}

// Logical strips the environment prefix from a physical table name.
func (t *TableNames) Logical(table string) string {
	return strings.TrimPrefix(table, t.Prefix)
}

// CreateConnectionPool creates a new pgx connection pool with automatic PgBouncer compatibility.
//
// Supabase's transaction pooler (port 6543) does not support prepared
// statements, so on that port the pool switches to QueryExecModeCacheDescribe:
// extended protocol without server-side prepared statements. An explicit
// default_query_exec_mode in the connection string takes precedence.
//
// Table names are interpolated with fmt.Sprintf before the SQL reaches the
// server, so each prefix gets its own statement descriptions.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction stored in ctx, or the pool when there is none.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}

// identityParam maps the anonymous identity to SQL NULL so that
// owner_id = $n never matches for visitors without a session.
func identityParam(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
