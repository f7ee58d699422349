// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"issuetracker/internal/config"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"go.nhat.io/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Tables lists every application table in dependency order
var Tables = []string{
	"users",
	"courses",
	"projects",
	"tasks",
	"issues",
	"comments",
	"attachments",
	"issue_feedback",
	"issue_history",
	"notifications",
	"issue_templates",
	"kb_articles",
}

// Manager handles database operations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// InitDB opens a connection pool and applies pending migrations
func (dm *Manager) InitDB(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDB",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.String("db.system", "postgresql"),
		attribute.Int("db.max_open_conns", cfg.MaxOpenConns),
		attribute.Int("db.max_idle_conns", cfg.MaxIdleConns),
	)
	defer observability.FinishSpan(span, &err)

	db, err := dm.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err = dm.RunMigrations(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database after migration failure", closeErr)
		}
		return nil, err
	}

	return db, nil
}

// Open returns a traced connection pool without touching the schema
func (dm *Manager) Open(ctx context.Context, cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "Open",
		attribute.String("database.url", contextutils.MaskDatabaseURL(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	// The instrumented driver can only be registered once per process
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.TraceQueryWithoutArgs(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open database connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, config.DatabasePingTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.NewAppErrorWithCause(
			contextutils.ErrDatabaseConnection.Code,
			contextutils.ErrDatabaseConnection.Severity,
			"failed to ping database",
			contextutils.MaskDatabaseURL(cfg.URL),
			err,
		)
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"database":          contextutils.MaskDatabaseURL(cfg.URL),
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	return db, nil
}

// RunMigrations applies the embedded migrations through golang-migrate
func (dm *Manager) RunMigrations(ctx context.Context, db *sql.DB) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "RunMigrations",
		attribute.String("db.system", "postgresql"),
		attribute.String("migration.source", "iofs"),
	)
	defer observability.FinishSpan(span, &err)

	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		dm.logger.Info(ctx, "Database schema is up to date")
		err = nil
	} else if err != nil {
		return contextutils.WrapError(err, "migration up failed")
	} else {
		dm.logger.Info(ctx, "Database migrations applied")
	}

	if version, dirty, verr := m.Version(); verr == nil {
		span.SetAttributes(attribute.Int64("migration.version", int64(version)), attribute.Bool("migration.dirty", dirty))
	}
	return nil
}

// RollbackAll drops the schema by running every down migration
func (dm *Manager) RollbackAll(ctx context.Context, db *sql.DB) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "RollbackAll")
	defer observability.FinishSpan(span, &err)

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err = m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return contextutils.WrapError(err, "migration down failed")
	}
	dm.logger.Warn(ctx, "Database schema rolled back")
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open embedded migrations")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to initialize golang-migrate")
	}
	return m, nil
}

// TableCounts returns the row count of every application table
func TableCounts(ctx context.Context, db *sql.DB) (result0 map[string]int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "TableCounts")
	defer observability.FinishSpan(span, &err)

	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		// table names come from the fixed list above
		if err = db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, contextutils.WrapErrorf(err, "failed to count %s", table)
		}
		counts[table] = n
	}
	return counts, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling back on error or panic
func WithTx(ctx context.Context, db *sql.DB, logger *observability.Logger, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseTransaction, contextutils.SeverityError,
			"failed to begin transaction", "", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				logger.Error(ctx, "Failed to rollback transaction", rollbackErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseTransaction, contextutils.SeverityError,
			"failed to commit transaction", "", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key violation
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// extractDatabaseName extracts the database name from a PostgreSQL connection string
func extractDatabaseName(databaseURL string) string {
	// a keyword/value DSN parses as a bare relative path, so only trust URLs
	if u, err := url.Parse(databaseURL); err == nil && u.Scheme != "" {
		if dbName := strings.TrimPrefix(u.Path, "/"); dbName != "" {
			return dbName
		}
	}
	for _, part := range strings.Fields(databaseURL) {
		if name, ok := strings.CutPrefix(part, "dbname="); ok {
			return name
		}
	}
	return "issuetracker"
}
