package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

// MigrationTableName is the table goose uses to track applied migrations.
const MigrationTableName = "schema_migrations"

// MigrationCommands lists the commands Migrate accepts.
var MigrationCommands = []string{"up", "down", "reset", "status", "version"}

//go:embed migrations/*.sql
var migrationFS embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// slogGooseLogger routes goose output through slog. Fatalf does not exit so
// the caller decides how to fail.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Migrate runs a goose command against db using the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "migrations", "command", command)

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationFS)
	goose.SetLogger(slogGooseLogger{logger: log})
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	start := time.Now()
	var err error
	switch command {
	case "up":
		err = goose.UpContext(ctx, db, "migrations")
	case "down":
		err = goose.DownContext(ctx, db, "migrations")
	case "reset":
		err = goose.ResetContext(ctx, db, "migrations")
	case "status":
		err = goose.StatusContext(ctx, db, "migrations")
	case "version":
		err = goose.VersionContext(ctx, db, "migrations")
	default:
		return fmt.Errorf("unknown migration command: %s (expected one of %v)", command, MigrationCommands)
	}
	if err != nil {
		log.Error("migration command failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return fmt.Errorf("migration command '%s' failed: %w", command, err)
	}

	log.Info("migration command completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// OpenDB opens a pgx-backed connection pool and verifies it with a ping.
func OpenDB(ctx context.Context, url string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty: check your configuration")
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
