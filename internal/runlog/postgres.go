package runlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Postgres stores entries in the run_log table.
type Postgres struct {
	DB *sql.DB
}

// OpenPostgres connects and pings the database.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Close() error { return p.DB.Close() }

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := p.DB.ExecContext(ctx, `
INSERT INTO run_log (run_id, logged_at, user_request, final_summary, plan_generated)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id) DO NOTHING`,
		e.RunID, e.Timestamp, e.UserRequest, e.FinalSummary, e.PlanGenerated)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", e.RunID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, runID string) (Entry, error) {
	var e Entry
	err := p.DB.QueryRowContext(ctx, `
SELECT run_id, logged_at, user_request, final_summary, plan_generated
FROM run_log WHERE run_id = $1`, runID).
		Scan(&e.RunID, &e.Timestamp, &e.UserRequest, &e.FinalSummary, &e.PlanGenerated)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return e, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.DB.QueryContext(ctx, `
SELECT run_id, logged_at, user_request, final_summary, plan_generated
FROM run_log ORDER BY logged_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Timestamp, &e.UserRequest, &e.FinalSummary, &e.PlanGenerated); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Migrate applies the embedded migrations. direction is "up" or "down";
// steps > 0 moves that many versions instead of all of them.
func Migrate(dsn, direction string, steps int) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
