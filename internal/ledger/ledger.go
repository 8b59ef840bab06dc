// Package ledger records every header render in a local sqlite database so
// operators can tell which build carried which configuration.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS renders (
	id            TEXT PRIMARY KEY,
	profile       TEXT NOT NULL,
	ready         INTEGER NOT NULL,
	problems      INTEGER NOT NULL,
	config_sha256 TEXT NOT NULL,
	ir_sha256     TEXT NOT NULL,
	rendered_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS renders_profile ON renders (profile, rendered_at);
`

const DefaultHistoryLimit = 20

// Render is one recorded render.
type Render struct {
	ID           string    `json:"id"`
	Profile      string    `json:"profile"`
	Ready        bool      `json:"ready"`
	Problems     int       `json:"problems"`
	ConfigSHA256 string    `json:"config_sha256"`
	IRSHA256     string    `json:"ir_sha256"`
	RenderedAt   time.Time `json:"rendered_at"`
}

type renderRow struct {
	ID           string `db:"id"`
	Profile      string `db:"profile"`
	Ready        bool   `db:"ready"`
	Problems     int    `db:"problems"`
	ConfigSHA256 string `db:"config_sha256"`
	IRSHA256     string `db:"ir_sha256"`
	RenderedAt   int64  `db:"rendered_at"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open creates the database file and schema if needed.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores a render and returns it with its id and timestamp filled.
func (l *Ledger) Record(ctx context.Context, r Render) (Render, error) {
	if r.Profile == "" {
		return Render{}, fmt.Errorf("record render: profile is required")
	}
	r.ID = uuid.NewString()
	r.RenderedAt = l.now().UTC()

	row := renderRow{
		ID:           r.ID,
		Profile:      r.Profile,
		Ready:        r.Ready,
		Problems:     r.Problems,
		ConfigSHA256: r.ConfigSHA256,
		IRSHA256:     r.IRSHA256,
		RenderedAt:   r.RenderedAt.UnixNano(),
	}
	_, err := l.db.NamedExecContext(ctx, `INSERT INTO renders
		(id, profile, ready, problems, config_sha256, ir_sha256, rendered_at)
		VALUES (:id, :profile, :ready, :problems, :config_sha256, :ir_sha256, :rendered_at)`, row)
	if err != nil {
		return Render{}, fmt.Errorf("record render: %w", err)
	}
	return r, nil
}

// History lists the most recent renders of a profile, newest first. A
// non-positive limit uses DefaultHistoryLimit.
func (l *Ledger) History(ctx context.Context, profile string, limit int) ([]Render, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var rows []renderRow
	err := l.db.SelectContext(ctx, &rows, `SELECT id, profile, ready, problems, config_sha256, ir_sha256, rendered_at
		FROM renders WHERE profile = ? ORDER BY rendered_at DESC, rowid DESC LIMIT ?`, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	out := make([]Render, 0, len(rows))
	for _, row := range rows {
		out = append(out, Render{
			ID:           row.ID,
			Profile:      row.Profile,
			Ready:        row.Ready,
			Problems:     row.Problems,
			ConfigSHA256: row.ConfigSHA256,
			IRSHA256:     row.IRSHA256,
			RenderedAt:   time.Unix(0, row.RenderedAt).UTC(),
		})
	}
	return out, nil
}

// Last returns the newest render of a profile.
func (l *Ledger) Last(ctx context.Context, profile string) (Render, bool, error) {
	renders, err := l.History(ctx, profile, 1)
	if err != nil || len(renders) == 0 {
		return Render{}, false, err
	}
	return renders[0], true, nil
}
