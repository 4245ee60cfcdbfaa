// Package persistence provides SQLite storage for scenario recipes: the
// board size, seed, and ordered populate calls that rebuild a starting
// board. Simulation history is not stored.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/crowdforce/internal/engine"
	"github.com/talgya/crowdforce/internal/geom"
)

// ErrNotFound is returned for an unknown scenario id.
var ErrNotFound = errors.New("scenario not found")

// DB wraps a SQLite connection for scenario storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenarios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scenario_ops (
		scenario_id TEXT NOT NULL REFERENCES scenarios(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		x1 INTEGER NOT NULL,
		y1 INTEGER NOT NULL,
		x2 INTEGER NOT NULL,
		y2 INTEGER NOT NULL,
		PRIMARY KEY (scenario_id, seq)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scenarios_created ON scenarios(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Info describes a stored scenario without its ops.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}

type scenarioRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Width     int    `db:"width"`
	Height    int    `db:"height"`
	Seed      int64  `db:"seed"`
	CreatedAt int64  `db:"created_at"`
}

func (r scenarioRow) info() Info {
	return Info{
		ID:        r.ID,
		Name:      r.Name,
		Width:     r.Width,
		Height:    r.Height,
		Seed:      r.Seed,
		CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
	}
}

type opRow struct {
	Kind string `db:"kind"`
	X1   int    `db:"x1"`
	Y1   int    `db:"y1"`
	X2   int    `db:"x2"`
	Y2   int    `db:"y2"`
}

// SaveScenario stores sc under a new id and returns it.
func (db *DB) SaveScenario(name string, sc engine.Scenario) (string, error) {
	id := uuid.NewString()

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO scenarios (id, name, width, height, seed, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, name, sc.Width, sc.Height, sc.Seed, time.Now().Unix(),
	); err != nil {
		return "", fmt.Errorf("insert scenario: %w", err)
	}

	stmt, err := tx.Preparex(`INSERT INTO scenario_ops
		(scenario_id, seq, kind, x1, y1, x2, y2)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, op := range sc.Ops {
		r := op.Rect
		if _, err := stmt.Exec(id, i, op.Kind, r.Min.X, r.Min.Y, r.Max.X, r.Max.Y); err != nil {
			return "", fmt.Errorf("insert op %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("scenario saved", "id", id, "name", name, "ops", len(sc.Ops))
	return id, nil
}

// LoadScenario returns the stored scenario with the given id.
func (db *DB) LoadScenario(id string) (Info, engine.Scenario, error) {
	var row scenarioRow
	err := db.conn.Get(&row, "SELECT id, name, width, height, seed, created_at FROM scenarios WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, engine.Scenario{}, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Info{}, engine.Scenario{}, fmt.Errorf("load %s: %w", id, err)
	}

	var ops []opRow
	if err := db.conn.Select(&ops,
		"SELECT kind, x1, y1, x2, y2 FROM scenario_ops WHERE scenario_id = ? ORDER BY seq",
		id,
	); err != nil {
		return Info{}, engine.Scenario{}, fmt.Errorf("load ops %s: %w", id, err)
	}

	sc := engine.Scenario{Width: row.Width, Height: row.Height, Seed: row.Seed}
	for _, o := range ops {
		sc.Ops = append(sc.Ops, engine.Op{
			Kind: o.Kind,
			Rect: geom.Rect{Min: geom.Point{X: o.X1, Y: o.Y1}, Max: geom.Point{X: o.X2, Y: o.Y2}},
		})
	}
	return row.info(), sc, nil
}

// ListScenarios returns all stored scenarios, newest first.
func (db *DB) ListScenarios() ([]Info, error) {
	var rows []scenarioRow
	if err := db.conn.Select(&rows,
		"SELECT id, name, width, height, seed, created_at FROM scenarios ORDER BY created_at DESC, name",
	); err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.info())
	}
	return out, nil
}

// DeleteScenario removes a scenario and its ops.
func (db *DB) DeleteScenario(id string) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM scenario_ops WHERE scenario_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM scenarios WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
