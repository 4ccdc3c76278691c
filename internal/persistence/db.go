// Package persistence provides SQLite storage for collected market metrics.
// Runs are append-only: samples are written once and never rewritten.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridmarket/internal/agents"
	"github.com/talgya/gridmarket/internal/engine"
)

// ErrRunNotFound is returned when a run ID has no stored record.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for metrics storage.
type DB struct {
	conn *sqlx.DB
}

// Run describes one stored simulation run.
type Run struct {
	ID         string    `db:"id" json:"id"`
	Params     string    `db:"params_json" json:"params"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	Steps      int       `db:"steps" json:"steps"`
	Finished   bool      `db:"finished" json:"finished"`
	NumSellers int       `db:"num_sellers" json:"num_sellers"`
	NumBuyers  int       `db:"num_buyers" json:"num_buyers"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under the API.
	conn.SetMaxOpenConns(1)

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
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		params_json TEXT NOT NULL,
		num_sellers INTEGER NOT NULL,
		num_buyers INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		steps INTEGER NOT NULL DEFAULT 0,
		finished INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		total_transactions INTEGER NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS prices (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		price REAL NOT NULL,
		PRIMARY KEY (run_id, step, agent_id)
	);

	CREATE INDEX IF NOT EXISTS idx_prices_run_step ON prices(run_id, step);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRun registers a new run and returns its ID.
func (db *DB) CreateRun(p engine.Params) (string, error) {
	paramsJSON, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}

	id := uuid.NewString()
	_, err = db.conn.Exec(
		`INSERT INTO runs (id, params_json, num_sellers, num_buyers, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, string(paramsJSON), p.NumSellers, p.NumBuyers, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	slog.Info("run registered", "run_id", id)
	return id, nil
}

// SaveSamples appends samples for a run in one transaction.
func (db *DB) SaveSamples(runID string, samples []engine.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sampleStmt, err := tx.Preparex(`INSERT INTO samples (run_id, step, total_transactions) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer sampleStmt.Close()

	priceStmt, err := tx.Preparex(`INSERT INTO prices (run_id, step, agent_id, price) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer priceStmt.Close()

	for _, s := range samples {
		if _, err := sampleStmt.Exec(runID, s.Step, s.TotalTransactions); err != nil {
			return fmt.Errorf("insert sample %d: %w", s.Step, err)
		}
		for _, p := range s.Prices {
			if _, err := priceStmt.Exec(runID, s.Step, uint64(p.AgentID), p.Price); err != nil {
				return fmt.Errorf("insert price %d/%d: %w", s.Step, p.AgentID, err)
			}
		}
	}

	last := samples[len(samples)-1].Step + 1
	if _, err := tx.Exec(`UPDATE runs SET steps = MAX(steps, ?) WHERE id = ?`, last, runID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("samples saved", "run_id", runID, "count", len(samples), "through_step", last-1)
	return nil
}

// FinishRun marks a run complete.
func (db *DB) FinishRun(runID string) error {
	res, err := db.conn.Exec(`UPDATE runs SET finished = 1 WHERE id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns one run.
func (db *DB) GetRun(runID string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, `SELECT id, params_json, num_sellers, num_buyers, started_at, steps, finished
		FROM runs WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// ListRuns returns runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		`SELECT id, params_json, num_sellers, num_buyers, started_at, steps, finished
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	return runs, err
}

type sampleRow struct {
	Step  int `db:"step"`
	Total int `db:"total_transactions"`
}

type priceRow struct {
	Step    int     `db:"step"`
	AgentID uint64  `db:"agent_id"`
	Price   float64 `db:"price"`
}

type meanRow struct {
	Step int     `db:"step"`
	Mean float64 `db:"mean_price"`
}

// LoadTransactionSeries returns the stored (step, total) pairs in step order.
func (db *DB) LoadTransactionSeries(runID string) ([]engine.TransactionPoint, error) {
	var rows []sampleRow
	err := db.conn.Select(&rows,
		`SELECT step, total_transactions FROM samples WHERE run_id = ? ORDER BY step`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	points := make([]engine.TransactionPoint, len(rows))
	for i, r := range rows {
		points[i] = engine.TransactionPoint{Step: r.Step, Total: r.Total}
	}
	return points, nil
}

// LoadPriceSeries returns every stored seller price.
func (db *DB) LoadPriceSeries(runID string) ([]engine.PriceObservation, error) {
	var rows []priceRow
	err := db.conn.Select(&rows,
		`SELECT step, agent_id, price FROM prices WHERE run_id = ? ORDER BY step, agent_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	obs := make([]engine.PriceObservation, len(rows))
	for i, r := range rows {
		obs[i] = engine.PriceObservation{Step: r.Step, AgentID: agents.AgentID(r.AgentID), Price: r.Price}
	}
	return obs, nil
}

// LoadMeanPriceSeries averages stored seller prices per step.
func (db *DB) LoadMeanPriceSeries(runID string) ([]engine.MeanPricePoint, error) {
	var rows []meanRow
	err := db.conn.Select(&rows,
		`SELECT step, AVG(price) AS mean_price FROM prices WHERE run_id = ? GROUP BY step ORDER BY step`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	points := make([]engine.MeanPricePoint, len(rows))
	for i, r := range rows {
		points[i] = engine.MeanPricePoint{Step: r.Step, Mean: r.Mean}
	}
	return points, nil
}
