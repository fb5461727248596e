package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_grid_bot/internal/domain"
)

// SQLiteStore persists the engine snapshot. The snapshot is written in a
// single transaction so a reader never observes a half-written state.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS position (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			qty REAL NOT NULL,
			cost_basis REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			grid_step REAL NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS grid_slots (
			level INTEGER PRIMARY KEY,
			qty REAL NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO position (id, qty, cost_basis, realized_pnl, grid_step, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		snap.Position.Qty, snap.Position.CostBasis, snap.Position.RealizedPnL,
		snap.GridStep, time.Now())
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM grid_slots`); err != nil {
		return err
	}
	for level, qty := range snap.Slots {
		if qty <= 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grid_slots (level, qty) VALUES (?, ?)`, level, qty); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load returns (nil, nil) when no snapshot has ever been written.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	row := s.db.QueryRowContext(ctx,
		`SELECT qty, cost_basis, realized_pnl, grid_step FROM position WHERE id = 1`)
	err := row.Scan(&snap.Position.Qty, &snap.Position.CostBasis,
		&snap.Position.RealizedPnL, &snap.GridStep)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap.Slots = make(map[int]float64)
	rows, err := s.db.QueryContext(ctx, `SELECT level, qty FROM grid_slots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var level int
		var qty float64
		if err := rows.Scan(&level, &qty); err != nil {
			return nil, err
		}
		if qty > 0 {
			snap.Slots[level] = qty
		}
	}
	return &snap, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
