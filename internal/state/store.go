// Package state persists the goal, plan and goal stack of one namespace.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	goalRecord  = "goal"
	planRecord  = "plan"
	stackRecord = "goal_stack"
)

var (
	ErrNoActiveGoal     = errors.New("no active goal")
	ErrNoPlan           = errors.New("no plan defined")
	ErrInvalidStepIndex = errors.New("invalid step index")
	ErrInvalidStatus    = errors.New("invalid step status")
	ErrSubtaskNotFound  = errors.New("subtask not found")
)

// Store is a small transactional record store. Every record is a JSON document
// that is replaced as a whole on write.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS records (
		name TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`)
	return err
}

// Reset removes the goal, the plan and the goal stack.
func (s *Store) Reset(ctx context.Context) error {
	return s.update(ctx, func(tx *txn) error {
		for _, name := range []string{goalRecord, planRecord, stackRecord} {
			if err := tx.del(name); err != nil {
				return err
			}
		}
		return nil
	})
}

type txn struct {
	ctx context.Context
	tx  *sql.Tx
	now time.Time
}

func (t *txn) get(name string, v any) (bool, error) {
	var body string
	err := t.tx.QueryRowContext(t.ctx, `SELECT body FROM records WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (t *txn) put(name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO records (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, string(body), t.now)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (t *txn) del(name string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, fn func(tx *txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txn{ctx: ctx, tx: tx, now: s.now()}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) view(ctx context.Context, fn func(tx *txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	return fn(&txn{ctx: ctx, tx: tx, now: s.now()})
}
