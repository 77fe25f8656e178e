package metrics

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS scalars (
	step  INTEGER NOT NULL,
	key   TEXT    NOT NULL,
	value REAL    NOT NULL,
	at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS scalars_key_step ON scalars(key, step);`

// DefaultBatch is the number of rows buffered before a flush.
const DefaultBatch = 512

type row struct {
	step  uint64
	key   string
	value float32
	at    int64
}

// SQLite stores scalars in a SQLite database, flushing in batches.
type SQLite struct {
	mu      sync.Mutex
	db      *sql.DB
	pending []row
	batch   int
	logger  *log.Logger
}

// OpenSQLite opens (or creates) the database at path. Rows are written in
// one transaction every batch scalars.
func OpenSQLite(path string, batch int) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metrics schema: %w", err)
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	return &SQLite{db: db, batch: batch, logger: log.Default()}, nil
}

func (s *SQLite) Scalar(step uint64, key string, value float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, row{step, key, value, time.Now().UnixMilli()})
	if len(s.pending) >= s.batch {
		if err := s.flushLocked(); err != nil {
			s.logger.Printf("warn: metrics flush failed: %v", err)
		}
	}
}

// Flush writes buffered rows.
func (s *SQLite) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *SQLite) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO scalars(step, key, value, at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range s.pending {
		if _, err := stmt.Exec(int64(r.step), r.key, float64(r.value), r.at); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

// Series returns every stored (step, value) pair for key in step order.
// Buffered rows are flushed first.
func (s *SQLite) Series(key string) (steps []uint64, values []float64, err error) {
	if err := s.Flush(); err != nil {
		return nil, nil, err
	}
	rows, err := s.db.Query(`SELECT step, value FROM scalars WHERE key = ? ORDER BY step`, key)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var step int64
		var v float64
		if err := rows.Scan(&step, &v); err != nil {
			return nil, nil, err
		}
		steps = append(steps, uint64(step))
		values = append(values, v)
	}
	return steps, values, rows.Err()
}

// Close flushes pending rows and closes the database.
func (s *SQLite) Close() error {
	err := s.Flush()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
