package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// videoOrdinals names the four training videos in column order.
var videoOrdinals = [4]string{"FIRST", "SECOND", "THIRD", "FOURTH"}

// DateLayout is the format of every START_/FINISH_ column.
const DateLayout = "2006-01-02 15:04:05"

// Video is one training video's progress. Empty strings mean not reached.
type Video struct {
	Start  string `yaml:"start"`
	Finish string `yaml:"finish"`
}

// Employee is one row of the directory.
type Employee struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	LastName string  `yaml:"last_name"`
	Division string  `yaml:"division"`
	Videos   []Video `yaml:"videos"`
}

// Seed is the on-disk layout of a seed file.
type Seed struct {
	Employees []Employee `yaml:"employees"`
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, e := range seed.Employees {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("employee %d: %w", i, err)
		}
	}
	return &seed, nil
}

func (e Employee) validate() error {
	if e.ID == "" || e.Name == "" || e.Division == "" {
		return fmt.Errorf("id, name and division are required")
	}
	if len(e.Videos) > len(videoOrdinals) {
		return fmt.Errorf("at most %d videos, got %d", len(videoOrdinals), len(e.Videos))
	}
	for i, v := range e.Videos {
		for _, ts := range []string{v.Start, v.Finish} {
			if ts == "" {
				continue
			}
			if _, err := time.Parse(DateLayout, ts); err != nil {
				return fmt.Errorf("video %d: bad timestamp %q", i+1, ts)
			}
		}
		if v.Finish != "" && v.Start == "" {
			return fmt.Errorf("video %d: finished without a start", i+1)
		}
	}
	return nil
}

// Admin owns a writable connection used to create and seed the directory.
// The server never opens one.
type Admin struct {
	db *sql.DB
}

// OpenAdmin opens dbPath for writing, creating the file if needed.
func OpenAdmin(dbPath string) (*Admin, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// No WAL: a read-only connection cannot open a WAL file without its -shm.
	dsn := dbPath + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Admin{db: db}, nil
}

// InitSchema creates the employee table if it does not exist.
func (a *Admin) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS employees (
		EMPLOYEE_ID TEXT PRIMARY KEY,
		EMPLOYEE_NAME TEXT NOT NULL,
		EMPLOYEE_LAST_NAME TEXT,
		EMPLOYEE_DIVISION TEXT,
		START_FIRST_VIDEO_DATE TEXT,
		FINISH_FIRST_VIDEO_DATE TEXT,
		START_SECOND_VIDEO_DATE TEXT,
		FINISH_SECOND_VIDEO_DATE TEXT,
		START_THIRD_VIDEO_DATE TEXT,
		FINISH_THIRD_VIDEO_DATE TEXT,
		START_FOURTH_VIDEO_DATE TEXT,
		FINISH_FOURTH_VIDEO_DATE TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_employees_division ON employees(EMPLOYEE_DIVISION);
	`
	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Upsert writes employees in one transaction and returns how many rows were
// written.
func (a *Admin) Upsert(ctx context.Context, employees []Employee) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to roll back seed transaction", "error", rbErr)
		}
	}()

	query := `
	INSERT INTO employees (
		EMPLOYEE_ID, EMPLOYEE_NAME, EMPLOYEE_LAST_NAME, EMPLOYEE_DIVISION,
		START_FIRST_VIDEO_DATE, FINISH_FIRST_VIDEO_DATE,
		START_SECOND_VIDEO_DATE, FINISH_SECOND_VIDEO_DATE,
		START_THIRD_VIDEO_DATE, FINISH_THIRD_VIDEO_DATE,
		START_FOURTH_VIDEO_DATE, FINISH_FOURTH_VIDEO_DATE
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(EMPLOYEE_ID) DO UPDATE SET
		EMPLOYEE_NAME = excluded.EMPLOYEE_NAME,
		EMPLOYEE_LAST_NAME = excluded.EMPLOYEE_LAST_NAME,
		EMPLOYEE_DIVISION = excluded.EMPLOYEE_DIVISION,
		START_FIRST_VIDEO_DATE = excluded.START_FIRST_VIDEO_DATE,
		FINISH_FIRST_VIDEO_DATE = excluded.FINISH_FIRST_VIDEO_DATE,
		START_SECOND_VIDEO_DATE = excluded.START_SECOND_VIDEO_DATE,
		FINISH_SECOND_VIDEO_DATE = excluded.FINISH_SECOND_VIDEO_DATE,
		START_THIRD_VIDEO_DATE = excluded.START_THIRD_VIDEO_DATE,
		FINISH_THIRD_VIDEO_DATE = excluded.FINISH_THIRD_VIDEO_DATE,
		START_FOURTH_VIDEO_DATE = excluded.START_FOURTH_VIDEO_DATE,
		FINISH_FOURTH_VIDEO_DATE = excluded.FINISH_FOURTH_VIDEO_DATE`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range employees {
		if err := e.validate(); err != nil {
			return 0, fmt.Errorf("employee %s: %w", e.ID, err)
		}
		args := []any{e.ID, e.Name, nullable(e.LastName), nullable(e.Division)}
		for i := range videoOrdinals {
			var v Video
			if i < len(e.Videos) {
				v = e.Videos[i]
			}
			args = append(args, nullable(v.Start), nullable(v.Finish))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("upsert employee %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return len(employees), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Close closes the database connection.
func (a *Admin) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
