package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ashureev/trainingdesk/internal/domain"
	_ "modernc.org/sqlite"
)

// Options tune a SQLiteDirectory.
type Options struct {
	// Timeout bounds every directory call. Zero means no extra bound.
	Timeout time.Duration
	// MaxRows caps the rows returned by Execute. Zero means no cap.
	MaxRows int
}

// SQLiteDirectory implements Directory over a read-only SQLite connection.
type SQLiteDirectory struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteDirectory opens dbPath read-only. The file must already exist.
func NewSQLiteDirectory(dbPath string, opts Options) (*SQLiteDirectory, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("stat database: %w", err)
	}

	db, err := sql.Open("sqlite", readOnlyDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteDirectory{db: db, opts: opts}, nil
}

// readOnlyDSN opens the file in SQLite read-only mode and additionally sets
// query_only so no connection can ever write.
func readOnlyDSN(dbPath string) string {
	return "file:" + dbPath + "?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)"
}

func (d *SQLiteDirectory) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.opts.Timeout)
}

// Verify reports whether an employee with this id has exactly the given name.
// Surrounding whitespace is ignored; case is not.
func (d *SQLiteDirectory) Verify(ctx context.Context, name, id string) (bool, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	query := `
		SELECT 1 FROM employees
		WHERE EMPLOYEE_ID = ? AND trim(EMPLOYEE_NAME) = ?
		LIMIT 1`

	var one int
	err := d.db.QueryRowContext(ctx, query, strings.TrimSpace(id), strings.TrimSpace(name)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: verify employee: %v", ErrUnavailable, err)
	}
	return true, nil
}

// DivisionOf returns the employee's division.
func (d *SQLiteDirectory) DivisionOf(ctx context.Context, id string) (string, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	var division sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT EMPLOYEE_DIVISION FROM employees WHERE EMPLOYEE_ID = ?`, id,
	).Scan(&division)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: lookup division: %v", ErrUnavailable, err)
	}
	return division.String, nil
}

// Columns returns the employee table's column names in schema order.
func (d *SQLiteDirectory) Columns(ctx context.Context) ([]string, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, TableName)
	if err != nil {
		return nil, fmt.Errorf("%w: list columns: %v", ErrUnavailable, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close column rows", "error", closeErr)
		}
	}()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan column: %v", ErrUnavailable, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate columns: %v", ErrUnavailable, err)
	}
	return cols, nil
}

// Execute runs query and returns at most MaxRows rows.
func (d *SQLiteDirectory) Execute(ctx context.Context, query string) (domain.ResultSet, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	rs, err := d.execute(ctx, query)
	if err == nil {
		return rs, nil
	}
	if isUnavailable(err) {
		return domain.ResultSet{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Warn("Query rejected by database", "error", err)
	return domain.ResultSet{}, nil
}

func (d *SQLiteDirectory) execute(ctx context.Context, query string) (domain.ResultSet, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return domain.ResultSet{}, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close result rows", "error", closeErr)
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return domain.ResultSet{}, err
	}

	rs := domain.ResultSet{Columns: cols}
	for rows.Next() {
		if d.opts.MaxRows > 0 && len(rs.Rows) >= d.opts.MaxRows {
			slog.Info("Result truncated", "max_rows", d.opts.MaxRows)
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.ResultSet{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return domain.ResultSet{}, err
	}
	return rs, nil
}

// Ping verifies database connectivity.
func (d *SQLiteDirectory) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (d *SQLiteDirectory) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
