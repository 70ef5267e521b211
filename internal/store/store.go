// Package store provides access to the employee training directory.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/trainingdesk/internal/domain"
)

// TableName is the only table oracle-generated queries may read.
const TableName = "employees"

var (
	// ErrNotFound is returned when no employee has the requested id.
	ErrNotFound = errors.New("employee not found")
	// ErrUnavailable is returned when the directory cannot answer at all:
	// a timeout, a busy or locked database, or a closed handle.
	ErrUnavailable = errors.New("directory unavailable")
)

// Directory defines read access to employee records.
type Directory interface {
	// Verify reports whether an employee with this name and id exists.
	Verify(ctx context.Context, name, id string) (bool, error)

	// DivisionOf returns the employee's division or ErrNotFound.
	DivisionOf(ctx context.Context, id string) (string, error)

	// Columns returns the column names of the employee table.
	Columns(ctx context.Context) ([]string, error)

	// Execute runs a read-only query. It fails closed: a statement the
	// database rejects yields an empty result, and only ErrUnavailable is
	// returned as an error.
	Execute(ctx context.Context, query string) (domain.ResultSet, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
