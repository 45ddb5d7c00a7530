// Package optlock implements check-and-set updates and deletes on rows that
// carry an integer version column.
//
// Every write is a single statement whose WHERE clause matches both the
// primary key and the version the caller last observed. The statement also
// bumps the version (version = version + 1) so the store advances the
// counter atomically with the write. If no row matches, the caller gets
// apperror.ErrOptimisticLock; a missing id and a stale version are not told
// apart here.
//
// The package never logs and never retries. Store errors are returned
// wrapped with location context only.
package optlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/readyforms/readyforms-api/internal/apperror"
)

// Querier is the subset of *sql.DB / *sql.Tx used here. Queries use "?"
// placeholders; stores speaking another dialect wrap their handle to rebind.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Row is what a Table's Scan function reads from. *sql.Row and *sql.Rows
// both satisfy it.
type Row interface {
	Scan(dest ...any) error
}

// Table describes a versioned table for Update.
type Table[T any] struct {
	// Name is the SQL table name.
	Name string
	// Resource names the record kind in conflict errors ("template").
	Resource string
	// Columns is the comma-separated column list returned after the
	// update, in the order Scan expects.
	Columns string
	Scan    func(Row) (T, error)
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Patch is an ordered set of column assignments.
type Patch struct {
	cols []string
	vals []any
}

// Set assigns value to column. Setting the same column twice keeps the
// last value.
func (p *Patch) Set(column string, value any) *Patch {
	for i, c := range p.cols {
		if c == column {
			p.vals[i] = value
			return p
		}
	}
	p.cols = append(p.cols, column)
	p.vals = append(p.vals, value)
	return p
}

// Len returns the number of assigned columns.
func (p *Patch) Len() int { return len(p.cols) }

// Columns returns the assigned column names in insertion order.
func (p *Patch) Columns() []string {
	out := make([]string, len(p.cols))
	copy(out, p.cols)
	return out
}

func (p *Patch) validate() error {
	for _, c := range p.cols {
		if !identRe.MatchString(c) || c == "version" || c == "id" {
			return fmt.Errorf("optlock: column %q cannot be patched", c)
		}
	}
	return nil
}

// Update applies patch to the row identified by id if, and only if, its
// version still equals expectedVersion. On success it returns the row as
// stored after the write, including the incremented version.
//
// An empty patch still bumps the version.
func Update[T any](ctx context.Context, q Querier, t Table[T], id string, expectedVersion int64, patch Patch) (T, error) {
	var zero T
	if !identRe.MatchString(t.Name) {
		return zero, fmt.Errorf("optlock: invalid table name %q", t.Name)
	}
	if err := patch.validate(); err != nil {
		return zero, err
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(t.Name)
	b.WriteString(" SET ")
	args := make([]any, 0, len(patch.vals)+2)
	for i, c := range patch.cols {
		b.WriteString(c)
		b.WriteString(" = ?, ")
		args = append(args, patch.vals[i])
	}
	b.WriteString("version = version + 1 WHERE id = ? AND version = ? RETURNING ")
	b.WriteString(t.Columns)
	args = append(args, id, expectedVersion)

	rec, err := t.Scan(q.QueryRowContext(ctx, b.String(), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, apperror.OptimisticLock(t.Resource, id)
		}
		return zero, fmt.Errorf("optlock: updating %s %s: %w", t.Resource, id, err)
	}
	return rec, nil
}

// Delete removes the row identified by id if its version equals
// expectedVersion. It returns the number of rows removed, which is always 1
// when err is nil.
func Delete(ctx context.Context, q Querier, table, resource, id string, expectedVersion int64) (int64, error) {
	if !identRe.MatchString(table) {
		return 0, fmt.Errorf("optlock: invalid table name %q", table)
	}

	res, err := q.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE id = ? AND version = ?",
		id, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("optlock: deleting %s %s: %w", resource, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("optlock: checking rows affected: %w", err)
	}
	if n != 1 {
		return 0, apperror.OptimisticLock(resource, id)
	}
	return n, nil
}
