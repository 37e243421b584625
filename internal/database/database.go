// Package database defines the transactional context threaded through repositories
// and a connection source backed by database/sql.
package database

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	// DefaultListLimit applies when a caller passes a non-positive limit.
	DefaultListLimit = 50
	// MaxListLimit bounds every listing query.
	MaxListLimit = 500
)

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx used by repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is an in-progress unit of work.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Conn is a connection held exclusively by one caller until Release.
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Release() error
}

// Source hands out connections.
type Source interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Pool is a Source over a *sql.DB.
type Pool struct {
	db *sql.DB
}

func NewPool(db *sql.DB) *Pool {
	return &Pool{db: db}
}

func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &sqlConn{conn: c}, nil
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := c.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

func (c *sqlConn) Release() error {
	return c.conn.Close()
}

// Or returns q, or fallback when q is nil.
func Or(q Querier, fallback Querier) Querier {
	if q == nil {
		return fallback
	}
	return q
}

// ClampLimit normalises a caller supplied listing limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
