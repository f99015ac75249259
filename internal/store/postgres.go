package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"log/slog"
	"github.com/urosperisic/chatapp/internal/app"
)

// ErrEmptyMessage is returned by AppendMessage for empty or
// whitespace-only content. Callers drop such messages silently.
var ErrEmptyMessage = errors.New("empty message content")

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres connects to postgres and returns a pool wrapper
func NewPostgres(ctx context.Context, cfg app.Config, log *slog.Logger) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = int32(cfg.PGMaxConn)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// Ping checks database connectivity for the health endpoint
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Version returns the server version string for the health endpoint
func (p *Postgres) Version(ctx context.Context) (string, error) {
	var v string
	if err := p.pool.QueryRow(ctx, `SELECT version()`).Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}
