package technique

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"
)

// PostgresLibrary reads techniques from a pgvector table.
type PostgresLibrary struct {
	db     *pgxpool.Pool
	table  string
	logger *zap.Logger
}

// EnsureSchema creates the vector extension and the chunk table if missing.
// It runs on its own connection because the pool registers the vector type
// on connect and needs the extension to exist first.
func EnsureSchema(ctx context.Context, dsn, table string, dimension int) error {
	if table == "" {
		table = DefaultTable
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return wrap("connect", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return wrap("create extension", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	chunk_id  TEXT PRIMARY KEY,
	title     TEXT NOT NULL,
	content   TEXT NOT NULL,
	embedding vector(%d) NOT NULL
)`, pgx.Identifier{table}.Sanitize(), dimension)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return wrap("create table", err)
	}
	return nil
}

// NewPostgresLibrary opens a pool with the vector type registered.
func NewPostgresLibrary(ctx context.Context, dsn, table string, logger *zap.Logger) (*PostgresLibrary, error) {
	if table == "" {
		table = DefaultTable
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, wrap("parse dsn", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, wrap("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap("ping", err)
	}
	logger.Info("technique library connected", zap.String("table", table))
	return &PostgresLibrary{db: pool, table: table, logger: logger}, nil
}

// Query returns up to topK chunks ordered by cosine distance.
func (l *PostgresLibrary) Query(ctx context.Context, vector []float32, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT chunk_id, title, content, embedding <=> $1 AS distance
FROM %s ORDER BY distance LIMIT $2`, pgx.Identifier{l.table}.Sanitize())

	rows, err := l.db.Query(ctx, q, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, wrap("query", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c        Chunk
			distance float64
		)
		if err := rows.Scan(&c.ChunkID, &c.Title, &c.Content, &distance); err != nil {
			return nil, wrap("scan", err)
		}
		c.Similarity = vectorstore.Similarity(distance)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("rows", err)
	}
	return chunks, nil
}

// Close shuts down the connection pool.
func (l *PostgresLibrary) Close() {
	l.db.Close()
}
