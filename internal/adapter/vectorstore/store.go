package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	_ "modernc.org/sqlite"

	"venturedesk/internal/domain"
)

// Store implements domain.VectorStore backed by SQLite. Each collection is a
// named namespace with a fixed embedding dimension; vectors whose dimension
// does not match are rejected before any similarity math runs.
//
// An in-memory index per collection caches chunk vectors so a query does not
// scan SQLite. The index loads lazily on first query and is invalidated by
// Upsert.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	index  *chunkIndex
}

// New opens (or creates) a SQLite database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrVectorStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrVectorStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrVectorStore, err)
	}

	return &Store{db: db, logger: logger, index: newChunkIndex()}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS collections (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT NOT NULL,
			collection TEXT NOT NULL REFERENCES collections(name),
			text       TEXT NOT NULL,
			source_id  TEXT NOT NULL DEFAULT '',
			embedding  BLOB NOT NULL,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateCollection registers a collection with a fixed dimension. Creating an
// existing collection with the same dimension is a no-op; a different
// dimension is rejected.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int) error {
	if name == "" || dimension <= 0 {
		return fmt.Errorf("%w: collection needs a name and a positive dimension", domain.ErrInvalidInput)
	}

	existing, err := s.collectionDimension(ctx, name)
	if err == nil {
		if existing != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, want %d",
				domain.ErrDimensionMismatch, name, existing, dimension)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimension) VALUES (?, ?)", name, dimension)
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", domain.ErrVectorStore, err)
	}
	return nil
}

// Upsert implements domain.VectorStore. The chunk vector must match the
// collection dimension exactly.
func (s *Store) Upsert(ctx context.Context, collection string, chunk domain.Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
	}

	dim, err := s.collectionDimension(ctx, collection)
	if err != nil {
		return err
	}
	if len(chunk.Embedding) != dim {
		return fmt.Errorf("%w: vector has %d dimensions, collection %q wants %d",
			domain.ErrDimensionMismatch, len(chunk.Embedding), collection, dim)
	}

	const upsert = `
		INSERT INTO chunks (id, collection, text, source_id, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text      = excluded.text,
			source_id = excluded.source_id,
			embedding = excluded.embedding
	`
	_, err = s.db.ExecContext(ctx, upsert,
		chunk.ID, collection, chunk.Text, chunk.SourceID, vectorToBlob(chunk.Embedding))
	if err != nil {
		return fmt.Errorf("%w: upsert chunk %q: %v", domain.ErrVectorStore, chunk.ID, err)
	}

	s.index.invalidate(collection)
	return nil
}

// UpsertBatch writes chunks in a single transaction. Much cheaper than
// calling Upsert per chunk during ingestion.
func (s *Store) UpsertBatch(ctx context.Context, collection string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim, err := s.collectionDimension(ctx, collection)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %q has %d dimensions, collection %q wants %d",
				domain.ErrDimensionMismatch, c.ID, len(c.Embedding), collection, dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, collection, text, source_id, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text      = excluded.text,
			source_id = excluded.source_id,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrVectorStore, err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, collection, c.Text, c.SourceID, vectorToBlob(c.Embedding)); err != nil {
			return fmt.Errorf("%w: upsert chunk %q: %v", domain.ErrVectorStore, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrVectorStore, err)
	}

	s.index.invalidate(collection)
	return nil
}

// Collections implements domain.VectorStore.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", domain.ErrVectorStore, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan collection: %v", domain.ErrVectorStore, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) collectionDimension(ctx context.Context, name string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx,
		"SELECT dimension FROM collections WHERE name = ?", name).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: lookup collection: %v", domain.ErrVectorStore, err)
	}
	return dim, nil
}

// vectorToBlob converts a vector to little-endian bytes.
func vectorToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// blobToVector converts little-endian bytes back to a vector.
func blobToVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
