package index

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// VectorStore is the persistent side of the embedding index. The in-memory
// index answers queries; this store is the explicit flush boundary and the
// source for rehydration at startup.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunk_embeddings"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT NOT NULL,
			model_version TEXT NOT NULL,
			document_id TEXT NOT NULL,
			company_id TEXT,
			ordinal INTEGER NOT NULL,
			content TEXT,
			start_offset INTEGER,
			end_offset INTEGER,
			page INTEGER,
			embedding vector(%d),
			PRIMARY KEY (chunk_id, model_version)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	// Create vector index
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Flush upserts records keyed by (chunk_id, model_version). Replaying the
// same snapshot is harmless, which keeps the flush boundary idempotent like
// the in-memory insert.
func (vs *VectorStore) Flush(ctx context.Context, records []FlushRecord) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, model_version, document_id, company_id, ordinal, content, start_offset, end_offset, page, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (chunk_id, model_version) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for _, r := range records {
		_, err := tx.Exec(ctx, stmt,
			r.Chunk.ID,
			r.ModelVersion,
			r.Chunk.DocumentID,
			r.CompanyID,
			r.Chunk.Ordinal,
			sanitizeUTF8(r.Chunk.Text),
			r.Chunk.Start,
			r.Chunk.End,
			r.Chunk.Page,
			pgvector.NewVector(r.Vector),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %v", r.Chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Load reads all records for one model version back out, for seeding the
// in-memory index at process start.
func (vs *VectorStore) Load(ctx context.Context, modelVersion string) ([]FlushRecord, error) {
	query := fmt.Sprintf(`
		SELECT chunk_id, model_version, document_id, company_id, ordinal, content, start_offset, end_offset, page, embedding
		FROM %s
		WHERE model_version = $1
		ORDER BY document_id, ordinal`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %v", err)
	}
	defer rows.Close()

	var records []FlushRecord
	for rows.Next() {
		var (
			r         FlushRecord
			companyID *string
			embedding pgvector.Vector
		)
		err := rows.Scan(
			&r.Chunk.ID,
			&r.ModelVersion,
			&r.Chunk.DocumentID,
			&companyID,
			&r.Chunk.Ordinal,
			&r.Chunk.Text,
			&r.Chunk.Start,
			&r.Chunk.End,
			&r.Chunk.Page,
			&embedding,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		if companyID != nil {
			r.CompanyID = *companyID
		}
		r.Vector = embedding.Slice()
		records = append(records, r)
	}

	return records, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// Add this helper function
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
