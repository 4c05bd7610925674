package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// Postgres is a Gateway backed by PostgreSQL. Collections are tables of
// (id, doc JSONB) rows; filter evaluation happens in-process so the query
// dialect stays identical across backends.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a postgres-backed gateway from a connection URL.
func NewPostgres(url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection pool. Used by tests.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Find(ctx context.Context, collection string, query Query, options *FindOptions) ([]Document, error) {
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %q ORDER BY seq`, tableName(collection)))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	defer rows.Close()

	var matched []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document in %s: %w", collection, err)
		}
		if Match(doc, query) {
			matched = append(matched, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return applyFindOptions(matched, options), nil
}

func (p *Postgres) Count(ctx context.Context, collection string, query Query) (int64, error) {
	docs, err := p.Find(ctx, collection, query, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (p *Postgres) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	stored := deepCopy(doc).(Document)
	id := DocumentID(stored)
	if id == "" {
		id = NewID()
		stored["_id"] = id
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES ($1, $2)`, tableName(collection)), id, raw)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return stored, nil
}

func (p *Postgres) Read(ctx context.Context, collection string, query Query) (Document, error) {
	docs, err := p.Find(ctx, collection, query, &FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (p *Postgres) Update(ctx context.Context, collection string, doc Document) (Document, error) {
	id := DocumentID(doc)
	if id == "" {
		return nil, ErrInvalidID
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET doc = $1 WHERE id = $2`, tableName(collection)), raw, id)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return deepCopy(doc).(Document), nil
}

func (p *Postgres) Delete(ctx context.Context, collection string, query Query) error {
	doc, err := p.Read(ctx, collection, query)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = $1`, tableName(collection)), DocumentID(doc))
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

func (p *Postgres) GetCollections(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename LIKE 'col_%' ORDER BY tablename`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, err
		}
		names = append(names, strings.TrimPrefix(table, "col_"))
	}
	return names, rows.Err()
}

func (p *Postgres) CreateCollection(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (seq BIGSERIAL, id TEXT PRIMARY KEY, doc JSONB NOT NULL)`,
		tableName(name)))
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (p *Postgres) CreateIndex(ctx context.Context, collection string, field string, options *IndexOptions) error {
	unique := ""
	if options != nil && options.Unique {
		unique = "UNIQUE "
	}
	indexName := fmt.Sprintf("idx_%s_%s", collection, strings.ReplaceAll(field, ".", "_"))
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE %sINDEX IF NOT EXISTS %q ON %q ((doc -> '%s'))`,
		unique, indexName, tableName(collection), field))
	if err != nil {
		return fmt.Errorf("create index on %s.%s: %w", collection, field, err)
	}
	return nil
}
