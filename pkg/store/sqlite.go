package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Gateway backed by a sqlite database. Each collection is a
// table of (id, doc) rows with the document stored as JSON; filters are
// evaluated in-process against the decoded documents and indexes become
// json_extract expression indexes.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a sqlite-backed gateway at the given path.
// Use ":memory:" for an ephemeral database.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; sqlite locks the whole database anyway.
	db.SetMaxOpenConns(1)
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Find(ctx context.Context, collection string, query Query, options *FindOptions) ([]Document, error) {
	docs, err := s.scanAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	var matched []Document
	for _, doc := range docs {
		if Match(doc, query) {
			matched = append(matched, doc)
		}
	}
	return applyFindOptions(matched, options), nil
}

func (s *SQLite) Count(ctx context.Context, collection string, query Query) (int64, error) {
	docs, err := s.Find(ctx, collection, query, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (s *SQLite) Create(ctx context.Context, collection string, doc Document) (Document, error) {
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
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES (?, ?)`, tableName(collection)), id, string(raw))
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return s.Read(ctx, collection, Query{"_id": id})
}

func (s *SQLite) Read(ctx context.Context, collection string, query Query) (Document, error) {
	docs, err := s.Find(ctx, collection, query, &FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (s *SQLite) Update(ctx context.Context, collection string, doc Document) (Document, error) {
	id := DocumentID(doc)
	if id == "" {
		return nil, ErrInvalidID
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET doc = ? WHERE id = ?`, tableName(collection)), string(raw), id)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Read(ctx, collection, Query{"_id": id})
}

func (s *SQLite) Delete(ctx context.Context, collection string, query Query) error {
	doc, err := s.Read(ctx, collection, query)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, tableName(collection)), DocumentID(doc))
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

func (s *SQLite) GetCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'col_%' ORDER BY name`)
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

func (s *SQLite) CreateCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, tableName(name)))
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *SQLite) CreateIndex(ctx context.Context, collection string, field string, options *IndexOptions) error {
	unique := ""
	if options != nil && options.Unique {
		unique = "UNIQUE "
	}
	indexName := fmt.Sprintf("idx_%s_%s", collection, strings.ReplaceAll(field, ".", "_"))
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE %sINDEX IF NOT EXISTS %q ON %q (json_extract(doc, '$.%s'))`,
		unique, indexName, tableName(collection), field))
	if err != nil {
		return fmt.Errorf("create index on %s.%s: %w", collection, field, err)
	}
	return nil
}

func (s *SQLite) scanAll(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %q ORDER BY rowid`, tableName(collection)))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode document in %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// tableName prefixes collection tables so they never collide with internal
// sqlite tables.
func tableName(collection string) string {
	return "col_" + collection
}
