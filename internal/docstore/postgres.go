package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgreSQL 错误码
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS doc_collections (
		name       TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL REFERENCES doc_collections(name) ON DELETE CASCADE,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops)`,
}

// PostgresStore 基于 JSONB 表的文档库
// 读取不存在的集合视为空集合；写入不存在的集合返回 ErrCollectionNotExist
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore 创建 PostgreSQL 文档库
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Migrate 建表（幂等）
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate document store: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{store: s, name: name}
}

func (s *PostgresStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM doc_collections WHERE name = $1)`, name).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("collection exists: %w", err)
	}
	return ok, nil
}

func (s *PostgresStore) CreateCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO doc_collections (name) VALUES ($1)`, name)
	if err != nil {
		return translate(err)
	}
	s.logger.Info("Document collection created", zap.String("collection", name))
	return nil
}

// translate 将 PostgreSQL 约束错误映射为哨兵错误
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pqErr.Message)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrCollectionNotExist, pqErr.Message)
		}
	}
	return err
}

func marshalDoc(doc Document) ([]byte, error) {
	cp, err := clone(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cp)
}

func unmarshalDoc(id string, raw []byte) (Document, error) {
	var doc Document
	if err := decodeJSON(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	if doc == nil {
		doc = Document{}
	}
	doc[IDField] = id
	return doc, nil
}

type pgCollection struct {
	store *PostgresStore
	name  string
}

func (c *pgCollection) Name() string { return c.name }

func (c *pgCollection) Doc(id string) DocRef {
	return &pgDoc{coll: c, id: id}
}

func (c *pgCollection) Where(f Filter) Query {
	return &pgQuery{coll: c, filter: f}
}

type pgQuery struct {
	coll   *pgCollection
	filter Filter
	skip   int
	limit  int
}

func (q *pgQuery) Skip(n int) Query {
	cp := *q
	cp.skip = n
	return &cp
}

func (q *pgQuery) Limit(n int) Query {
	cp := *q
	cp.limit = n
	return &cp
}

func (q *pgQuery) containment() (string, error) {
	raw, err := json.Marshal(nest(q.filter))
	if err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	return string(raw), nil
}

func (q *pgQuery) Get(ctx context.Context) ([]Document, error) {
	filter, err := q.containment()
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, data
		FROM documents
		WHERE collection = $1
		  AND data @> $2::jsonb
		ORDER BY id
		OFFSET $3`
	args := []any{q.coll.name, filter, q.skip}
	if q.limit > 0 {
		query += ` LIMIT $4`
		args = append(args, q.limit)
	}

	rows, err := q.coll.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.coll.name, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.coll.name, err)
		}
		doc, err := unmarshalDoc(id, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.coll.name, err)
	}
	return docs, nil
}

func (q *pgQuery) Count(ctx context.Context) (int, error) {
	filter, err := q.containment()
	if err != nil {
		return 0, err
	}
	var n int
	err = q.coll.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1 AND data @> $2::jsonb`,
		q.coll.name, filter).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.coll.name, err)
	}
	return n, nil
}

type pgDoc struct {
	coll *pgCollection
	id   string
}

func (d *pgDoc) ID() string { return d.id }

func (d *pgDoc) db() *sql.DB { return d.coll.store.db }

func (d *pgDoc) Get(ctx context.Context) (Document, error) {
	var raw []byte
	err := d.db().QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		d.coll.name, d.id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", d.coll.name, d.id, err)
	}
	return unmarshalDoc(d.id, raw)
}

func (d *pgDoc) Create(ctx context.Context, doc Document) error {
	raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	_, err = d.db().ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		d.coll.name, d.id, string(raw))
	if err != nil {
		return translate(err)
	}
	return nil
}

func (d *pgDoc) Set(ctx context.Context, doc Document) error {
	raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	_, err = d.db().ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		d.coll.name, d.id, string(raw))
	if err != nil {
		return translate(err)
	}
	return nil
}

// Update 事务内读-改-写，行锁保证并发更新不丢字段
func (d *pgDoc) Update(ctx context.Context, u Update) error {
	tx, err := d.db().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update %s/%s: %w", d.coll.name, d.id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		d.coll.name, d.id).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock %s/%s: %w", d.coll.name, d.id, err)
	}

	var doc Document
	if err := decodeJSON(raw, &doc); err != nil {
		return fmt.Errorf("decode document %s: %w", d.id, err)
	}
	if doc == nil {
		doc = Document{}
	}
	if err := ApplyUpdate(doc, u); err != nil {
		return err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
		d.coll.name, d.id, string(out)); err != nil {
		return fmt.Errorf("update %s/%s: %w", d.coll.name, d.id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update %s/%s: %w", d.coll.name, d.id, err)
	}
	return nil
}

func (d *pgDoc) Remove(ctx context.Context) error {
	if _, err := d.db().ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, d.coll.name, d.id); err != nil {
		return fmt.Errorf("remove %s/%s: %w", d.coll.name, d.id, err)
	}
	return nil
}

// OpenPostgres 打开连接池并验证连通性
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
