package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EGF2/file/pkg/lifecycle"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements lifecycle.MetadataStore and lifecycle.SearchIndex
// over a single JSONB entity table.
type Repository struct {
	db  DBTX
	now func() time.Time
}

var (
	_ lifecycle.MetadataStore = (*Repository)(nil)
	_ lifecycle.SearchIndex   = (*Repository)(nil)
)

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return lifecycle.ErrObjectNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("entity already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "22P02": // invalid_text_representation
			return fmt.Errorf("invalid value in %s: %s", operation, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// CreateObject inserts doc. An id and created_at are assigned unless the
// document already carries them.
func (r *Repository) CreateObject(ctx context.Context, doc lifecycle.Document) (*lifecycle.Entity, error) {
	body, err := doc.Clone()
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	if body == nil {
		body = lifecycle.Document{}
	}

	id := body.String("id")
	if id == "" {
		id = uuid.NewString()
		body["id"] = id
	}
	createdAt := r.now().UTC()
	if s := body.String("created_at"); s != "" {
		if createdAt, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", s, err)
		}
	} else {
		body["created_at"] = createdAt.Format(time.RFC3339Nano)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO lifecycle_entities (id, object_type, body, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)`
	if _, err := r.db.Exec(ctx, query, id, body.String("object_type"), string(raw), createdAt, r.now().UTC()); err != nil {
		return nil, r.handlePostgresError("create entity", err)
	}

	return lifecycle.NewEntity(body)
}

func (r *Repository) GetObject(ctx context.Context, id string) (*lifecycle.Entity, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT body FROM lifecycle_entities WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		return nil, r.handlePostgresError("get entity", err)
	}
	return decodeEntity(raw)
}

// UpdateObject merges the top-level fields of patch into the stored body in
// a single statement. The id and object_type fields cannot be changed.
func (r *Repository) UpdateObject(ctx context.Context, id string, patch lifecycle.Document) (*lifecycle.Entity, error) {
	normalized, err := patch.Clone()
	if err != nil {
		return nil, fmt.Errorf("normalize patch: %w", err)
	}
	if normalized == nil {
		normalized = lifecycle.Document{}
	}
	delete(normalized, "id")
	delete(normalized, "object_type")
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE lifecycle_entities
		SET body = body || $2::jsonb, updated_at = $3
		WHERE id = $1
		RETURNING body`
	var updated []byte
	if err := r.db.QueryRow(ctx, query, id, string(raw), r.now().UTC()).Scan(&updated); err != nil {
		return nil, r.handlePostgresError("update entity", err)
	}
	return decodeEntity(updated)
}

func (r *Repository) DeleteObject(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM lifecycle_entities WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete entity", err)
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrObjectNotFound
	}
	return nil
}

func (r *Repository) GetObjectType(ctx context.Context, id string) (string, error) {
	var objectType string
	err := r.db.QueryRow(ctx, `SELECT object_type FROM lifecycle_entities WHERE id = $1`, id).Scan(&objectType)
	if err != nil {
		return "", r.handlePostgresError("get entity type", err)
	}
	return objectType, nil
}

// Search returns ids matching q in ascending id order. Filters compare the
// text form of top-level body fields; a created_at range uses the indexed
// column, other ranges cast the body field to a timestamp.
func (r *Repository) Search(ctx context.Context, q lifecycle.SearchQuery) (*lifecycle.SearchResult, error) {
	where, args := buildSearchWhereClause(q)
	query := "SELECT id FROM lifecycle_entities WHERE " + where + " ORDER BY id"
	if q.Count > 0 {
		args = append(args, q.Count)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("search entities", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, r.handlePostgresError("search entities", err)
	}

	result := &lifecycle.SearchResult{Results: ids}
	if len(ids) > 0 {
		result.Last = ids[len(ids)-1]
	}
	return result, nil
}

// buildSearchWhereClause builds the WHERE clause for search queries
func buildSearchWhereClause(q lifecycle.SearchQuery) (string, []interface{}) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.ObjectType != "" {
		clauses = append(clauses, "object_type = "+arg(q.ObjectType))
	}

	// sorted for stable SQL text
	fields := make([]string, 0, len(q.Filters))
	for field := range q.Filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		clauses = append(clauses, fmt.Sprintf("body->>%s = %s", arg(field), arg(q.Filters[field])))
	}

	fields = fields[:0]
	for field := range q.Range {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		rng := q.Range[field]
		column := "created_at"
		if field != "created_at" {
			column = fmt.Sprintf("(body->>%s)::timestamptz", arg(field))
		}
		if !rng.Gte.IsZero() {
			clauses = append(clauses, fmt.Sprintf("%s >= %s", column, arg(rng.Gte)))
		}
		if !rng.Lte.IsZero() {
			clauses = append(clauses, fmt.Sprintf("%s <= %s", column, arg(rng.Lte)))
		}
	}

	if q.After != "" {
		clauses = append(clauses, "id > "+arg(q.After))
	}

	return strings.Join(clauses, " AND "), args
}

func decodeEntity(raw []byte) (*lifecycle.Entity, error) {
	var doc lifecycle.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode entity body: %w", err)
	}
	if doc == nil {
		doc = lifecycle.Document{}
	}
	return lifecycle.NewEntity(doc)
}
