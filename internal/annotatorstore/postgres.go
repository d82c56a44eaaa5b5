package annotatorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"annogate/internal/annotation"
	"annogate/pkg/platform/sentinel"
)

// PostgresBackend stores each annotation as a JSONB document in a table named
// after the configured index.
type PostgresBackend struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres constructs a backend over an existing pool. index becomes the
// table name.
func NewPostgres(pool *pgxpool.Pool, index string) *PostgresBackend {
	return &PostgresBackend{
		pool:  pool,
		table: pgx.Identifier{index}.Sanitize(),
	}
}

func (p *PostgresBackend) CreateAll(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id      TEXT PRIMARY KEY,
			doc     JSONB NOT NULL,
			updated TEXT NOT NULL DEFAULT ''
		)`, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (doc jsonb_path_ops)`,
			pgx.Identifier{strings.Trim(p.table, `"`) + "_doc_idx"}.Sanitize(), p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create annotation schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresBackend) DropAll(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, p.table)); err != nil {
		return fmt.Errorf("drop annotation schema: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, id string) (annotation.Annotation, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, p.table), id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	return decodeDoc(raw)
}

func (p *PostgresBackend) Save(ctx context.Context, ann annotation.Annotation) error {
	id := ann.ID()
	if id == "" {
		return fmt.Errorf("save annotation: missing id")
	}
	raw, err := json.Marshal(ann)
	if err != nil {
		return fmt.Errorf("encode annotation: %w", err)
	}
	updated, _ := ann[annotation.FieldUpdated].(string)
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, doc, updated) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated = EXCLUDED.updated`, p.table),
		id, raw, updated)
	if err != nil {
		return fmt.Errorf("save annotation: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, p.table), id)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) Search(ctx context.Context, q Query) ([]annotation.Annotation, error) {
	var args []any
	where, err := clauseSQL(q.Clause, &args)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY updated DESC, id ASC`, p.table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("search annotations: %w", err)
	}
	defer rows.Close()

	out := []annotation.Annotation{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search annotations: %w", err)
	}
	return out, nil
}

// clauseSQL renders a clause as a boolean SQL expression, appending bind
// arguments to args.
func clauseSQL(c Clause, args *[]any) (string, error) {
	switch {
	case c.Term != nil:
		return matchSQL(c.Term, args)
	case c.Terms != nil:
		return matchSQL(c.Terms, args)
	case len(c.Must) == 0:
		return "TRUE", nil
	default:
		parts := make([]string, 0, len(c.Must))
		for _, sub := range c.Must {
			s, err := clauseSQL(sub, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	}
}

func matchSQL(f *FieldMatch, args *[]any) (string, error) {
	if len(f.Values) == 0 {
		return "FALSE", nil
	}
	path := jsonPath(f.Field) + " ? (@ == $v)"
	parts := make([]string, 0, len(f.Values))
	for _, v := range f.Values {
		vars, err := json.Marshal(map[string]any{"v": v})
		if err != nil {
			return "", fmt.Errorf("encode term value: %w", err)
		}
		*args = append(*args, path, string(vars))
		n := len(*args)
		parts = append(parts, fmt.Sprintf("jsonb_path_exists(doc, $%d::jsonpath, $%d::jsonb)", n-1, n))
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

// jsonPath converts a dotted field name to a lax-mode SQL/JSON path. Lax mode
// unwraps arrays, so list fields match on any element.
func jsonPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(field, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(part))
		b.WriteString(`"`)
	}
	return b.String()
}
