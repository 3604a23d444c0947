package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialect selects the SQL flavour used for JSON access.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore keeps every collection in a single documents table (see internal/db/migrations).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) fieldExpr(field string) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("data->>'%s'", field)
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", field)
}

// filterArg binds a filter value so it compares equal to the extracted field.
// Postgres ->> always yields text. SQLite json_extract yields typed values, with
// booleans as 1 and 0.
func (s *SQLStore) filterArg(v any) any {
	if s.dialect == DialectPostgres {
		return filterText(v)
	}
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, float32, float64:
		return x
	case string:
		return x
	}
	return filterText(v)
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	query := fmt.Sprintf(`SELECT data FROM documents WHERE collection = %s AND id = %s`, s.ph(1), s.ph(2))
	var data string
	if err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Data: json.RawMessage(data)}, nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, q Query) (Page, error) {
	if err := q.validate(); err != nil {
		return Page{}, err
	}
	offset, err := parseCursor(q.Cursor)
	if err != nil {
		return Page{}, err
	}

	args := []any{collection}
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT id, data FROM documents WHERE collection = %s`, s.ph(1))
	for _, f := range q.Filters {
		args = append(args, s.filterArg(f.Value))
		fmt.Fprintf(&b, ` AND %s = %s`, s.fieldExpr(f.Field), s.ph(len(args)))
	}

	b.WriteString(` ORDER BY `)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, `%s %s, `, s.fieldExpr(q.OrderBy), dir)
	}
	b.WriteString(`created_at ASC, id ASC`)

	// one extra row tells us whether another page exists
	if q.Limit > 0 {
		args = append(args, q.Limit+1)
		fmt.Fprintf(&b, ` LIMIT %s`, s.ph(len(args)))
	} else if offset > 0 && s.dialect == DialectSQLite {
		b.WriteString(` LIMIT -1`)
	}
	if offset > 0 {
		args = append(args, offset)
		fmt.Fprintf(&b, ` OFFSET %s`, s.ph(len(args)))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return Page{}, fmt.Errorf("scan %s: %w", collection, err)
		}
		page.Documents = append(page.Documents, Document{ID: id, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate %s: %w", collection, err)
	}

	more := false
	if q.Limit > 0 && len(page.Documents) > q.Limit {
		page.Documents = page.Documents[:q.Limit]
		more = true
	}
	page.NextCursor = nextCursor(offset, len(page.Documents), more)
	return page, nil
}

func (s *SQLStore) Add(ctx context.Context, collection string, record any) (string, error) {
	data, err := objectJSON(record)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	query := fmt.Sprintf(`INSERT INTO documents (collection, id, data, created_at) VALUES (%s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	if _, err := s.db.ExecContext(ctx, query, collection, id, data, s.now().UnixNano()); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := objectJSON(fields)
	if err != nil {
		return err
	}

	var res sql.Result
	if s.dialect == DialectPostgres {
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET data = data || $1::jsonb WHERE collection = $2 AND id = $3`,
			patch, collection, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET data = json_patch(data, ?) WHERE collection = ? AND id = ?`,
			patch, collection, id)
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return requireRow(res)
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	query := fmt.Sprintf(`DELETE FROM documents WHERE collection = %s AND id = %s`, s.ph(1), s.ph(2))
	res, err := s.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func objectJSON(record any) (string, error) {
	m, err := toMap(record)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(raw), nil
}
