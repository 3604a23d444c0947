package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when a collection has no document with the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidField rejects filter/order fields that are not plain identifiers.
	ErrInvalidField = errors.New("invalid field name")
	// ErrInvalidCursor is returned for cursors this store did not issue.
	ErrInvalidCursor = errors.New("invalid cursor")
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Filter is an equality match on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Query describes a filtered, ordered, paginated read of one collection.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	Cursor     string
}

// Document is a stored record with its store-assigned id.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Page is one page of query results. NextCursor is empty when there are no more documents.
type Page struct {
	Documents  []Document
	NextCursor string
}

// Store is the persistence collaborator every repository is built on.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) (Page, error)
	Add(ctx context.Context, collection string, record any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Decode unmarshals a document body into dst.
func Decode(doc Document, dst any) error {
	if err := json.Unmarshal(doc.Data, dst); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

func (q Query) validate() error {
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
		}
	}
	if q.OrderBy != "" && !fieldPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: %q", ErrInvalidField, q.OrderBy)
	}
	return nil
}

// cursors are plain offsets; callers treat them as opaque.
func parseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return offset, nil
}

func nextCursor(offset, returned int, more bool) string {
	if !more {
		return ""
	}
	return strconv.Itoa(offset + returned)
}

// filterText renders a value the way it reads back from stored JSON.
func filterText(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
