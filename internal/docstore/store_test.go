package docstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/certprep/internal/db"
	"github.com/gokatarajesh/certprep/internal/docstore"
)

type record struct {
	ModuleID  string `json:"moduleId"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	Viewed    bool   `json:"viewed"`
}

func newSQLiteStore(t *testing.T) docstore.Store {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn, db.DriverSQLite))
	return docstore.NewSQLStore(conn, docstore.DialectSQLite)
}

func stores(t *testing.T) map[string]docstore.Store {
	return map[string]docstore.Store{
		"memory": docstore.NewMemory(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStoreCRUD(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Add(ctx, "items", record{ModuleID: "m1", Text: "first"})
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			doc, err := store.Get(ctx, "items", id)
			require.NoError(t, err)
			var got record
			require.NoError(t, docstore.Decode(doc, &got))
			assert.Equal(t, "first", got.Text)
			assert.False(t, got.Viewed)

			require.NoError(t, store.Update(ctx, "items", id, map[string]any{"viewed": true}))
			doc, err = store.Get(ctx, "items", id)
			require.NoError(t, err)
			require.NoError(t, docstore.Decode(doc, &got))
			assert.True(t, got.Viewed)
			assert.Equal(t, "first", got.Text, "update must merge, not replace")

			require.NoError(t, store.Delete(ctx, "items", id))
			_, err = store.Get(ctx, "items", id)
			assert.True(t, errors.Is(err, docstore.ErrNotFound))

			assert.ErrorIs(t, store.Delete(ctx, "items", id), docstore.ErrNotFound)
			assert.ErrorIs(t, store.Update(ctx, "items", id, map[string]any{"viewed": false}), docstore.ErrNotFound)
		})
	}
}

func TestStoreQueryFilterOrderAndPaging(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []record{
				{ModuleID: "m1", Text: "c", CreatedAt: "2026-01-03T00:00:00Z"},
				{ModuleID: "m2", Text: "x", CreatedAt: "2026-01-01T00:00:00Z"},
				{ModuleID: "m1", Text: "a", CreatedAt: "2026-01-01T00:00:00Z"},
				{ModuleID: "m1", Text: "b", CreatedAt: "2026-01-02T00:00:00Z"},
			}
			for _, r := range seed {
				_, err := store.Add(ctx, "paged", r)
				require.NoError(t, err)
			}

			q := docstore.Query{
				Filters: []docstore.Filter{{Field: "moduleId", Value: "m1"}},
				OrderBy: "createdAt",
				Limit:   2,
			}
			first, err := store.Query(ctx, "paged", q)
			require.NoError(t, err)
			require.Len(t, first.Documents, 2)
			assert.NotEmpty(t, first.NextCursor)

			q.Cursor = first.NextCursor
			second, err := store.Query(ctx, "paged", q)
			require.NoError(t, err)
			require.Len(t, second.Documents, 1)
			assert.Empty(t, second.NextCursor)

			var texts []string
			for _, doc := range append(first.Documents, second.Documents...) {
				var r record
				require.NoError(t, docstore.Decode(doc, &r))
				texts = append(texts, r.Text)
			}
			assert.Equal(t, []string{"a", "b", "c"}, texts)

			desc, err := store.Query(ctx, "paged", docstore.Query{
				Filters:    []docstore.Filter{{Field: "moduleId", Value: "m1"}},
				OrderBy:    "createdAt",
				Descending: true,
			})
			require.NoError(t, err)
			require.Len(t, desc.Documents, 3)
			var top record
			require.NoError(t, docstore.Decode(desc.Documents[0], &top))
			assert.Equal(t, "c", top.Text)
		})
	}
}

func TestStoreQueryFiltersOnTypedValues(t *testing.T) {
	type scored struct {
		Viewed bool    `json:"viewed"`
		Score  int     `json:"score"`
		Ratio  float64 `json:"ratio"`
		Label  string  `json:"label"`
	}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Add(ctx, "typed", scored{Viewed: true, Score: 60, Ratio: 0.5, Label: "sixty"})
			require.NoError(t, err)
			_, err = store.Add(ctx, "typed", scored{Viewed: false, Score: 7, Ratio: 1.25, Label: "7"})
			require.NoError(t, err)

			count := func(f docstore.Filter) int {
				page, err := store.Query(ctx, "typed", docstore.Query{Filters: []docstore.Filter{f}})
				require.NoError(t, err)
				return len(page.Documents)
			}

			assert.Equal(t, 1, count(docstore.Filter{Field: "viewed", Value: true}))
			assert.Equal(t, 1, count(docstore.Filter{Field: "viewed", Value: false}))
			assert.Equal(t, 1, count(docstore.Filter{Field: "score", Value: 60}))
			assert.Equal(t, 1, count(docstore.Filter{Field: "score", Value: int64(7)}))
			assert.Equal(t, 1, count(docstore.Filter{Field: "ratio", Value: 0.5}))
			assert.Equal(t, 1, count(docstore.Filter{Field: "label", Value: "sixty"}))
			assert.Zero(t, count(docstore.Filter{Field: "score", Value: 61}))
		})
	}
}

func TestStoreRejectsInvalidField(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Query(context.Background(), "items", docstore.Query{
				Filters: []docstore.Filter{{Field: "x'; DROP TABLE documents; --", Value: "1"}},
			})
			assert.ErrorIs(t, err, docstore.ErrInvalidField)
		})
	}
}
