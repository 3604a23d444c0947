package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/certprep/internal/db"
	"github.com/gokatarajesh/certprep/internal/docstore"
	"github.com/gokatarajesh/certprep/internal/report"
)

func TestResultRepository_CreateStartsUnviewed(t *testing.T) {
	store := new(mockDocStore)
	repo := NewResultRepository(store)

	viewed := time.Now()
	in := report.TestResult{ID: "ignored", UserID: "u1", Score: 80, HasBeenViewed: true, LastViewedAt: &viewed}
	want := in
	want.ID = ""
	want.HasBeenViewed = false
	want.LastViewedAt = nil

	store.On("Add", mock.Anything, CollectionResults, want).Return("r1", nil)

	id, err := repo.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "r1", id)
	store.AssertExpectations(t)
}

func TestResultRepository_MarkViewed(t *testing.T) {
	store := new(mockDocStore)
	repo := NewResultRepository(store)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.On("Update", mock.Anything, CollectionResults, "r1", map[string]any{
		"hasBeenViewed": true,
		"lastViewedAt":  at,
	}).Return(nil)

	require.NoError(t, repo.MarkViewed(context.Background(), "r1", at))
	store.AssertExpectations(t)
}

func TestResultRepository_DeleteMissing(t *testing.T) {
	store := new(mockDocStore)
	repo := NewResultRepository(store)

	store.On("Delete", mock.Anything, CollectionResults, "gone").Return(docstore.ErrNotFound)

	err := repo.Delete(context.Background(), "gone")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestResultRepository_RoundTripOnMemoryStore(t *testing.T) {
	mem := docstore.NewMemory()
	repo := NewResultRepository(mem)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := repo.Create(ctx, report.TestResult{
			UserID:      "u1",
			ModuleTitle: "Mod",
			Score:       i * 10,
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := repo.Create(ctx, report.TestResult{UserID: "u2", CompletedAt: base})
	require.NoError(t, err)

	page, next, err := repo.ListByUser(ctx, "u1", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID, "newest first")
	assert.Equal(t, ids[1], page[1].ID)
	require.NotEmpty(t, next)

	page, next, err = repo.ListByUser(ctx, "u1", 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Empty(t, next)

	at := base.Add(24 * time.Hour)
	require.NoError(t, repo.MarkViewed(ctx, ids[0], at))
	got, err := repo.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, got.HasBeenViewed)
	require.NotNil(t, got.LastViewedAt)
	assert.True(t, at.Equal(*got.LastViewedAt))

	require.NoError(t, repo.Delete(ctx, ids[0]))
	_, err = repo.Get(ctx, ids[0])
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestResultRepository_ListViewedAcrossPages(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:list_viewed?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn, db.DriverSQLite))

	stores := map[string]docstore.Store{
		"memory": docstore.NewMemory(),
		"sqlite": docstore.NewSQLStore(conn, docstore.DialectSQLite),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			repo := NewResultRepository(store)
			at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			viewed := map[string]bool{}
			for i := 0; i < viewedPageSize+5; i++ {
				id, err := repo.Create(ctx, report.TestResult{UserID: fmt.Sprintf("u%d", i)})
				require.NoError(t, err)
				if i%2 == 0 {
					require.NoError(t, repo.MarkViewed(ctx, id, at))
					viewed[id] = true
				}
			}

			got, err := repo.ListViewed(ctx)
			require.NoError(t, err)
			require.Len(t, got, len(viewed))
			for _, r := range got {
				assert.True(t, viewed[r.ID])
				assert.True(t, r.HasBeenViewed)
				require.NotNil(t, r.LastViewedAt)
			}
		})
	}
}
