package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gokatarajesh/certprep/internal/docstore"
	"github.com/gokatarajesh/certprep/internal/report"
)

const (
	CollectionResults = "testResults"
	viewedPageSize    = 100
)

// ResultRepository persists test results as documents.
type ResultRepository struct {
	store docstore.Store
}

var _ report.Store = (*ResultRepository)(nil)

func NewResultRepository(store docstore.Store) *ResultRepository {
	return &ResultRepository{store: store}
}

func (r *ResultRepository) Create(ctx context.Context, result report.TestResult) (string, error) {
	result.ID = ""
	result.HasBeenViewed = false
	result.LastViewedAt = nil
	id, err := r.store.Add(ctx, CollectionResults, result)
	if err != nil {
		return "", fmt.Errorf("create result: %w", err)
	}
	return id, nil
}

func (r *ResultRepository) Get(ctx context.Context, id string) (report.TestResult, error) {
	doc, err := r.store.Get(ctx, CollectionResults, id)
	if err != nil {
		return report.TestResult{}, fmt.Errorf("get result: %w", err)
	}
	return decodeResult(doc)
}

// MarkViewed flips the one-time view flag and stamps the view time.
func (r *ResultRepository) MarkViewed(ctx context.Context, id string, at time.Time) error {
	fields := map[string]any{
		"hasBeenViewed": true,
		"lastViewedAt":  at.UTC(),
	}
	if err := r.store.Update(ctx, CollectionResults, id, fields); err != nil {
		return fmt.Errorf("mark result viewed: %w", err)
	}
	return nil
}

func (r *ResultRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, CollectionResults, id); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

// ListByUser pages through a user's results, newest first.
func (r *ResultRepository) ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]report.TestResult, string, error) {
	page, err := r.store.Query(ctx, CollectionResults, docstore.Query{
		Filters:    []docstore.Filter{{Field: "userId", Value: userID}},
		OrderBy:    "completedAt",
		Descending: true,
		Limit:      limit,
		Cursor:     cursor,
	})
	if err != nil {
		return nil, "", fmt.Errorf("list results: %w", err)
	}

	out := make([]report.TestResult, 0, len(page.Documents))
	for _, doc := range page.Documents {
		res, err := decodeResult(doc)
		if err != nil {
			return nil, "", err
		}
		out = append(out, res)
	}
	return out, page.NextCursor, nil
}

// ListViewed returns every result whose one-time view has been consumed.
func (r *ResultRepository) ListViewed(ctx context.Context) ([]report.TestResult, error) {
	var out []report.TestResult
	cursor := ""
	for {
		page, err := r.store.Query(ctx, CollectionResults, docstore.Query{
			Filters: []docstore.Filter{{Field: "hasBeenViewed", Value: true}},
			Limit:   viewedPageSize,
			Cursor:  cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("list viewed results: %w", err)
		}
		for _, doc := range page.Documents {
			res, err := decodeResult(doc)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func decodeResult(doc docstore.Document) (report.TestResult, error) {
	var res report.TestResult
	if err := docstore.Decode(doc, &res); err != nil {
		return report.TestResult{}, err
	}
	res.ID = doc.ID
	return res, nil
}
