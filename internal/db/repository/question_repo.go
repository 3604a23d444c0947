package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gokatarajesh/certprep/internal/docstore"
	"github.com/gokatarajesh/certprep/internal/question"
)

const (
	CollectionModules   = "modules"
	CollectionQuestions = "questions"
)

const defaultPageSize = 100

// QuestionRepository reads modules and their question pools from the document store.
type QuestionRepository struct {
	store    docstore.Store
	pageSize int
}

var _ question.Source = (*QuestionRepository)(nil)

func NewQuestionRepository(store docstore.Store, pageSize int) *QuestionRepository {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &QuestionRepository{store: store, pageSize: pageSize}
}

// GetModule loads one module by id.
func (r *QuestionRepository) GetModule(ctx context.Context, moduleID string) (question.Module, error) {
	doc, err := r.store.Get(ctx, CollectionModules, moduleID)
	if err != nil {
		return question.Module{}, fmt.Errorf("get module: %w", err)
	}
	var m question.Module
	if err := docstore.Decode(doc, &m); err != nil {
		return question.Module{}, err
	}
	m.ID = doc.ID
	return m, nil
}

// ListByModule returns every question whose moduleId matches, oldest first.
// Questions created within the same second come back in insertion order.
func (r *QuestionRepository) ListByModule(ctx context.Context, moduleID string) ([]question.Question, error) {
	q := docstore.Query{
		Filters: []docstore.Filter{{Field: "moduleId", Value: moduleID}},
		OrderBy: "createdAt",
		Limit:   r.pageSize,
	}

	var out []question.Question
	for {
		page, err := r.store.Query(ctx, CollectionQuestions, q)
		if err != nil {
			return nil, fmt.Errorf("query questions: %w", err)
		}
		for _, doc := range page.Documents {
			var item question.Question
			if err := docstore.Decode(doc, &item); err != nil {
				return nil, err
			}
			item.ID = doc.ID
			out = append(out, item)
		}
		if page.NextCursor == "" {
			return out, nil
		}
		q.Cursor = page.NextCursor
	}
}

// AddModule stores a module and returns its id.
func (r *QuestionRepository) AddModule(ctx context.Context, m question.Module) (string, error) {
	m.ID = ""
	id, err := r.store.Add(ctx, CollectionModules, m)
	if err != nil {
		return "", fmt.Errorf("add module: %w", err)
	}
	return id, nil
}

// AddQuestion stores a question and returns its id.
func (r *QuestionRepository) AddQuestion(ctx context.Context, q question.Question) (string, error) {
	q.ID = ""
	// whole seconds keep createdAt fixed-width, so it sorts as text
	q.CreatedAt = q.CreatedAt.UTC().Truncate(time.Second)
	id, err := r.store.Add(ctx, CollectionQuestions, q)
	if err != nil {
		return "", fmt.Errorf("add question: %w", err)
	}
	return id, nil
}
