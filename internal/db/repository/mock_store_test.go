package repository

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gokatarajesh/certprep/internal/docstore"
)

type mockDocStore struct {
	mock.Mock
}

func (m *mockDocStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	args := m.Called(ctx, collection, id)
	return args.Get(0).(docstore.Document), args.Error(1)
}

func (m *mockDocStore) Query(ctx context.Context, collection string, q docstore.Query) (docstore.Page, error) {
	args := m.Called(ctx, collection, q)
	return args.Get(0).(docstore.Page), args.Error(1)
}

func (m *mockDocStore) Add(ctx context.Context, collection string, record any) (string, error) {
	args := m.Called(ctx, collection, record)
	return args.String(0), args.Error(1)
}

func (m *mockDocStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return m.Called(ctx, collection, id, fields).Error(0)
}

func (m *mockDocStore) Delete(ctx context.Context, collection, id string) error {
	return m.Called(ctx, collection, id).Error(0)
}

func doc(id, data string) docstore.Document {
	return docstore.Document{ID: id, Data: []byte(data)}
}
