package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryDoc struct {
	seq  int64
	data map[string]any
}

// Memory is an in-process Store used by tests and local demos.
type Memory struct {
	mu          sync.RWMutex
	seq         int64
	collections map[string]map[string]*memoryDoc
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*memoryDoc)}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return toDocument(id, doc)
}

func (m *Memory) Query(_ context.Context, collection string, q Query) (Page, error) {
	if err := q.validate(); err != nil {
		return Page{}, err
	}
	offset, err := parseCursor(q.Cursor)
	if err != nil {
		return Page{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		id  string
		doc *memoryDoc
	}
	var matched []entry
	for id, doc := range m.collections[collection] {
		if matches(doc.data, q.Filters) {
			matched = append(matched, entry{id: id, doc: doc})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if q.OrderBy != "" {
			if c := compareValues(matched[i].doc.data[q.OrderBy], matched[j].doc.data[q.OrderBy]); c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return matched[i].doc.seq < matched[j].doc.seq
	})

	if offset >= len(matched) {
		return Page{}, nil
	}
	matched = matched[offset:]
	more := false
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
		more = true
	}

	page := Page{Documents: make([]Document, 0, len(matched))}
	for _, e := range matched {
		doc, err := toDocument(e.id, e.doc)
		if err != nil {
			return Page{}, err
		}
		page.Documents = append(page.Documents, doc)
	}
	page.NextCursor = nextCursor(offset, len(page.Documents), more)
	return page, nil
}

func (m *Memory) Add(_ context.Context, collection string, record any) (string, error) {
	data, err := toMap(record)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]*memoryDoc)
		m.collections[collection] = coll
	}
	m.seq++
	id := uuid.NewString()
	coll[id] = &memoryDoc{seq: m.seq, data: data}
	return id, nil
}

// Put stores a record under a caller-chosen id, replacing any previous body.
func (m *Memory) Put(collection, id string, record any) error {
	data, err := toMap(record)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]*memoryDoc)
		m.collections[collection] = coll
	}
	m.seq++
	coll[id] = &memoryDoc{seq: m.seq, data: data}
	return nil
}

func (m *Memory) Update(_ context.Context, collection, id string, fields map[string]any) error {
	patch, err := toMap(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		doc.data[k] = v
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	if _, ok := coll[id]; !ok {
		return ErrNotFound
	}
	delete(coll, id)
	return nil
}

// Len reports how many documents a collection holds.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func toMap(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	return out, nil
}

func toDocument(id string, doc *memoryDoc) (Document, error) {
	raw, err := json.Marshal(doc.data)
	if err != nil {
		return Document{}, fmt.Errorf("marshal document %s: %w", id, err)
	}
	return Document{ID: id, Data: raw}, nil
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || filterText(v) != filterText(f.Value) {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
