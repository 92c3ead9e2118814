package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 进程内文档库（测试与单机部署）
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

// NewMemoryStore 创建内存文档库并预建集合
func NewMemoryStore(collections ...string) *MemoryStore {
	s := &MemoryStore{collections: make(map[string]map[string]Document)}
	for _, name := range collections {
		s.collections[name] = make(map[string]Document)
	}
	return s
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memCollection{store: s, name: name}
}

func (s *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return ErrAlreadyExists
	}
	s.collections[name] = make(map[string]Document)
	return nil
}

type memCollection struct {
	store *MemoryStore
	name  string
}

func (c *memCollection) Name() string { return c.name }

func (c *memCollection) Doc(id string) DocRef {
	return &memDoc{coll: c, id: id}
}

func (c *memCollection) Where(f Filter) Query {
	return &memQuery{coll: c, filter: f}
}

// docs 调用方持有锁
func (c *memCollection) docs() (map[string]Document, error) {
	docs, ok := c.store.collections[c.name]
	if !ok {
		return nil, ErrCollectionNotExist
	}
	return docs, nil
}

type memQuery struct {
	coll   *memCollection
	filter Filter
	skip   int
	limit  int
}

func (q *memQuery) Skip(n int) Query {
	cp := *q
	cp.skip = n
	return &cp
}

func (q *memQuery) Limit(n int) Query {
	cp := *q
	cp.limit = n
	return &cp
}

func (q *memQuery) matching() ([]Document, error) {
	q.coll.store.mu.RLock()
	defer q.coll.store.mu.RUnlock()
	docs, err := q.coll.docs()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for id, doc := range docs {
		if Matches(doc, q.filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := clone(docs[id])
		if err != nil {
			return nil, err
		}
		doc[IDField] = id
		out = append(out, doc)
	}
	return out, nil
}

func (q *memQuery) Get(_ context.Context) ([]Document, error) {
	docs, err := q.matching()
	if err != nil {
		return nil, err
	}
	if q.skip > 0 {
		if q.skip >= len(docs) {
			return []Document{}, nil
		}
		docs = docs[q.skip:]
	}
	if q.limit > 0 && len(docs) > q.limit {
		docs = docs[:q.limit]
	}
	return docs, nil
}

func (q *memQuery) Count(_ context.Context) (int, error) {
	docs, err := q.matching()
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

type memDoc struct {
	coll *memCollection
	id   string
}

func (d *memDoc) ID() string { return d.id }

func (d *memDoc) Get(_ context.Context) (Document, error) {
	d.coll.store.mu.RLock()
	defer d.coll.store.mu.RUnlock()
	docs, err := d.coll.docs()
	if err != nil {
		return nil, err
	}
	doc, ok := docs[d.id]
	if !ok {
		return nil, ErrNotFound
	}
	out, err := clone(doc)
	if err != nil {
		return nil, err
	}
	out[IDField] = d.id
	return out, nil
}

func (d *memDoc) Create(_ context.Context, doc Document) error {
	cp, err := clone(doc)
	if err != nil {
		return err
	}
	d.coll.store.mu.Lock()
	defer d.coll.store.mu.Unlock()
	docs, err := d.coll.docs()
	if err != nil {
		return err
	}
	if _, ok := docs[d.id]; ok {
		return ErrAlreadyExists
	}
	docs[d.id] = cp
	return nil
}

func (d *memDoc) Set(_ context.Context, doc Document) error {
	cp, err := clone(doc)
	if err != nil {
		return err
	}
	d.coll.store.mu.Lock()
	defer d.coll.store.mu.Unlock()
	docs, err := d.coll.docs()
	if err != nil {
		return err
	}
	docs[d.id] = cp
	return nil
}

func (d *memDoc) Update(_ context.Context, u Update) error {
	d.coll.store.mu.Lock()
	defer d.coll.store.mu.Unlock()
	docs, err := d.coll.docs()
	if err != nil {
		return err
	}
	doc, ok := docs[d.id]
	if !ok {
		return ErrNotFound
	}
	cp, err := clone(doc)
	if err != nil {
		return err
	}
	if err := ApplyUpdate(cp, u); err != nil {
		return err
	}
	docs[d.id] = cp
	return nil
}

func (d *memDoc) Remove(_ context.Context) error {
	d.coll.store.mu.Lock()
	defer d.coll.store.mu.Unlock()
	docs, err := d.coll.docs()
	if err != nil {
		return err
	}
	delete(docs, d.id)
	return nil
}
