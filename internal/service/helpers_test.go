package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wisefido-intake/internal/config"
	"wisefido-intake/internal/docstore"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testCollections = config.CollectionsConfig{
	Residents:     "residents",
	Intake:        "intake_records",
	ImportRecords: "import_records",
	Cache:         "import_cache",
}

const testCacheKey = "resident_list"

// fixedNow 2024-03-01T08:00:00Z
var fixedNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// countingInvalidator 记录失效次数
type countingInvalidator struct {
	n   int32
	err error
}

func (c *countingInvalidator) Invalidate(context.Context, string) error {
	atomic.AddInt32(&c.n, 1)
	return c.err
}

func (c *countingInvalidator) count() int { return int(atomic.LoadInt32(&c.n)) }

type testEnv struct {
	store   docstore.Store
	mem     *docstore.MemoryStore
	cache   *countingInvalidator
	metrics *metrics.Metrics
	svc     *reconcileService
}

// newTestEnv 内存文档库；不预建集合，验证按需创建
func newTestEnv(t *testing.T, wrap func(docstore.Store) docstore.Store) *testEnv {
	t.Helper()
	mem := docstore.NewMemoryStore()
	var store docstore.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	inv := &countingInvalidator{}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewReconcileService(store, inv, m, ReconcileConfig{
		Collections: testCollections,
		CacheKey:    testCacheKey,
	}, zap.NewNop()).(*reconcileService)
	svc.now = func() time.Time { return fixedNow }
	return &testEnv{store: store, mem: mem, cache: inv, metrics: m, svc: svc}
}

func (e *testEnv) put(t *testing.T, collection, id string, v any) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, docstore.EnsureCollection(ctx, e.mem, collection))
	doc, err := docstore.Encode(v)
	require.NoError(t, err)
	require.NoError(t, e.mem.Collection(collection).Doc(id).Set(ctx, doc))
}

func (e *testEnv) get(t *testing.T, collection, id string) docstore.Document {
	t.Helper()
	doc, err := e.mem.Collection(collection).Doc(id).Get(context.Background())
	require.NoError(t, err)
	return doc
}

func (e *testEnv) all(t *testing.T, collection string) []docstore.Document {
	t.Helper()
	docs, err := e.mem.Collection(collection).Where(docstore.Filter{}).Get(context.Background())
	require.NoError(t, err)
	return docs
}

func importRow(key string, row int, date, hospital, diagnosis string) domain.ImportedRecord {
	return domain.ImportedRecord{
		Key:           key,
		ResidentName:  "王芳",
		AdmissionDate: date,
		Hospital:      hospital,
		Diagnosis:     diagnosis,
		RowIndex:      row,
		ImportOrder:   row,
	}
}

// faultStore 按 "操作:集合" 注入错误
type faultStore struct {
	docstore.Store
	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
}

func newFaultStore(inner docstore.Store) *faultStore {
	return &faultStore{Store: inner, fail: map[string]error{}, calls: map[string]int{}}
}

func (f *faultStore) failOn(op, collection string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op+":"+collection] = err
}

func (f *faultStore) callCount(op, collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+":"+collection]
}

func (f *faultStore) check(op, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op+":"+collection]++
	return f.fail[op+":"+collection]
}

func (f *faultStore) Collection(name string) docstore.Collection {
	return &faultCollection{Collection: f.Store.Collection(name), store: f}
}

type faultCollection struct {
	docstore.Collection
	store *faultStore
}

func (c *faultCollection) Doc(id string) docstore.DocRef {
	return &faultDoc{DocRef: c.Collection.Doc(id), c: c}
}

func (c *faultCollection) Where(f docstore.Filter) docstore.Query {
	return &faultQuery{Query: c.Collection.Where(f), c: c}
}

type faultQuery struct {
	docstore.Query
	c *faultCollection
}

func (q *faultQuery) Skip(n int) docstore.Query {
	return &faultQuery{Query: q.Query.Skip(n), c: q.c}
}

func (q *faultQuery) Limit(n int) docstore.Query {
	return &faultQuery{Query: q.Query.Limit(n), c: q.c}
}

func (q *faultQuery) Get(ctx context.Context) ([]docstore.Document, error) {
	if err := q.c.store.check("query", q.c.Name()); err != nil {
		return nil, err
	}
	return q.Query.Get(ctx)
}

func (q *faultQuery) Count(ctx context.Context) (int, error) {
	if err := q.c.store.check("count", q.c.Name()); err != nil {
		return 0, err
	}
	return q.Query.Count(ctx)
}

type faultDoc struct {
	docstore.DocRef
	c *faultCollection
}

func (d *faultDoc) Get(ctx context.Context) (docstore.Document, error) {
	if err := d.c.store.check("get", d.c.Name()); err != nil {
		return nil, err
	}
	return d.DocRef.Get(ctx)
}

func (d *faultDoc) Create(ctx context.Context, doc docstore.Document) error {
	if err := d.c.store.check("create", d.c.Name()); err != nil {
		return err
	}
	return d.DocRef.Create(ctx, doc)
}

func (d *faultDoc) Set(ctx context.Context, doc docstore.Document) error {
	if err := d.c.store.check("set", d.c.Name()); err != nil {
		return err
	}
	return d.DocRef.Set(ctx, doc)
}

func (d *faultDoc) Update(ctx context.Context, u docstore.Update) error {
	if err := d.c.store.check("update", d.c.Name()); err != nil {
		return err
	}
	return d.DocRef.Update(ctx, u)
}
