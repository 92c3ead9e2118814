package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_DocLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("residents")
	ref := s.Collection("residents").Doc("wangfang")

	_, err := ref.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ref.Update(ctx, Update{"name": Set("x")}), ErrNotFound)

	require.NoError(t, ref.Create(ctx, Document{"_id": "ignored", "name": "王芳"}))
	assert.ErrorIs(t, ref.Create(ctx, Document{"name": "王芳"}), ErrAlreadyExists)

	doc, err := ref.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wangfang", doc.ID())
	assert.Equal(t, "王芳", doc["name"])

	require.NoError(t, ref.Update(ctx, Update{"data.admission_count": Set(1)}))
	doc, err = ref.Get(ctx)
	require.NoError(t, err)
	v, ok := Lookup(doc, "data.admission_count")
	require.True(t, ok)
	assert.Equal(t, "1", fmt.Sprint(v))

	require.NoError(t, ref.Set(ctx, Document{"name": "王芳芳"}))
	doc, err = ref.Get(ctx)
	require.NoError(t, err)
	_, ok = doc["data"]
	assert.False(t, ok, "set replaces the whole document")

	require.NoError(t, ref.Remove(ctx))
	_, err = ref.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("c")
	ref := s.Collection("c").Doc("a")
	in := Document{"nested": map[string]any{"v": "1"}}
	require.NoError(t, ref.Set(ctx, in))

	in["nested"].(map[string]any)["v"] = "changed"
	doc, err := ref.Get(ctx)
	require.NoError(t, err)
	doc["nested"].(map[string]any)["v"] = "changed again"

	again, err := ref.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", again["nested"].(map[string]any)["v"])
}

func TestMemoryStore_WherePaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("import_records")
	coll := s.Collection("import_records")
	for i := 0; i < 5; i++ {
		key := "wangfang"
		if i == 2 {
			key = "lisi"
		}
		require.NoError(t, coll.Doc(fmt.Sprintf("row_%d", i)).Set(ctx, Document{"key": key}))
	}

	q := coll.Where(Filter{"key": "wangfang"})
	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	page, err := q.Skip(1).Limit(2).Get(ctx)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "row_1", page[0].ID())
	assert.Equal(t, "row_3", page[1].ID())

	page, err = q.Skip(10).Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, page)

	all, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMemoryStore_MissingCollection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	coll := s.Collection("intake_records")

	assert.ErrorIs(t, coll.Doc("a").Create(ctx, Document{}), ErrCollectionNotExist)
	_, err := coll.Where(Filter{}).Get(ctx)
	assert.ErrorIs(t, err, ErrCollectionNotExist)
	_, err = coll.Doc("a").Get(ctx)
	assert.ErrorIs(t, err, ErrCollectionNotExist)
}

func TestMemoryStore_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("residents")
	ref := s.Collection("residents").Doc("wangfang")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ref.Create(ctx, Document{"name": "王芳"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}
