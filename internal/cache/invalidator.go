package cache

import (
	"context"
	"fmt"
	"time"

	"wisefido-intake/internal/docstore"
)

// Invalidator 住户列表缓存失效
// 调用方记录并忽略返回的错误，失效失败不影响写入结果
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// KVInvalidator 删除 key 以及分页缓存 key:*
type KVInvalidator struct {
	kv KV
}

func NewKVInvalidator(kv KV) *KVInvalidator { return &KVInvalidator{kv: kv} }

func (i *KVInvalidator) Invalidate(ctx context.Context, key string) error {
	keys, err := i.kv.ScanKeys(ctx, key+":*")
	if err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if err := i.kv.Delete(ctx, append(keys, key)...); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}
	return nil
}

// DocumentInvalidator 将缓存文档覆盖为空列表
type DocumentInvalidator struct {
	store      docstore.Store
	collection string
	now        func() time.Time
}

func NewDocumentInvalidator(store docstore.Store, collection string) *DocumentInvalidator {
	return &DocumentInvalidator{store: store, collection: collection, now: time.Now}
}

func (i *DocumentInvalidator) Invalidate(ctx context.Context, key string) error {
	if err := docstore.EnsureCollection(ctx, i.store, i.collection); err != nil {
		return err
	}
	err := i.store.Collection(i.collection).Doc(key).Set(ctx, docstore.Document{
		"residents":      []any{},
		"total_count":    0,
		"has_more":       false,
		"limit":          0,
		"updated_at":     0,
		"invalidated_at": i.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("overwrite cache document %s: %w", key, err)
	}
	return nil
}

// Nop 不使用缓存时的占位实现
type Nop struct{}

func (Nop) Invalidate(context.Context, string) error { return nil }
