// Package docstore 文档库抽象：集合、按字段过滤的分页查询、单文档读写
//
// 字段路径使用点号表示嵌套（如 metadata.import_record_id）。
// 文档 ID 不写入文档内容，读取时以 "_id" 字段返回。
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// IDField 读取结果中的文档 ID 字段
const IDField = "_id"

var (
	ErrNotFound           = errors.New("document not found")
	ErrAlreadyExists      = errors.New("document already exists")
	ErrCollectionNotExist = errors.New("collection does not exist")
)

// Code 错误的简短代码，写入告警日志便于人工重放
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrCollectionNotExist):
		return "collection_not_exist"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "unavailable"
}

// Document JSON 形态的文档
type Document map[string]any

// ID 文档 ID（读取结果才有）
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Filter 字段路径 → 期望值（相等比较）
type Filter map[string]any

// FieldUpdate 单个字段的更新：设置为某值，或删除该字段
type FieldUpdate struct {
	remove bool
	value  any
}

// Set 设置字段
func Set(v any) FieldUpdate { return FieldUpdate{value: v} }

// Remove 删除字段
func Remove() FieldUpdate { return FieldUpdate{remove: true} }

func (u FieldUpdate) IsRemove() bool { return u.remove }
func (u FieldUpdate) Value() any     { return u.value }

// Update 字段路径 → 更新
type Update map[string]FieldUpdate

// Paths 排序后的字段路径
func (u Update) Paths() []string {
	paths := make([]string, 0, len(u))
	for p := range u {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Store 文档库
type Store interface {
	Collection(name string) Collection
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateCollection 已存在时返回 ErrAlreadyExists
	CreateCollection(ctx context.Context, name string) error
}

// Collection 文档集合
type Collection interface {
	Name() string
	Doc(id string) DocRef
	Where(f Filter) Query
}

// Query 分页查询；Limit(0) 表示不限制
type Query interface {
	Skip(n int) Query
	Limit(n int) Query
	Get(ctx context.Context) ([]Document, error)
	Count(ctx context.Context) (int, error)
}

// DocRef 单个文档
type DocRef interface {
	ID() string
	// Get 不存在时返回 ErrNotFound
	Get(ctx context.Context) (Document, error)
	// Create 已存在时返回 ErrAlreadyExists
	Create(ctx context.Context, doc Document) error
	// Set 整体覆盖，不存在则创建
	Set(ctx context.Context, doc Document) error
	// Update 部分更新，不存在时返回 ErrNotFound
	Update(ctx context.Context, u Update) error
	Remove(ctx context.Context) error
}

// EnsureCollection 集合不存在时创建；并发创建导致的 ErrAlreadyExists 视为成功
func EnsureCollection(ctx context.Context, s Store, name string) error {
	ok, err := s.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if ok {
		return nil
	}
	if err := s.CreateCollection(ctx, name); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Encode 结构体 → 文档
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := decodeJSON(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode 文档 → 结构体
func Decode(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func decodeJSON(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// normalize 转为 JSON 形态（map[string]any / []any / json.Number / string / bool / nil）
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// clone 深拷贝文档并去掉 _id
func clone(doc Document) (Document, error) {
	out, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = Document{}
	}
	delete(out, IDField)
	return out, nil
}

// ApplyUpdate 在文档上原地应用更新
func ApplyUpdate(doc Document, u Update) error {
	for _, path := range u.Paths() {
		fu := u[path]
		parts := strings.Split(path, ".")
		if fu.IsRemove() {
			removePath(doc, parts)
			continue
		}
		v, err := normalize(fu.Value())
		if err != nil {
			return fmt.Errorf("update %s: %w", path, err)
		}
		setPath(doc, parts, v)
	}
	return nil
}

func setPath(doc map[string]any, parts []string, v any) {
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func removePath(doc map[string]any, parts []string) {
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// Lookup 按点号路径取值
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Matches 文档是否满足过滤条件
func Matches(doc Document, f Filter) bool {
	for path, want := range f {
		got, ok := Lookup(doc, path)
		if !ok || !sameJSON(got, want) {
			return false
		}
	}
	return true
}

func sameJSON(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}

// nest 将点号路径过滤条件展开为嵌套对象（用于 jsonb 包含查询）
func nest(f Filter) map[string]any {
	out := map[string]any{}
	for _, path := range sortedKeys(f) {
		setPath(out, strings.Split(path, "."), f[path])
	}
	return out
}

func sortedKeys(f Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unchanged 应用 u 后文档是否保持不变
func Unchanged(doc Document, u Update) bool {
	for _, path := range u.Paths() {
		fu := u[path]
		got, ok := Lookup(doc, path)
		if fu.IsRemove() {
			if ok {
				return false
			}
			continue
		}
		if !ok || !sameJSON(got, fu.Value()) {
			return false
		}
	}
	return true
}
