package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-intake/internal/cache"
	"wisefido-intake/internal/docstore"
	"wisefido-intake/internal/domain"

	"go.uber.org/zap"
)

// ResidentListService 住户列表（带读缓存）
type ResidentListService interface {
	ListResidents(ctx context.Context, req ListResidentsRequest) (*ListResidentsResponse, error)
}

// ListResidentsRequest 查询住户列表请求
type ListResidentsRequest struct {
	Skip  int // 可选，默认 0
	Limit int // 可选，默认 20，最大 100
}

// ListResidentsResponse 查询住户列表响应
type ListResidentsResponse struct {
	Residents  []*domain.Resident `json:"residents"`
	TotalCount int                `json:"total_count"`
	HasMore    bool               `json:"has_more"`
	Limit      int                `json:"limit"`
	UpdatedAt  int64              `json:"updated_at"`
}

type residentListService struct {
	store      docstore.Store
	kv         cache.KV
	collection string
	cacheKey   string
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewResidentListService 创建 ResidentListService 实例；kv 为 nil 时不使用缓存
func NewResidentListService(store docstore.Store, kv cache.KV, collection, cacheKey string, ttl time.Duration, logger *zap.Logger) ResidentListService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &residentListService{
		store:      store,
		kv:         kv,
		collection: collection,
		cacheKey:   cacheKey,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *residentListService) ListResidents(ctx context.Context, req ListResidentsRequest) (*ListResidentsResponse, error) {
	skip := req.Skip
	if skip < 0 {
		skip = 0
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > pageSize {
		limit = pageSize
	}

	key := fmt.Sprintf("%s:%d:%d", s.cacheKey, skip, limit)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	q := s.store.Collection(s.collection).Where(docstore.Filter{})
	total, err := q.Count(ctx)
	if err != nil && !errors.Is(err, docstore.ErrCollectionNotExist) {
		s.logger.Error("ListResidents count failed", zap.Error(err))
		return nil, fmt.Errorf("failed to list residents")
	}
	docs, err := q.Skip(skip).Limit(limit).Get(ctx)
	if err != nil && !errors.Is(err, docstore.ErrCollectionNotExist) {
		s.logger.Error("ListResidents failed", zap.Int("skip", skip), zap.Int("limit", limit), zap.Error(err))
		return nil, fmt.Errorf("failed to list residents")
	}

	resp := &ListResidentsResponse{
		Residents:  make([]*domain.Resident, 0, len(docs)),
		TotalCount: total,
		HasMore:    skip+len(docs) < total,
		Limit:      limit,
		UpdatedAt:  s.now().UnixMilli(),
	}
	for _, doc := range docs {
		var r domain.Resident
		if err := docstore.Decode(doc, &r); err != nil {
			s.logger.Warn("failed to decode resident document", zap.String("doc_id", doc.ID()), zap.Error(err))
			continue
		}
		resp.Residents = append(resp.Residents, &r)
	}

	s.remember(ctx, key, resp)
	return resp, nil
}

func (s *residentListService) cached(ctx context.Context, key string) (*ListResidentsResponse, bool) {
	if s.kv == nil {
		return nil, false
	}
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("resident list cache read failed", zap.String("cache_key", key), zap.Error(err))
		}
		return nil, false
	}
	var resp ListResidentsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (s *residentListService) remember(ctx context.Context, key string, resp *ListResidentsResponse) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, key, string(raw), s.ttl); err != nil {
		s.logger.Warn("resident list cache write failed", zap.String("cache_key", key), zap.Error(err))
	}
}
