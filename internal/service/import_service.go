package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"wisefido-intake/internal/docstore"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/excel"
	"wisefido-intake/internal/grouping"
	"wisefido-intake/internal/intake"
	"wisefido-intake/internal/metrics"
	"wisefido-intake/internal/textnorm"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImportService 住户登记表导入
type ImportService interface {
	// ImportWorkbook 读取、分组、落库导入行，再逐个住户同步入住记录与聚合字段
	ImportWorkbook(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportReport, error)
	// Template 空白导入模板
	Template() ([]byte, error)
}

// ImportOptions 导入选项
type ImportOptions struct {
	SourceFile string // 可选：原始文件名，写入导入行元数据
	BatchID    string // 可选，默认随机生成
	// ForceSummary 即使入住记录无变化也重新计算聚合字段
	ForceSummary bool
}

// ImportReport 导入结果
type ImportReport struct {
	BatchID string         `json:"batch_id"`
	Rows    int            `json:"rows"`
	Stored  int            `json:"stored"`
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Skipped int            `json:"skipped"`
	Groups  []*GroupReport `json:"groups"`
}

// GroupReport 单个住户的导入结果
type GroupReport struct {
	Key            string                   `json:"record_key"`
	Name           string                   `json:"name"`
	Rows           int                      `json:"rows"`
	AdmissionCount int                      `json:"admission_count"`
	Created        int                      `json:"created"`
	Updated        int                      `json:"updated"`
	Skipped        int                      `json:"skipped"`
	Summary        *domain.AggregateSummary `json:"summary,omitempty"`
}

type importService struct {
	store       docstore.Store
	reconcile   ReconcileService
	metrics     *metrics.Metrics
	collection  string
	policy      grouping.Policy
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// NewImportService 创建 ImportService 实例；concurrency 为同时同步的住户数
func NewImportService(store docstore.Store, reconcile ReconcileService, m *metrics.Metrics, collection string, concurrency int, logger *zap.Logger) ImportService {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &importService{
		store:       store,
		reconcile:   reconcile,
		metrics:     m,
		collection:  collection,
		policy:      grouping.DefaultPolicy,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *importService) Template() ([]byte, error) {
	return excel.GenerateImportTemplate()
}

// ImportWorkbook 导入住户登记表
//
// 导入行以稳定 ID 覆盖写入，同一文件重复导入不会产生重复行或重复入住记录。
func (s *importService) ImportWorkbook(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportReport, error) {
	start := time.Now()
	defer s.metrics.ObserveImport(start)

	// 1. 读取
	records, err := excel.ReadImportedRecords(r)
	if err != nil {
		return nil, fmt.Errorf("invalid workbook: %w", err)
	}
	batchID := textnorm.FirstNonEmpty(opts.BatchID, "batch_"+uuid.NewString())
	report := &ImportReport{BatchID: batchID, Rows: len(records)}
	if len(records) == 0 {
		return report, nil
	}

	// 2. 分组
	now := textnorm.At(s.now().UnixMilli())
	grouper := grouping.NewGrouper(s.policy)
	for i := range records {
		rec := records[i]
		rec.SyncBatchID = batchID
		rec.ImportedAt = rec.ImportedAt.Or(now)
		rec.UpdatedAt = now
		rec.Metadata.SourceFile = textnorm.FirstNonEmpty(rec.Metadata.SourceFile, opts.SourceFile)
		grouper.Add(rec, i)
	}
	groups := grouper.Groups()

	// 3. 落库导入行
	if err := docstore.EnsureCollection(ctx, s.store, s.collection); err != nil {
		return nil, fmt.Errorf("failed to prepare import collection: %w", err)
	}
	for _, g := range groups {
		for i := range g.Records {
			if s.storeRecord(ctx, g.Key, &g.Records[i]) {
				report.Stored++
			}
		}
	}

	// 4. 逐个住户同步
	report.Groups = make([]*GroupReport, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, g := range groups {
		g := g
		gr := &GroupReport{
			Key:            g.Key,
			Name:           g.Name,
			Rows:           len(g.Records),
			AdmissionCount: g.AdmissionCount,
		}
		report.Groups[i] = gr
		eg.Go(func() error {
			res, err := s.reconcile.SyncImportedRecordsToIntake(egCtx, g.Key, SyncOptions{
				ImportKeys:   g.ImportKeys(),
				RecordKey:    g.Key,
				ForceSummary: opts.ForceSummary,
			})
			if err != nil {
				s.logger.Warn("group sync skipped",
					zap.String("record_key", g.Key),
					zap.Error(err),
				)
				return nil
			}
			gr.Created, gr.Updated, gr.Skipped, gr.Summary = res.Created, res.Updated, res.Skipped, res.Summary
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, gr := range report.Groups {
		report.Created += gr.Created
		report.Updated += gr.Updated
		report.Skipped += gr.Skipped
	}
	s.logger.Info("workbook imported",
		zap.String("batch_id", batchID),
		zap.String("source_file", opts.SourceFile),
		zap.Int("rows", report.Rows),
		zap.Int("stored", report.Stored),
		zap.Int("groups", len(groups)),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// storeRecord 以 import_record_id 为文档 ID 覆盖写入导入行
func (s *importService) storeRecord(ctx context.Context, key string, rec *domain.ImportedRecord) bool {
	id := intake.ImportRecordID(key, *rec)
	rec.Metadata.ImportRecordID = id
	rec.ID = ""

	doc, err := docstore.Encode(rec)
	if err == nil {
		err = s.store.Collection(s.collection).Doc(id).Set(ctx, doc)
	}
	if err != nil {
		s.metrics.StoreFailure("store_import_record")
		s.logger.Warn("failed to store imported row",
			zap.String("record_key", key),
			zap.String("doc_id", id),
			zap.Int("row_index", rec.RowIndex),
			zap.String("code", docstore.Code(err)),
			zap.Error(err),
		)
		return false
	}
	rec.ID = id
	return true
}
