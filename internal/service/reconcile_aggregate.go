package service

import (
	"context"

	"wisefido-intake/internal/docstore"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/intake"
	"wisefido-intake/internal/metrics"
	"wisefido-intake/internal/textnorm"

	"go.uber.org/zap"
)

// Summarize 汇总住户的入住记录
//
// 草稿与历史聚合产物不计入；去重后取最早、最新两条记录的信息（时间相同取后出现者）。
// 没有可计入的入住记录时，改为汇总尚未迁移的导入记录。
func (s *reconcileService) Summarize(ctx context.Context, key string, opts SummarizeOptions) (domain.AggregateSummary, error) {
	key = textnorm.NormalizeSpacing(key)
	if key == "" {
		return domain.AggregateSummary{}, ErrKeyRequired
	}

	var kept []domain.IntakeRecord
	for _, r := range s.fetchIntakeRecords(ctx, key) {
		if !intake.IsCountable(r) || intake.IsAggregateArtifact(key, r) {
			continue
		}
		kept = append(kept, r)
	}
	kept = intake.Dedupe(kept)
	if len(kept) > 0 {
		return summarizeRecords(kept), nil
	}
	return s.summarizeImports(ctx, key, opts.ImportKeys), nil
}

// fetchIntakeRecords 先计数再分页读取；单页失败跳过该页
func (s *reconcileService) fetchIntakeRecords(ctx context.Context, key string) []domain.IntakeRecord {
	coll := s.cfg.Collections.Intake
	q := s.store.Collection(coll).Where(docstore.Filter{"resident_key": key})

	total, err := q.Count(ctx)
	if err != nil {
		if !absent(err) {
			s.bestEffort("count_intake", coll, key, err)
		}
		return nil
	}

	records := make([]domain.IntakeRecord, 0, total)
	for skip := 0; skip < total; skip += pageSize {
		docs, err := q.Skip(skip).Limit(pageSize).Get(ctx)
		if err != nil {
			s.bestEffort("fetch_intake_page", coll, key, err)
			continue
		}
		for _, doc := range docs {
			var r domain.IntakeRecord
			if err := docstore.Decode(doc, &r); err != nil {
				s.logger.Warn("failed to decode intake record",
					zap.String("doc_id", doc.ID()),
					zap.Error(err),
				)
				continue
			}
			records = append(records, r)
		}
	}
	return records
}

// summarizeImports 由导入记录汇总
func (s *reconcileService) summarizeImports(ctx context.Context, key string, importKeys []string) domain.AggregateSummary {
	fallbacks := append([]string{trimImportPrefix(key)}, importKeys...)
	records, _ := s.FetchImportedRecordsByKey(ctx, key, fallbacks)

	var views []domain.IntakeRecord
	for _, rec := range records {
		v := intake.VisitView(rec, key)
		if intake.IsCountable(v) {
			views = append(views, v)
		}
	}
	views = intake.Dedupe(views)
	if len(views) == 0 {
		return domain.AggregateSummary{}
	}
	summary := summarizeRecords(views)
	summary.FromImportFallback = true
	return summary
}

// summarizeRecords records 非空且已去重
func summarizeRecords(records []domain.IntakeRecord) domain.AggregateSummary {
	var earliest, latest *domain.IntakeRecord
	var earliestTS, latestTS textnorm.Timestamp
	for i := range records {
		ts := intake.RecordTimestamp(records[i])
		if !ts.Valid {
			continue
		}
		if earliest == nil || ts.Millis < earliestTS.Millis {
			earliest, earliestTS = &records[i], ts
		}
		if latest == nil || ts.Millis >= latestTS.Millis {
			latest, latestTS = &records[i], ts
		}
	}
	if latest == nil {
		latest = &records[len(records)-1]
	}
	if earliest == nil {
		earliest, earliestTS = latest, latestTS
	}

	summary := domain.AggregateSummary{
		Count:             len(records),
		EarliestTimestamp: earliestTS,
		LatestTimestamp:   latestTS,
		LatestNarrative:   narrative(*latest),
		LatestHospital:    intake.Hospital(*latest),
		LatestDoctor:      textnorm.NormalizeSpacing(latest.MedicalInfo.Doctor),
		LatestDiagnosis:   intake.Diagnosis(*latest),
		HasActiveRecords:  true,
	}
	summary.FirstNarrative = textnorm.FirstNonEmpty(narrative(*earliest), summary.LatestNarrative)
	summary.FirstHospital = textnorm.FirstNonEmpty(intake.Hospital(*earliest), summary.LatestHospital)
	summary.FirstDoctor = textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(earliest.MedicalInfo.Doctor), summary.LatestDoctor)
	summary.FirstDiagnosis = textnorm.FirstNonEmpty(intake.Diagnosis(*earliest), summary.LatestDiagnosis)
	return summary
}

func narrative(r domain.IntakeRecord) string {
	return textnorm.FirstNonEmpty(
		textnorm.NormalizeSpacing(r.IntakeInfo.Situation),
		textnorm.NormalizeSpacing(r.MedicalInfo.Diagnosis),
		textnorm.NormalizeSpacing(r.MedicalInfo.TreatmentProcess),
	)
}

// rollupUpdate 聚合字段更新（顶层与 data.* 同步）
//
// 有记录时只写非空值；没有记录时删除全部聚合字段。
func rollupUpdate(summary domain.AggregateSummary) docstore.Update {
	u := docstore.Update{}
	put := func(field string, v any, present bool) {
		switch {
		case !summary.HasActiveRecords:
			u[field] = docstore.Remove()
			u[domain.MirrorPrefix+field] = docstore.Remove()
		case present:
			u[field] = docstore.Set(v)
			u[domain.MirrorPrefix+field] = docstore.Set(v)
		}
	}
	earliest, latest := summary.EarliestTimestamp, summary.LatestTimestamp

	put(domain.FieldAdmissionCount, summary.Count, summary.Count > 0)
	put(domain.FieldFirstAdmissionDate, earliest.Millis, earliest.Valid)
	put(domain.FieldLatestAdmissionDate, latest.Millis, latest.Valid)
	put(domain.FieldLatestAdmissionTimestamp, latest.Millis, latest.Valid)
	put(domain.FieldLastIntakeNarrative, summary.LatestNarrative, summary.LatestNarrative != "")
	put(domain.FieldLatestHospital, summary.LatestHospital, summary.LatestHospital != "")
	put(domain.FieldLatestDoctor, summary.LatestDoctor, summary.LatestDoctor != "")
	put(domain.FieldLatestDiagnosis, summary.LatestDiagnosis, summary.LatestDiagnosis != "")
	put(domain.FieldFirstHospital, summary.FirstHospital, summary.FirstHospital != "")
	put(domain.FieldFirstDiagnosis, summary.FirstDiagnosis, summary.FirstDiagnosis != "")
	put(domain.FieldFirstDoctor, summary.FirstDoctor, summary.FirstDoctor != "")
	put(domain.FieldFirstNarrative, summary.FirstNarrative, summary.FirstNarrative != "")
	return u
}

// SyncAggregates 重新计算并写入住户聚合字段
//
// 存储中的聚合字段已与计算结果一致时不写入也不触发缓存失效。
// 写入失败只记录，返回值总是本次计算的汇总。
func (s *reconcileService) SyncAggregates(ctx context.Context, key string, opts SyncAggregatesOptions) (domain.AggregateSummary, error) {
	summary, err := s.Summarize(ctx, key, SummarizeOptions{ImportKeys: opts.Ensure.ImportKeys})
	if err != nil {
		return summary, err
	}
	key = textnorm.NormalizeSpacing(key)

	serverTime := opts.ServerTime
	if serverTime == 0 {
		serverTime = s.now().UnixMilli()
	}

	// 1. 目标住户文档
	var docID string
	if opts.ResidentDoc != nil {
		docID = opts.ResidentDoc.ID
	}
	if docID == "" {
		ensured, err := s.EnsureResident(ctx, key, opts.Ensure)
		if err == nil && ensured.Resident != nil {
			docID = ensured.Resident.ID
		}
	}
	if docID == "" {
		s.logger.Debug("no resident document for aggregates", zap.String("resident_key", key))
		return summary, nil
	}

	coll := s.cfg.Collections.Residents
	ref := s.store.Collection(coll).Doc(docID)
	u := rollupUpdate(summary)

	// 2. 无变化时跳过
	current, err := ref.Get(ctx)
	switch {
	case err == nil && docstore.Unchanged(current, u):
		s.metrics.AggregateSync(metrics.AggregateUnchanged)
		return summary, nil
	case err != nil && !absent(err):
		s.bestEffort("get_resident", coll, docID, err)
	}

	// 3. 写入并使缓存失效
	u[domain.FieldUpdatedAt] = docstore.Set(serverTime)
	u[domain.MirrorPrefix+domain.FieldUpdatedAt] = docstore.Set(serverTime)
	if !s.bestEffort("ensure_collection", coll, key, docstore.EnsureCollection(ctx, s.store, coll)) ||
		!s.bestEffort("update_aggregates", coll, docID, ref.Update(ctx, u)) {
		s.metrics.AggregateSync(metrics.AggregateFailed)
		return summary, nil
	}
	if summary.HasActiveRecords {
		s.metrics.AggregateSync(metrics.AggregateWritten)
	} else {
		s.metrics.AggregateSync(metrics.AggregateCleared)
	}
	s.logger.Debug("resident aggregates written",
		zap.String("resident_key", key),
		zap.String("doc_id", docID),
		zap.Int("count", summary.Count),
		zap.Bool("from_import_fallback", summary.FromImportFallback),
	)
	s.invalidate(ctx, key)
	return summary, nil
}
