package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"wisefido-intake/internal/cache"
	"wisefido-intake/internal/config"
	"wisefido-intake/internal/contact"
	"wisefido-intake/internal/docstore"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/intake"
	"wisefido-intake/internal/metrics"
	"wisefido-intake/internal/stablekey"
	"wisefido-intake/internal/textnorm"

	"go.uber.org/zap"
)

// pageSize 分页读取的每页条数
const pageSize = 100

// ErrKeyRequired 住户键为空
var ErrKeyRequired = errors.New("key is required")

// ReconcileService 住户、入住记录与聚合字段的对账服务
//
// 存储失败按尽力而为处理：记录日志与指标后继续，调用方总能拿到计算结果。
// 只有空键会返回错误。
type ReconcileService interface {
	// EnsureResident 查找住户，不存在时由导入记录创建
	EnsureResident(ctx context.Context, key string, opts EnsureOptions) (*EnsureResult, error)
	// SyncImportedRecordsToIntake 将导入记录同步为入住记录，并按需刷新聚合字段
	SyncImportedRecordsToIntake(ctx context.Context, key string, opts SyncOptions) (*SyncResult, error)
	// SyncAggregates 重新计算并写入住户聚合字段
	SyncAggregates(ctx context.Context, key string, opts SyncAggregatesOptions) (domain.AggregateSummary, error)
	// Summarize 只计算不写入
	Summarize(ctx context.Context, key string, opts SummarizeOptions) (domain.AggregateSummary, error)
	// FetchImportedRecordsByKey 依次按 primary、fallbacks 查找导入记录，命中即停
	FetchImportedRecordsByKey(ctx context.Context, primary string, fallbacks []string) ([]domain.ImportedRecord, error)
}

// ReconcileConfig 集合名称与缓存键
type ReconcileConfig struct {
	Collections config.CollectionsConfig
	// CacheKey 住户列表缓存键
	CacheKey string
}

type reconcileService struct {
	store   docstore.Store
	cache   cache.Invalidator
	metrics *metrics.Metrics
	cfg     ReconcileConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewReconcileService 创建 ReconcileService 实例
func NewReconcileService(store docstore.Store, invalidator cache.Invalidator, m *metrics.Metrics, cfg ReconcileConfig, logger *zap.Logger) ReconcileService {
	if invalidator == nil {
		invalidator = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reconcileService{
		store:   store,
		cache:   invalidator,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// EnsureOptions 查找/创建住户的附加导入键
type EnsureOptions struct {
	ImportKeys []string `json:"import_keys,omitempty"`
}

// EnsureResult 查找/创建结果；没有任何导入记录时 Resident 为 nil
type EnsureResult struct {
	Resident *domain.Resident `json:"resident"`
	Key      string           `json:"key"`
	Created  bool             `json:"created"`
}

// SyncOptions 导入记录同步选项
type SyncOptions struct {
	ImportKeys   []string         `json:"import_keys,omitempty"`
	RecordKey    string           `json:"record_key,omitempty"`
	ForceSummary bool             `json:"force_summary,omitempty"`
	ResidentDoc  *domain.Resident `json:"-"`
}

// SyncResult 同步结果
type SyncResult struct {
	Created int                      `json:"created"`
	Updated int                      `json:"updated"`
	Skipped int                      `json:"skipped"`
	Summary *domain.AggregateSummary `json:"summary"`
}

// SyncAggregatesOptions 聚合同步选项
type SyncAggregatesOptions struct {
	ResidentDoc *domain.Resident `json:"-"`
	// ServerTime 毫秒；0 表示当前时间
	ServerTime int64         `json:"server_time,omitempty"`
	Ensure     EnsureOptions `json:"ensure_options"`
}

// SummarizeOptions 汇总选项
type SummarizeOptions struct {
	ImportKeys []string `json:"import_keys,omitempty"`
}

// bestEffort 记录副作用失败；返回操作是否成功
func (s *reconcileService) bestEffort(op, collection, key string, err error) bool {
	if err == nil {
		return true
	}
	s.metrics.StoreFailure(op)
	s.logger.Warn("best-effort store operation failed",
		zap.String("op", op),
		zap.String("collection", collection),
		zap.String("key", key),
		zap.String("code", docstore.Code(err)),
		zap.Error(err),
	)
	return false
}

// invalidate 住户列表缓存失效，失败只记录
func (s *reconcileService) invalidate(ctx context.Context, residentKey string) {
	if err := s.cache.Invalidate(ctx, s.cfg.CacheKey); err != nil {
		s.metrics.StoreFailure("invalidate_cache")
		s.logger.Warn("resident list cache invalidation failed",
			zap.String("resident_key", residentKey),
			zap.String("cache_key", s.cfg.CacheKey),
			zap.Error(err),
		)
	}
}

// absent 文档或集合不存在，属于正常结果
func absent(err error) bool {
	return errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrCollectionNotExist)
}

// EnsureResident 查找住户，不存在时由导入记录创建
func (s *reconcileService) EnsureResident(ctx context.Context, key string, opts EnsureOptions) (*EnsureResult, error) {
	key = textnorm.NormalizeSpacing(key)
	if key == "" {
		return nil, ErrKeyRequired
	}

	// 1. 按文档 ID，再按 record_key 查找
	if resident := s.findResident(ctx, key); resident != nil {
		return &EnsureResult{Resident: resident, Key: resident.ID}, nil
	}

	// 2. 由导入记录构建
	records, _ := s.FetchImportedRecordsByKey(ctx, key, opts.ImportKeys)
	if len(records) == 0 {
		return &EnsureResult{Key: key}, nil
	}
	now := s.now().UnixMilli()
	payload := residentFromImports(key, records, now)

	docID := stablekey.Synthesize(key, "import_"+strconv.FormatInt(now, 10))
	coll := s.cfg.Collections.Residents
	if !s.bestEffort("ensure_collection", coll, key, docstore.EnsureCollection(ctx, s.store, coll)) {
		return &EnsureResult{Resident: payload, Key: key}, nil
	}
	doc, err := docstore.Encode(payload)
	if err != nil {
		s.bestEffort("encode_resident", coll, key, err)
		return &EnsureResult{Resident: payload, Key: key}, nil
	}

	// 3. 创建；并发创建冲突时读回已有文档
	ref := s.store.Collection(coll).Doc(docID)
	err = ref.Create(ctx, doc)
	switch {
	case err == nil:
		payload.ID = docID
		s.logger.Info("resident created from imported records",
			zap.String("resident_key", key),
			zap.String("doc_id", docID),
			zap.Int("records", len(records)),
		)
		s.invalidate(ctx, key)
		return &EnsureResult{Resident: payload, Key: docID, Created: true}, nil
	case errors.Is(err, docstore.ErrAlreadyExists):
		existing, getErr := ref.Get(ctx)
		if s.bestEffort("read_back_resident", coll, docID, getErr) {
			if resident, ok := s.decodeResident(existing); ok {
				return &EnsureResult{Resident: resident, Key: resident.ID}, nil
			}
		}
	default:
		s.bestEffort("create_resident", coll, docID, err)
	}
	return &EnsureResult{Resident: payload, Key: key}, nil
}

func (s *reconcileService) findResident(ctx context.Context, key string) *domain.Resident {
	coll := s.cfg.Collections.Residents
	c := s.store.Collection(coll)

	doc, err := c.Doc(key).Get(ctx)
	if err == nil {
		if resident, ok := s.decodeResident(doc); ok {
			return resident
		}
	} else if !absent(err) {
		s.bestEffort("get_resident", coll, key, err)
	}

	docs, err := c.Where(docstore.Filter{"record_key": key}).Limit(1).Get(ctx)
	if err != nil {
		if !absent(err) {
			s.bestEffort("find_resident_by_record_key", coll, key, err)
		}
		return nil
	}
	if len(docs) == 0 {
		return nil
	}
	resident, _ := s.decodeResident(docs[0])
	return resident
}

func (s *reconcileService) decodeResident(doc docstore.Document) (*domain.Resident, bool) {
	var resident domain.Resident
	if err := docstore.Decode(doc, &resident); err != nil {
		s.logger.Warn("failed to decode resident document",
			zap.String("doc_id", doc.ID()),
			zap.Error(err),
		)
		return nil, false
	}
	return &resident, true
}

// residentFromImports 由导入记录（任意顺序）构建住户文档
func residentFromImports(key string, records []domain.ImportedRecord, now int64) *domain.Resident {
	sorted := append([]domain.ImportedRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return newerImport(sorted[j], sorted[i])
	})
	first, latest := sorted[0], sorted[len(sorted)-1]
	g := deriveGuardian(records)

	caregivers := make([]string, 0, len(sorted))
	for _, rec := range sorted {
		caregivers = append(caregivers, rec.Caregivers)
	}

	rollup := domain.ResidentRollup{
		AdmissionCount:           intPtr(len(records)),
		FirstAdmissionDate:       millisPtr(first.VisitTimestamp()),
		LatestAdmissionDate:      millisPtr(latest.VisitTimestamp()),
		LatestAdmissionTimestamp: millisPtr(latest.VisitTimestamp()),
		LastIntakeNarrative: textnorm.FirstNonEmpty(
			textnorm.NormalizeSpacing(latest.Symptoms),
			textnorm.NormalizeSpacing(latest.Diagnosis),
			textnorm.NormalizeSpacing(latest.TreatmentProcess),
		),
		UpdatedAt: &now,
	}
	mirror := rollup

	return &domain.Resident{
		Key:         key,
		RecordKey:   key,
		Name:        textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(latest.ResidentName), key),
		IDNumber:    textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(latest.IDNumber), textnorm.NormalizeSpacing(first.IDNumber)),
		Gender:      textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(latest.Gender), textnorm.NormalizeSpacing(first.Gender)),
		BirthDate:   textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(latest.BirthDate), textnorm.NormalizeSpacing(first.BirthDate)),
		NativePlace: textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(latest.NativePlace), textnorm.NormalizeSpacing(first.NativePlace)),
		Ethnicity:   textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(latest.Ethnicity), textnorm.NormalizeSpacing(first.Ethnicity)),
		Address:     textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(latest.Address), textnorm.NormalizeSpacing(first.Address)),

		FatherInfo:           g.FatherInfo,
		FatherContactName:    g.FatherName,
		FatherContactPhone:   g.FatherPhone,
		MotherInfo:           g.MotherInfo,
		MotherContactName:    g.MotherName,
		MotherContactPhone:   g.MotherPhone,
		GuardianInfo:         g.GuardianInfo,
		GuardianContactName:  g.GuardianName,
		GuardianContactPhone: g.GuardianPhone,
		Caregivers:           contact.MergeCaregivers(caregivers...),
		FamilyEconomy:        textnorm.NormalizeSpacing(latest.FamilyEconomy),

		ImportRecordKeys: g.Keys,
		CareStatus:       domain.CareStatusDischarged,
		CreatedAt:        now,

		ResidentRollup: rollup,
		Data:           &mirror,
	}
}

// guardianInfo 从导入记录提取的监护人字段（每项取第一个非空值）
type guardianInfo struct {
	FatherInfo, FatherName, FatherPhone       string
	MotherInfo, MotherName, MotherPhone       string
	GuardianInfo, GuardianName, GuardianPhone string
	Keys                                      []string
}

func deriveGuardian(records []domain.ImportedRecord) guardianInfo {
	var g guardianInfo
	seen := make(map[string]struct{})
	for _, rec := range records {
		fillContact(&g.FatherInfo, &g.FatherName, &g.FatherPhone, rec.FatherInfo, contact.RoleFather)
		fillContact(&g.MotherInfo, &g.MotherName, &g.MotherPhone, rec.MotherInfo, contact.RoleMother)
		fillContact(&g.GuardianInfo, &g.GuardianName, &g.GuardianPhone, rec.OtherGuardian, contact.RoleOther)

		k := textnorm.FirstNonEmpty(
			textnorm.NormalizeSpacing(rec.RecordKey),
			textnorm.NormalizeSpacing(rec.Key),
			textnorm.NormalizeSpacing(rec.ResidentName),
		)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		g.Keys = append(g.Keys, k)
	}
	return g
}

func fillContact(raw, name, phone *string, text string, role contact.Role) {
	normalized := textnorm.NormalizeSpacing(text)
	if normalized == "" {
		return
	}
	setIfEmpty(raw, normalized)
	for _, info := range contact.ParseList(normalized, role) {
		setIfEmpty(name, info.Name)
		setIfEmpty(phone, info.Phone)
	}
}

// guardianUpdates 住户文档与导入记录不一致的监护人字段
func guardianUpdates(resident *domain.Resident, g guardianInfo) docstore.Update {
	u := docstore.Update{}
	for _, f := range []struct {
		field   string
		current string
		next    string
	}{
		{"father_info", resident.FatherInfo, g.FatherInfo},
		{"father_contact_name", resident.FatherContactName, g.FatherName},
		{"father_contact_phone", resident.FatherContactPhone, g.FatherPhone},
		{"mother_info", resident.MotherInfo, g.MotherInfo},
		{"mother_contact_name", resident.MotherContactName, g.MotherName},
		{"mother_contact_phone", resident.MotherContactPhone, g.MotherPhone},
		{"guardian_info", resident.GuardianInfo, g.GuardianInfo},
		{"guardian_contact_name", resident.GuardianContactName, g.GuardianName},
		{"guardian_contact_phone", resident.GuardianContactPhone, g.GuardianPhone},
	} {
		if f.next != "" && f.next != f.current {
			u[f.field] = docstore.Set(f.next)
		}
	}
	if merged := mergeKeys(resident.ImportRecordKeys, g.Keys); len(merged) != len(resident.ImportRecordKeys) {
		u["import_record_keys"] = docstore.Set(merged)
	}
	return u
}

// SyncImportedRecordsToIntake 将导入记录同步为入住记录
//
// 每行按稳定的 import_record_id 查找已有入住记录：存在则更新，不存在则创建，
// 因此同一行多次导入只产生一条入住记录。
func (s *reconcileService) SyncImportedRecordsToIntake(ctx context.Context, key string, opts SyncOptions) (*SyncResult, error) {
	key = textnorm.NormalizeSpacing(key)
	if key == "" {
		return nil, ErrKeyRequired
	}

	// 1. 住户
	resident := opts.ResidentDoc
	if resident == nil {
		ensured, err := s.EnsureResident(ctx, key, EnsureOptions{ImportKeys: opts.ImportKeys})
		if err != nil {
			return nil, err
		}
		resident = ensured.Resident
	}

	// 2. 导入记录
	searchKeys := append([]string(nil), opts.ImportKeys...)
	searchKeys = append(searchKeys, opts.RecordKey)
	if resident != nil {
		searchKeys = append(searchKeys, resident.RecordKey, resident.Name)
	}
	records, _ := s.FetchImportedRecordsByKey(ctx, key, searchKeys)
	result := &SyncResult{}
	if len(records) == 0 {
		return result, nil
	}

	// 3. 监护人字段回写住户
	if resident != nil && resident.ID != "" {
		s.syncGuardian(ctx, key, resident, deriveGuardian(records))
	}

	// 4. 逐行写入入住记录
	coll := s.cfg.Collections.Intake
	if !s.bestEffort("ensure_collection", coll, key, docstore.EnsureCollection(ctx, s.store, coll)) {
		return result, nil
	}
	residentName := key
	if resident != nil {
		residentName = textnorm.FirstNonEmpty(textnorm.NormalizeSpacing(resident.Name), key)
	}
	serverTime := s.now().UnixMilli()
	for _, rec := range records {
		s.syncRecord(ctx, key, residentName, rec, serverTime, result)
	}
	s.logger.Debug("imported records synced to intake",
		zap.String("resident_key", key),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)

	// 5. 聚合字段
	if opts.ForceSummary || result.Created+result.Updated > 0 || !hasAdmissionCount(resident) {
		summary, err := s.SyncAggregates(ctx, key, SyncAggregatesOptions{
			ResidentDoc: resident,
			ServerTime:  serverTime,
			Ensure:      EnsureOptions{ImportKeys: mergeKeys(opts.ImportKeys, []string{opts.RecordKey})},
		})
		if err == nil {
			result.Summary = &summary
		}
	}
	return result, nil
}

func (s *reconcileService) syncGuardian(ctx context.Context, key string, resident *domain.Resident, g guardianInfo) {
	u := guardianUpdates(resident, g)
	if len(u) == 0 {
		return
	}
	coll := s.cfg.Collections.Residents
	if !s.bestEffort("update_guardian", coll, resident.ID, s.store.Collection(coll).Doc(resident.ID).Update(ctx, u)) {
		return
	}
	if v, ok := u["import_record_keys"]; ok {
		resident.ImportRecordKeys, _ = v.Value().([]string)
	}
	s.invalidate(ctx, key)
}

func (s *reconcileService) syncRecord(ctx context.Context, key, residentName string, rec domain.ImportedRecord, serverTime int64, result *SyncResult) {
	coll := s.cfg.Collections.Intake
	c := s.store.Collection(coll)
	importRecordID := intake.ImportRecordID(key, rec)
	record := intake.FromImported(rec, key, residentName, importRecordID, serverTime)

	existing, err := c.Where(docstore.Filter{"metadata.import_record_id": importRecordID}).Limit(1).Get(ctx)
	if err != nil && !absent(err) {
		s.bestEffort("find_intake", coll, importRecordID, err)
	}

	if len(existing) > 0 {
		docID := existing[0].ID()
		u := docstore.Update{
			"resident_key":  docstore.Set(key),
			"resident_name": docstore.Set(residentName),
			"status":        docstore.Set(record.Status),
			"basic_info":    docstore.Set(record.BasicInfo),
			"contact_info":  docstore.Set(record.ContactInfo),
			"medical_info":  docstore.Set(record.MedicalInfo),
			"intake_info":   docstore.Set(record.IntakeInfo),
			"metadata":      docstore.Set(record.Metadata),
			"updated_at":    docstore.Set(serverTime),
		}
		if s.bestEffort("update_intake", coll, docID, c.Doc(docID).Update(ctx, u)) {
			result.Updated++
			s.metrics.IntakeRecord(metrics.OutcomeUpdated)
		} else {
			s.metrics.IntakeRecord(metrics.OutcomeFailed)
		}
		return
	}

	doc, err := docstore.Encode(record)
	if err != nil {
		s.bestEffort("encode_intake", coll, record.IntakeID, err)
		s.metrics.IntakeRecord(metrics.OutcomeFailed)
		return
	}
	err = c.Doc(record.IntakeID).Create(ctx, doc)
	switch {
	case err == nil:
		result.Created++
		s.metrics.IntakeRecord(metrics.OutcomeCreated)
	case errors.Is(err, docstore.ErrAlreadyExists):
		result.Skipped++
		s.metrics.IntakeRecord(metrics.OutcomeSkipped)
	default:
		s.bestEffort("create_intake", coll, record.IntakeID, err)
		s.metrics.IntakeRecord(metrics.OutcomeFailed)
	}
}

func hasAdmissionCount(resident *domain.Resident) bool {
	if resident == nil {
		return false
	}
	if resident.Data != nil && resident.Data.AdmissionCount != nil {
		return true
	}
	return resident.AdmissionCount != nil
}

// FetchImportedRecordsByKey 依次按 primary、fallbacks 查找导入记录，第一个命中的键即返回。
// 结果按入住时间倒序，没有时间的排在最后。
func (s *reconcileService) FetchImportedRecordsByKey(ctx context.Context, primary string, fallbacks []string) ([]domain.ImportedRecord, error) {
	keys := mergeKeys([]string{primary}, fallbacks)
	coll := s.cfg.Collections.ImportRecords
	c := s.store.Collection(coll)

	for _, key := range keys {
		seen := make(map[string]struct{})
		var records []domain.ImportedRecord
		for _, doc := range s.fetchPages(ctx, c, docstore.Filter{"key": key}, key) {
			id := doc.ID()
			if _, ok := seen[id]; ok && id != "" {
				continue
			}
			seen[id] = struct{}{}
			var rec domain.ImportedRecord
			if err := docstore.Decode(doc, &rec); err != nil {
				s.logger.Warn("failed to decode imported record",
					zap.String("doc_id", id),
					zap.Error(err),
				)
				continue
			}
			records = append(records, rec)
		}
		if len(records) > 0 {
			sort.SliceStable(records, func(i, j int) bool {
				return newerImport(records[i], records[j])
			})
			return records, nil
		}
	}
	return nil, nil
}

// fetchPages 逐页读取直到不足一页；中途失败时返回已读到的部分
func (s *reconcileService) fetchPages(ctx context.Context, c docstore.Collection, f docstore.Filter, key string) []docstore.Document {
	var out []docstore.Document
	q := c.Where(f)
	for skip := 0; ; skip += pageSize {
		page, err := q.Skip(skip).Limit(pageSize).Get(ctx)
		if err != nil {
			if !absent(err) {
				s.bestEffort("fetch_page", c.Name(), key, err)
			}
			return out
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out
		}
	}
}

// newerImport a 的入住时间是否晚于 b（缺失视为最早）
func newerImport(a, b domain.ImportedRecord) bool {
	ta, tb := a.VisitTimestamp(), b.VisitTimestamp()
	switch {
	case ta.Valid && tb.Valid:
		return ta.Millis > tb.Millis
	default:
		return ta.Valid && !tb.Valid
	}
}

// mergeKeys 合并去重，保持顺序，忽略空值
func mergeKeys(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, k := range list {
			k = textnorm.NormalizeSpacing(k)
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func intPtr(v int) *int { return &v }

func millisPtr(ts textnorm.Timestamp) *int64 {
	if !ts.Valid {
		return nil
	}
	ms := ts.Millis
	return &ms
}

// trimImportPrefix 去掉随机住户键的 import_ 前缀
func trimImportPrefix(key string) string {
	if rest := strings.TrimPrefix(key, stablekey.RandomPrefix); rest != key {
		return rest
	}
	return ""
}
