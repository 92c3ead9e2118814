// Package intake 入住记录去重键与去重规则
package intake

import (
	"math"
	"strconv"
	"strings"

	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/textnorm"
)

const (
	// SourceImport metadata.source 取值：来自表格导入
	SourceImport = "import"
	// ImportMarker 导入相关 ID 中的标记
	ImportMarker = "-import"

	keyPrefixImport       = "import:"
	keyPrefixImportRecord = "import-record:"
	keyPrefixImportIntake = "import-intake:"
	keyPrefixImportDoc    = "import-doc:"
	keyPrefixTime         = "time:"
	keyPrefixFallback     = "fallback:"

	minuteMillis = 60000
)

func status(r domain.IntakeRecord) string {
	return strings.ToLower(textnorm.NormalizeSpacing(string(r.Status)))
}

// IsCountable 草稿不计入入住次数
func IsCountable(r domain.IntakeRecord) bool {
	return status(r) != string(domain.IntakeStatusDraft)
}

// IsActive status 为 active
func IsActive(r domain.IntakeRecord) bool {
	return status(r) == string(domain.IntakeStatusActive)
}

// IsImportSourced 是否为导入产生的记录
func IsImportSourced(r domain.IntakeRecord) bool {
	return status(r) == string(domain.IntakeStatusImported) ||
		strings.Contains(textnorm.NormalizeValue(r.IntakeID), ImportMarker) ||
		isImportSource(r) ||
		textnorm.NormalizeValue(r.Metadata.ImportRecordID) != ""
}

func isImportSource(r domain.IntakeRecord) bool {
	return strings.ToLower(textnorm.NormalizeSpacing(r.Metadata.Source)) == SourceImport
}

// RecordTimestamp 记录的就诊时间，按以下顺序回退：
// admission_timestamp → intake_time → admission_date → imported_at → updated_at/created_at（导入记录不使用）
func RecordTimestamp(r domain.IntakeRecord) textnorm.Timestamp {
	if r.AdmissionTimestamp.Valid {
		return r.AdmissionTimestamp
	}
	if ts := r.IntakeTime.Or(r.IntakeInfo.IntakeTime).Or(r.Metadata.IntakeTime).Or(r.Metadata.LastModifiedAt); ts.Valid {
		return ts
	}
	if ts := textnorm.ParseTimestamp(r.AdmissionDate); ts.Valid {
		return ts
	}
	if r.ImportedAt.Valid {
		return r.ImportedAt
	}
	if ts := r.UpdatedAt.Or(r.CreatedAt); ts.Valid && !isImportSource(r) {
		return ts
	}
	return textnorm.Timestamp{}
}

// Hospital 就诊医院
func Hospital(r domain.IntakeRecord) string {
	return textnorm.FirstNonEmpty(r.MedicalInfo.Hospital, r.HospitalDisplay, r.IntakeInfo.Hospital)
}

// Diagnosis 诊断
func Diagnosis(r domain.IntakeRecord) string {
	return textnorm.FirstNonEmpty(r.MedicalInfo.Diagnosis, r.DiagnosisDisplay, r.IntakeInfo.Diagnosis, r.IntakeInfo.VisitReason)
}

func minuteBucket(ms int64) string {
	return strconv.FormatInt(int64(math.Round(float64(ms)/minuteMillis)), 10)
}

// RecordKey 计算去重键
//
// 导入记录且有时间：时间按分钟取整 + 标识 + 医院 + 诊断，用于吸收多次导入之间的时间格式差异；
// 导入记录无时间：依次使用 import_record_id、intake_id、文档 ID，各自带不同前缀。
// 非导入记录：已有稳定 ID 优先，其次时间 + 住户，最后显示日期 + 诊断 + 医院。
func RecordKey(r domain.IntakeRecord) string {
	intakeID := textnorm.NormalizeValue(r.IntakeID)
	importRecordID := textnorm.NormalizeValue(r.Metadata.ImportRecordID)
	docID := textnorm.NormalizeValue(r.ID)

	if IsImportSourced(r) {
		if ts := RecordTimestamp(r); ts.Valid {
			identifier := textnorm.FirstNonEmpty(importRecordID, intakeID, r.ResidentKey, r.ResidentName)
			hospital := Hospital(r)
			diagnosis := Diagnosis(r)
			key := keyPrefixImport + minuteBucket(ts.Millis) + "-" + identifier + "-" + hospital + "-" + diagnosis
			if importRecordID == "" && hospital == "" && diagnosis == "" && docID != "" {
				key += "-" + docID
			}
			return key
		}
		switch {
		case importRecordID != "":
			return keyPrefixImportRecord + importRecordID
		case intakeID != "":
			return keyPrefixImportIntake + intakeID
		case docID != "":
			return keyPrefixImportDoc + docID
		}
	}

	if id := textnorm.FirstNonEmpty(intakeID, docID, r.Metadata.IntakeID); id != "" {
		return id
	}

	if ts := RecordTimestamp(r); ts.Valid {
		return keyPrefixTime + minuteBucket(ts.Millis) + "-" + textnorm.FirstNonEmpty(r.ResidentKey, r.ResidentName)
	}

	displayDate := textnorm.FirstNonEmpty(r.DisplayTime, r.AdmissionDate)
	diagnosis := Diagnosis(r)
	hospital := Hospital(r)
	key := keyPrefixFallback + displayDate + "-" + diagnosis + "-" + hospital
	if displayDate == "" && diagnosis == "" && hospital == "" {
		if id := textnorm.FirstNonEmpty(docID, intakeID, r.Metadata.IntakeID); id != "" {
			key += "-" + id
		}
	}
	return key
}

// Dedupe 按去重键分组，每组保留一条：active 优先，其次就诊时间较新，再次 updated_at 较新。
// 输出保持各键首次出现的顺序。
func Dedupe(records []domain.IntakeRecord) []domain.IntakeRecord {
	if len(records) <= 1 {
		return append([]domain.IntakeRecord(nil), records...)
	}
	index := make(map[string]int, len(records))
	out := make([]domain.IntakeRecord, 0, len(records))
	for _, r := range records {
		key := RecordKey(r)
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		if prefer(r, out[i]) {
			out[i] = r
		}
	}
	return out
}

// prefer 候选记录是否优于已有记录
func prefer(candidate, existing domain.IntakeRecord) bool {
	if ca, ea := IsActive(candidate), IsActive(existing); ca != ea {
		return ca
	}
	if c := compareTimestamp(RecordTimestamp(candidate), RecordTimestamp(existing)); c != 0 {
		return c > 0
	}
	return compareTimestamp(candidate.UpdatedAt, existing.UpdatedAt) > 0
}

// compareTimestamp 缺失视为最早
func compareTimestamp(a, b textnorm.Timestamp) int {
	switch {
	case a.Valid && !b.Valid:
		return 1
	case !a.Valid && b.Valid:
		return -1
	case !a.Valid && !b.Valid:
		return 0
	case a.Millis > b.Millis:
		return 1
	case a.Millis < b.Millis:
		return -1
	}
	return 0
}

// IsAggregateArtifact 识别历史聚合同步产生的汇总记录，避免重复计数
func IsAggregateArtifact(residentKey string, r domain.IntakeRecord) bool {
	if textnorm.NormalizeValue(r.Metadata.ImportRecordID) != "" {
		return false
	}
	id := textnorm.NormalizeValue(r.ID)
	if id == "" {
		return false
	}
	if isImportSource(r) && residentKey != "" && strings.HasPrefix(id, residentKey+ImportMarker) {
		return true
	}
	return strings.HasSuffix(id, ImportMarker)
}
