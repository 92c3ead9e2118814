package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/stablekey"
	"wisefido-intake/internal/textnorm"
)

const (
	// IntakeIDPrefix 导入生成的入住记录 ID 前缀
	IntakeIDPrefix = "import_"
	// ImportRecordIDPrefix 导入行稳定 ID 前缀
	ImportRecordIDPrefix = "imp_"
)

// ImportRecordID 导入行的稳定 ID：已有签名直接使用，否则由住户键与行内容计算哈希。
// 同一住户的同一行多次导入得到相同结果。
func ImportRecordID(residentKey string, rec domain.ImportedRecord) string {
	if sig := textnorm.FirstNonEmpty(rec.Metadata.ImportRecordID, rec.Metadata.RecordSignature); sig != "" {
		if strings.HasPrefix(sig, ImportRecordIDPrefix) {
			return sig
		}
		return ImportRecordIDPrefix + sig
	}

	var fragments []string
	if rec.RowIndex > 0 {
		fragments = append(fragments, "row:"+strconv.Itoa(rec.RowIndex))
	}
	if rec.ImportOrder > 0 {
		fragments = append(fragments, "order:"+strconv.Itoa(rec.ImportOrder))
	}
	if rec.AdmissionTimestamp.Valid {
		fragments = append(fragments, "ts:"+strconv.FormatInt(rec.AdmissionTimestamp.Millis, 10))
	}
	if d := textnorm.NormalizeSpacing(rec.AdmissionDate); d != "" {
		fragments = append(fragments, "date:"+d)
	}
	hospital := textnorm.NormalizeSpacing(rec.Hospital)
	diagnosis := textnorm.NormalizeSpacing(rec.Diagnosis)
	if hospital != "" || diagnosis != "" {
		fragments = append(fragments, "info:"+hospital+"-"+diagnosis)
	}
	if len(fragments) == 0 {
		fragments = append(fragments, "doc:"+textnorm.NormalizeValue(rec.ID))
	}

	sum := sha256.Sum256([]byte(textnorm.NormalizeValue(residentKey) + "|" + strings.Join(fragments, "|")))
	return ImportRecordIDPrefix + hex.EncodeToString(sum[:])[:32]
}

// FromImported 由导入行构建入住记录（status=imported，metadata.source=import）
func FromImported(rec domain.ImportedRecord, residentKey, residentName, importRecordID string, serverTime int64) domain.IntakeRecord {
	r := visit(rec, residentKey, residentName)
	ts := r.AdmissionTimestamp

	seed := textnorm.FirstNonEmpty(residentKey, residentName, "import") + "_"
	if ts.Valid {
		seed += strconv.FormatInt(ts.Millis, 10)
	} else {
		seed += strconv.FormatInt(serverTime, 10)
	}
	r.IntakeID = IntakeIDPrefix + stablekey.Synthesize(importRecordID, seed)
	r.ID = r.IntakeID

	r.Metadata = domain.IntakeMetadata{
		Source:                SourceImport,
		ImportRecordID:        importRecordID,
		ImportRowIndex:        rec.RowIndex,
		LastImportSyncAt:      textnorm.At(serverTime),
		LastImportSyncBatchID: rec.SyncBatchID,
	}
	if ts.Valid {
		r.Metadata.IntakeTime = ts
		r.Metadata.SubmittedAt = ts
		r.Metadata.LastModifiedAt = ts
		r.CreatedAt = ts
		r.UpdatedAt = ts
		r.ImportedAt = ts
	} else {
		r.Metadata.SubmittedAt = textnorm.At(serverTime)
		r.CreatedAt = textnorm.At(serverTime)
		r.UpdatedAt = textnorm.At(serverTime)
	}
	return r
}

// VisitView 导入行在去重时的视图：不带 import_record_id，保留行文档 ID
func VisitView(rec domain.ImportedRecord, residentKey string) domain.IntakeRecord {
	r := visit(rec, residentKey, rec.ResidentName)
	r.ID = rec.ID
	r.Metadata.Source = SourceImport
	r.UpdatedAt = rec.UpdatedAt
	if strings.EqualFold(textnorm.NormalizeSpacing(rec.Status), string(domain.IntakeStatusDraft)) {
		r.Status = domain.IntakeStatusDraft
	}
	return r
}

func visit(rec domain.ImportedRecord, residentKey, residentName string) domain.IntakeRecord {
	name := textnorm.FirstNonEmpty(residentName, rec.ResidentName, residentKey)
	ts := rec.VisitTimestamp().Or(rec.ImportedAt)

	symptoms := textnorm.NormalizeSpacing(rec.Symptoms)
	diagnosis := textnorm.NormalizeSpacing(rec.Diagnosis)
	treatment := textnorm.NormalizeSpacing(rec.TreatmentProcess)

	r := domain.IntakeRecord{
		ResidentKey:        residentKey,
		ResidentName:       name,
		Status:             domain.IntakeStatusImported,
		AdmissionTimestamp: ts,
		AdmissionDate:      textnorm.NormalizeSpacing(rec.AdmissionDate),
		DisplayTime:        textnorm.NormalizeSpacing(rec.AdmissionDate),
		BasicInfo: domain.BasicInfo{
			Name:        name,
			Gender:      textnorm.NormalizeSpacing(rec.Gender),
			BirthDate:   textnorm.NormalizeSpacing(rec.BirthDate),
			IDNumber:    textnorm.NormalizeSpacing(rec.IDNumber),
			NativePlace: textnorm.NormalizeSpacing(rec.NativePlace),
			Ethnicity:   textnorm.NormalizeSpacing(rec.Ethnicity),
			Address:     textnorm.NormalizeSpacing(rec.Address),
		},
		ContactInfo: domain.ContactInfo{
			FatherInfo:    textnorm.NormalizeSpacing(rec.FatherInfo),
			MotherInfo:    textnorm.NormalizeSpacing(rec.MotherInfo),
			OtherGuardian: textnorm.NormalizeSpacing(rec.OtherGuardian),
			Caregivers:    textnorm.NormalizeSpacing(rec.Caregivers),
			FamilyEconomy: textnorm.NormalizeSpacing(rec.FamilyEconomy),
		},
		MedicalInfo: domain.MedicalInfo{
			Hospital:         textnorm.NormalizeSpacing(rec.Hospital),
			Diagnosis:        diagnosis,
			Doctor:           textnorm.NormalizeSpacing(rec.Doctor),
			Symptoms:         symptoms,
			TreatmentProcess: treatment,
			FollowUpPlan:     textnorm.NormalizeSpacing(rec.FollowUpPlan),
		},
		IntakeInfo: domain.IntakeInfo{
			IntakeTime:  ts,
			VisitReason: textnorm.NormalizeSpacing(rec.VisitReason),
			Situation:   textnorm.FirstNonEmpty(symptoms, diagnosis, treatment),
		},
	}
	return r
}
