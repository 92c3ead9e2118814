package domain

import "wisefido-intake/internal/textnorm"

// ImportedRecord 表格导入的一行记录（导入后只读）
type ImportedRecord struct {
	ID        string `json:"_id,omitempty"`
	Key       string `json:"key"`
	RecordKey string `json:"record_key,omitempty"`

	// 住户基本信息
	ResidentName string `json:"resident_name"`
	IDNumber     string `json:"id_number,omitempty"`
	Gender       string `json:"gender,omitempty"`
	BirthDate    string `json:"birth_date,omitempty"`
	NativePlace  string `json:"native_place,omitempty"`
	Ethnicity    string `json:"ethnicity,omitempty"`
	Address      string `json:"address,omitempty"`

	// 监护人/联系人（自由文本）
	FatherInfo    string `json:"father_info,omitempty"`
	MotherInfo    string `json:"mother_info,omitempty"`
	OtherGuardian string `json:"other_guardian,omitempty"`
	Caregivers    string `json:"caregivers,omitempty"`
	FamilyEconomy string `json:"family_economy,omitempty"`

	// 就诊信息
	Hospital         string `json:"hospital,omitempty"`
	Diagnosis        string `json:"diagnosis,omitempty"`
	Doctor           string `json:"doctor,omitempty"`
	Symptoms         string `json:"symptoms,omitempty"`
	TreatmentProcess string `json:"treatment_process,omitempty"`
	FollowUpPlan     string `json:"follow_up_plan,omitempty"`
	VisitReason      string `json:"visit_reason,omitempty"`

	// Status 导入行一般为空；"draft" 表示不计入入住次数
	Status string `json:"status,omitempty"`

	AdmissionDate      string             `json:"admission_date,omitempty"`
	AdmissionTimestamp textnorm.Timestamp `json:"admission_timestamp"`
	ImportedAt         textnorm.Timestamp `json:"imported_at"`
	UpdatedAt          textnorm.Timestamp `json:"updated_at"`

	// RowIndex 表格中的行号（从 1 开始，0 表示未知）
	RowIndex int `json:"row_index,omitempty"`
	// ImportOrder 导入顺序（从 1 开始，0 表示未知）
	ImportOrder int    `json:"import_order,omitempty"`
	SyncBatchID string `json:"sync_batch_id,omitempty"`

	Metadata ImportedMetadata `json:"metadata"`
}

// ImportedMetadata 导入行的来源元数据
type ImportedMetadata struct {
	ImportRecordID  string `json:"import_record_id,omitempty"`
	RecordSignature string `json:"record_signature,omitempty"`
	SourceFile      string `json:"source_file,omitempty"`
}

// VisitTimestamp 入住时间：admission_timestamp 优先，其次解析 admission_date
func (r ImportedRecord) VisitTimestamp() textnorm.Timestamp {
	if r.AdmissionTimestamp.Valid {
		return r.AdmissionTimestamp
	}
	return textnorm.ParseTimestamp(r.AdmissionDate)
}
