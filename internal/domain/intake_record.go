package domain

import "wisefido-intake/internal/textnorm"

// IntakeStatus 入住记录状态
type IntakeStatus string

const (
	IntakeStatusActive   IntakeStatus = "active"
	IntakeStatusDraft    IntakeStatus = "draft"
	IntakeStatusImported IntakeStatus = "imported"
	IntakeStatusCheckout IntakeStatus = "checkout"
)

// IntakeRecord 一次入住/就诊记录，通过 ResidentKey 关联住户
type IntakeRecord struct {
	ID           string       `json:"_id,omitempty"`
	IntakeID     string       `json:"intake_id,omitempty"`
	ResidentKey  string       `json:"resident_key"`
	ResidentName string       `json:"resident_name,omitempty"`
	Status       IntakeStatus `json:"status"`

	AdmissionTimestamp textnorm.Timestamp `json:"admission_timestamp"`
	AdmissionDate      string             `json:"admission_date,omitempty"`
	IntakeTime         textnorm.Timestamp `json:"intake_time"`
	DisplayTime        string             `json:"display_time,omitempty"`
	HospitalDisplay    string             `json:"hospital_display,omitempty"`
	DiagnosisDisplay   string             `json:"diagnosis_display,omitempty"`

	BasicInfo   BasicInfo   `json:"basic_info"`
	ContactInfo ContactInfo `json:"contact_info"`
	MedicalInfo MedicalInfo `json:"medical_info"`
	IntakeInfo  IntakeInfo  `json:"intake_info"`

	ImportedAt textnorm.Timestamp `json:"imported_at"`
	CreatedAt  textnorm.Timestamp `json:"created_at"`
	UpdatedAt  textnorm.Timestamp `json:"updated_at"`

	Metadata IntakeMetadata `json:"metadata"`
}

// BasicInfo 住户基本信息快照
type BasicInfo struct {
	Name        string `json:"name,omitempty"`
	Gender      string `json:"gender,omitempty"`
	BirthDate   string `json:"birth_date,omitempty"`
	IDNumber    string `json:"id_number,omitempty"`
	NativePlace string `json:"native_place,omitempty"`
	Ethnicity   string `json:"ethnicity,omitempty"`
	Address     string `json:"address,omitempty"`
}

// ContactInfo 监护人信息快照
type ContactInfo struct {
	FatherInfo    string `json:"father_info,omitempty"`
	MotherInfo    string `json:"mother_info,omitempty"`
	OtherGuardian string `json:"other_guardian,omitempty"`
	Caregivers    string `json:"caregivers,omitempty"`
	FamilyEconomy string `json:"family_economy,omitempty"`
}

// MedicalInfo 就诊信息
type MedicalInfo struct {
	Hospital         string `json:"hospital,omitempty"`
	Diagnosis        string `json:"diagnosis,omitempty"`
	Doctor           string `json:"doctor,omitempty"`
	Symptoms         string `json:"symptoms,omitempty"`
	TreatmentProcess string `json:"treatment_process,omitempty"`
	FollowUpPlan     string `json:"follow_up_plan,omitempty"`
}

// IntakeInfo 入住登记信息
type IntakeInfo struct {
	IntakeTime  textnorm.Timestamp `json:"intake_time"`
	Hospital    string             `json:"hospital,omitempty"`
	Diagnosis   string             `json:"diagnosis,omitempty"`
	VisitReason string             `json:"visit_reason,omitempty"`
	Situation   string             `json:"situation,omitempty"`
}

// IntakeMetadata 来源与同步元数据
type IntakeMetadata struct {
	Source                string             `json:"source,omitempty"`
	ImportRecordID        string             `json:"import_record_id,omitempty"`
	IntakeID              string             `json:"intake_id,omitempty"`
	IntakeTime            textnorm.Timestamp `json:"intake_time"`
	SubmittedAt           textnorm.Timestamp `json:"submitted_at"`
	LastModifiedAt        textnorm.Timestamp `json:"last_modified_at"`
	SubmittedBy           string             `json:"submitted_by,omitempty"`
	ImportMode            string             `json:"import_mode,omitempty"`
	ImportRowIndex        int                `json:"import_row_index,omitempty"`
	LastImportSyncAt      textnorm.Timestamp `json:"last_import_sync_at"`
	LastImportSyncBatchID string             `json:"last_import_sync_batch_id,omitempty"`
}
