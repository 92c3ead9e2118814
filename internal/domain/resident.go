package domain

// CareStatus 住户照护状态
type CareStatus string

const (
	CareStatusInCare     CareStatus = "in_care"
	CareStatusPending    CareStatus = "pending"
	CareStatusDischarged CareStatus = "discharged"
)

// Valid 是否为已知状态
func (s CareStatus) Valid() bool {
	switch s {
	case CareStatusInCare, CareStatusPending, CareStatusDischarged:
		return true
	}
	return false
}

// 聚合字段名（顶层与 data.* 同名）
const (
	FieldAdmissionCount           = "admission_count"
	FieldFirstAdmissionDate       = "first_admission_date"
	FieldLatestAdmissionDate      = "latest_admission_date"
	FieldLatestAdmissionTimestamp = "latest_admission_timestamp"
	FieldLastIntakeNarrative      = "last_intake_narrative"
	FieldLatestHospital           = "latest_hospital"
	FieldLatestDoctor             = "latest_doctor"
	FieldLatestDiagnosis          = "latest_diagnosis"
	FieldFirstHospital            = "first_hospital"
	FieldFirstDiagnosis           = "first_diagnosis"
	FieldFirstDoctor              = "first_doctor"
	FieldFirstNarrative           = "first_narrative"
	FieldUpdatedAt                = "updated_at"

	// MirrorPrefix 兼容旧读取方的嵌套副本
	MirrorPrefix = "data."
)

// RollupFields 所有聚合字段
var RollupFields = []string{
	FieldAdmissionCount,
	FieldFirstAdmissionDate,
	FieldLatestAdmissionDate,
	FieldLatestAdmissionTimestamp,
	FieldLastIntakeNarrative,
	FieldLatestHospital,
	FieldLatestDoctor,
	FieldLatestDiagnosis,
	FieldFirstHospital,
	FieldFirstDiagnosis,
	FieldFirstDoctor,
	FieldFirstNarrative,
}

// ResidentRollup 住户聚合字段，由聚合同步器维护
type ResidentRollup struct {
	AdmissionCount           *int   `json:"admission_count,omitempty"`
	FirstAdmissionDate       *int64 `json:"first_admission_date,omitempty"`
	LatestAdmissionDate      *int64 `json:"latest_admission_date,omitempty"`
	LatestAdmissionTimestamp *int64 `json:"latest_admission_timestamp,omitempty"`
	LastIntakeNarrative      string `json:"last_intake_narrative,omitempty"`
	LatestHospital           string `json:"latest_hospital,omitempty"`
	LatestDoctor             string `json:"latest_doctor,omitempty"`
	LatestDiagnosis          string `json:"latest_diagnosis,omitempty"`
	FirstHospital            string `json:"first_hospital,omitempty"`
	FirstDiagnosis           string `json:"first_diagnosis,omitempty"`
	FirstDoctor              string `json:"first_doctor,omitempty"`
	FirstNarrative           string `json:"first_narrative,omitempty"`
	UpdatedAt                *int64 `json:"updated_at,omitempty"`
}

// Resident 住户登记（持久化）
// 聚合字段同时写在顶层与 data.* 下
type Resident struct {
	ID        string `json:"_id,omitempty"`
	Key       string `json:"key"`
	RecordKey string `json:"record_key,omitempty"`

	Name        string `json:"name"`
	IDNumber    string `json:"id_number,omitempty"`
	Gender      string `json:"gender,omitempty"`
	BirthDate   string `json:"birth_date,omitempty"`
	NativePlace string `json:"native_place,omitempty"`
	Ethnicity   string `json:"ethnicity,omitempty"`
	Address     string `json:"address,omitempty"`

	FatherInfo           string `json:"father_info,omitempty"`
	FatherContactName    string `json:"father_contact_name,omitempty"`
	FatherContactPhone   string `json:"father_contact_phone,omitempty"`
	MotherInfo           string `json:"mother_info,omitempty"`
	MotherContactName    string `json:"mother_contact_name,omitempty"`
	MotherContactPhone   string `json:"mother_contact_phone,omitempty"`
	GuardianInfo         string `json:"guardian_info,omitempty"`
	GuardianContactName  string `json:"guardian_contact_name,omitempty"`
	GuardianContactPhone string `json:"guardian_contact_phone,omitempty"`
	Caregivers           string `json:"caregivers,omitempty"`
	FamilyEconomy        string `json:"family_economy,omitempty"`

	ImportRecordKeys []string   `json:"import_record_keys,omitempty"`
	CareStatus       CareStatus `json:"care_status,omitempty"`
	CreatedAt        int64      `json:"created_at,omitempty"`

	ResidentRollup
	Data *ResidentRollup `json:"data,omitempty"`
}
