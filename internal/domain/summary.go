package domain

import "wisefido-intake/internal/textnorm"

// AggregateSummary 住户入住记录汇总（每次重新计算，不单独持久化）
type AggregateSummary struct {
	Count             int                `json:"count"`
	EarliestTimestamp textnorm.Timestamp `json:"earliest_timestamp"`
	LatestTimestamp   textnorm.Timestamp `json:"latest_timestamp"`

	FirstNarrative  string `json:"first_narrative"`
	FirstHospital   string `json:"first_hospital"`
	FirstDoctor     string `json:"first_doctor"`
	FirstDiagnosis  string `json:"first_diagnosis"`
	LatestNarrative string `json:"latest_narrative"`
	LatestHospital  string `json:"latest_hospital"`
	LatestDoctor    string `json:"latest_doctor"`
	LatestDiagnosis string `json:"latest_diagnosis"`

	HasActiveRecords bool `json:"has_active_records"`
	// FromImportFallback 汇总来自尚未迁移的导入记录
	FromImportFallback bool `json:"from_import_fallback,omitempty"`
}
