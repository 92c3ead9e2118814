package grouping

import (
	"sort"

	"wisefido-intake/internal/contact"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/intake"
	"wisefido-intake/internal/textnorm"
)

// Groups 完成后处理并按创建顺序返回所有分组
func (a *Grouper) Groups() []*ResidentGroup {
	for _, g := range a.groups {
		g.project()
	}
	out := make([]*ResidentGroup, len(a.groups))
	copy(out, a.groups)
	return out
}

// project 排序、排除草稿、去重后投影首次/最近就诊字段
func (g *ResidentGroup) project() {
	sort.SliceStable(g.Records, func(i, j int) bool {
		ti, tj := g.Records[i].VisitTimestamp(), g.Records[j].VisitTimestamp()
		if ti != tj {
			return newer(ti, tj)
		}
		return g.Records[i].ImportOrder > g.Records[j].ImportOrder
	})

	views := make([]domain.IntakeRecord, 0, len(g.Records))
	for _, rec := range g.Records {
		v := intake.VisitView(rec, g.Key)
		if intake.IsCountable(v) {
			views = append(views, v)
		}
	}
	visits := intake.Dedupe(views)

	sort.SliceStable(g.FamilyContacts, func(i, j int) bool {
		return roleRank(g.FamilyContacts[i].Role) < roleRank(g.FamilyContacts[j].Role)
	})

	g.AdmissionCount = len(visits)
	g.FirstAdmission, g.LatestAdmission = textnorm.Timestamp{}, textnorm.Timestamp{}
	g.FirstHospital, g.LatestHospital = "", ""
	g.FirstDiagnosis, g.LatestDiagnosis = "", ""
	g.FirstDoctor, g.LatestDoctor = "", ""
	if len(visits) == 0 {
		return
	}

	// visits 已按时间降序
	for _, v := range visits {
		ts := intake.RecordTimestamp(v)
		if ts.Valid && !g.LatestAdmission.Valid {
			g.LatestAdmission = ts
		}
		if g.LatestHospital == "" {
			g.LatestHospital = intake.Hospital(v)
		}
		if g.LatestDiagnosis == "" {
			g.LatestDiagnosis = intake.Diagnosis(v)
		}
		if g.LatestDoctor == "" {
			g.LatestDoctor = textnorm.NormalizeSpacing(v.MedicalInfo.Doctor)
		}
	}
	for i := len(visits) - 1; i >= 0; i-- {
		v := visits[i]
		ts := intake.RecordTimestamp(v)
		if ts.Valid && !g.FirstAdmission.Valid {
			g.FirstAdmission = ts
		}
		if g.FirstHospital == "" {
			g.FirstHospital = intake.Hospital(v)
		}
		if g.FirstDiagnosis == "" {
			g.FirstDiagnosis = intake.Diagnosis(v)
		}
		if g.FirstDoctor == "" {
			g.FirstDoctor = textnorm.NormalizeSpacing(v.MedicalInfo.Doctor)
		}
	}
}

// newer 缺失时间的记录排在最后
func newer(a, b textnorm.Timestamp) bool {
	switch {
	case a.Valid && !b.Valid:
		return true
	case !a.Valid:
		return false
	}
	return a.Millis > b.Millis
}

func roleRank(r contact.Role) int {
	switch r {
	case contact.RoleFather:
		return 0
	case contact.RoleMother:
		return 1
	}
	return 2
}
