// Package grouping 批量导入时的住户实体识别
//
// 证件号一致即为同一住户；同名但证件号不同时按地址、父亲联系方式、母亲联系方式三类弱证据投票。
// 每次调用构建独立的分组表，不保留全局状态。
package grouping

import (
	"strconv"
	"strings"

	"wisefido-intake/internal/contact"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/stablekey"
	"wisefido-intake/internal/textnorm"
)

// ResidentGroup 一个住户的分组结果
type ResidentGroup struct {
	Key         string   `json:"record_key"`
	Aliases     []string `json:"aliases,omitempty"`
	Name        string   `json:"name"`
	IDNumbers   []string `json:"id_numbers,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	BirthDate   string   `json:"birth_date,omitempty"`
	NativePlace string   `json:"native_place,omitempty"`
	Ethnicity   string   `json:"ethnicity,omitempty"`
	Address     string   `json:"address,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`

	FatherInfo     string         `json:"father_info,omitempty"`
	MotherInfo     string         `json:"mother_info,omitempty"`
	OtherGuardian  string         `json:"other_guardian,omitempty"`
	FamilyEconomy  string         `json:"family_economy,omitempty"`
	Caregivers     string         `json:"caregivers,omitempty"`
	FamilyContacts []contact.Info `json:"family_contacts,omitempty"`
	ImportOrder    int            `json:"import_order,omitempty"`

	// 后处理投影
	AdmissionCount  int                `json:"admission_count"`
	FirstAdmission  textnorm.Timestamp `json:"first_admission"`
	LatestAdmission textnorm.Timestamp `json:"latest_admission"`
	FirstHospital   string             `json:"first_hospital,omitempty"`
	LatestHospital  string             `json:"latest_hospital,omitempty"`
	FirstDiagnosis  string             `json:"first_diagnosis,omitempty"`
	LatestDiagnosis string             `json:"latest_diagnosis,omitempty"`
	FirstDoctor     string             `json:"first_doctor,omitempty"`
	LatestDoctor    string             `json:"latest_doctor,omitempty"`

	Records []domain.ImportedRecord `json:"-"`

	idSet       map[string]struct{}
	nameKeys    map[string]struct{}
	evidence    groupEvidence
	contactKeys map[string]struct{}
}

// HasID 是否已记录该证件号
func (g *ResidentGroup) HasID(id string) bool {
	_, ok := g.idSet[id]
	return ok
}

// ImportKeys 该分组曾使用过的键与姓名，供后续按键查找导入记录
func (g *ResidentGroup) ImportKeys() []string {
	seen := map[string]struct{}{g.Key: {}}
	var out []string
	for _, k := range append(append([]string{}, g.Aliases...), g.Name) {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Grouper 一次批量分组
type Grouper struct {
	policy Policy

	groups []*ResidentGroup
	byKey  map[string]*ResidentGroup
	byID   map[string]*ResidentGroup
	byName map[string][]*ResidentGroup
}

// NewGrouper 创建分组器；policy.MinMatches<=0 时使用默认阈值
func NewGrouper(policy Policy) *Grouper {
	if policy.MinMatches <= 0 {
		policy = DefaultPolicy
	}
	return &Grouper{
		policy: policy,
		byKey:  make(map[string]*ResidentGroup),
		byID:   make(map[string]*ResidentGroup),
		byName: make(map[string][]*ResidentGroup),
	}
}

// Build 使用默认阈值分组
func Build(records []domain.ImportedRecord) []*ResidentGroup {
	g := NewGrouper(DefaultPolicy)
	for i := range records {
		g.Add(records[i], i)
	}
	return g.Groups()
}

// NormalizeIDNumber 只保留数字与 X，大写
func NormalizeIDNumber(v string) string {
	folded := contact.Fold(textnorm.NormalizeSpacing(v))
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'X' || r == 'x':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// Add 按输入顺序加入一条记录；没有姓名的记录被忽略
func (a *Grouper) Add(rec domain.ImportedRecord, rowIndex int) *ResidentGroup {
	name := textnorm.NormalizeSpacing(rec.ResidentName)
	if name == "" {
		return nil
	}
	nameKey := textnorm.NameKey(name)
	id := NormalizeIDNumber(rec.IDNumber)
	inputKey := textnorm.FirstNonEmpty(rec.RecordKey, rec.Key, name)
	ev := evidenceOf(rec)

	g := a.lookup(id, nameKey, inputKey, ev)
	if g == nil {
		g = a.newGroup()
		seq := rec.RowIndex
		if seq == 0 {
			seq = rec.ImportOrder
		}
		if seq == 0 {
			seq = rowIndex + 1
		}
		a.registerKey(g, textnorm.FirstNonEmpty(id, inputKey, name), name+"_"+strconv.Itoa(seq))
	}
	a.registerName(g, name)
	a.alias(g, inputKey)
	if id != "" {
		a.attachID(g, id)
	}

	rec.Key = g.Key
	rec.RecordKey = g.Key
	g.Records = append(g.Records, rec)
	g.evidence.add(ev)
	g.absorb(rec)
	return g
}

func (a *Grouper) lookup(id, nameKey, inputKey string, ev recordEvidence) *ResidentGroup {
	if id != "" {
		if g, ok := a.byID[id]; ok {
			return g
		}
	}
	if nameKey != "" {
		for _, cand := range a.byName[nameKey] {
			if len(cand.idSet) == 0 {
				return cand
			}
			if id != "" && cand.HasID(id) {
				return cand
			}
			if a.policy.Decide(cand.evidence.compare(ev)) {
				return cand
			}
		}
	}
	if inputKey != "" {
		if g, ok := a.byKey[stablekey.Synthesize(inputKey, "")]; ok {
			return g
		}
	}
	return nil
}

func (a *Grouper) newGroup() *ResidentGroup {
	g := &ResidentGroup{
		idSet:       map[string]struct{}{},
		nameKeys:    map[string]struct{}{},
		evidence:    newGroupEvidence(),
		contactKeys: map[string]struct{}{},
	}
	a.groups = append(a.groups, g)
	return g
}

// registerKey 设置分组公开键并回写到所有成员记录；目标键已被其他分组占用时保持不变
func (a *Grouper) registerKey(g *ResidentGroup, desired, fallbackSeed string) {
	key := stablekey.Synthesize(desired, fallbackSeed)
	if key == g.Key {
		return
	}
	if other, ok := a.byKey[key]; ok && other != g {
		if g.Key != "" {
			return
		}
		key = a.uniqueKey(key)
	}
	if g.Key != "" {
		delete(a.byKey, g.Key)
		g.Aliases = appendUnique(g.Aliases, g.Key)
	}
	g.Key = key
	a.byKey[key] = g
	for i := range g.Records {
		g.Records[i].Key = key
		g.Records[i].RecordKey = key
	}
}

func (a *Grouper) uniqueKey(base string) string {
	for n := 2; ; n++ {
		k := base + "_" + strconv.Itoa(n)
		if _, ok := a.byKey[k]; !ok {
			return k
		}
	}
}

func (a *Grouper) registerName(g *ResidentGroup, name string) {
	nameKey := textnorm.NameKey(name)
	if _, ok := g.nameKeys[nameKey]; !ok {
		g.nameKeys[nameKey] = struct{}{}
		a.byName[nameKey] = append(a.byName[nameKey], g)
	}
	if len([]rune(name)) > len([]rune(g.Name)) {
		g.Name = name
	}
}

func (a *Grouper) alias(g *ResidentGroup, inputKey string) {
	if inputKey != "" && inputKey != g.Key {
		g.Aliases = appendUnique(g.Aliases, inputKey)
	}
}

// attachID 首个证件号会成为分组键
func (a *Grouper) attachID(g *ResidentGroup, id string) {
	first := len(g.idSet) == 0
	if _, ok := g.idSet[id]; !ok {
		g.idSet[id] = struct{}{}
		g.IDNumbers = append(g.IDNumbers, id)
	}
	a.byID[id] = g
	if first {
		a.registerKey(g, id, g.Key)
	}
}

// absorb 合并人口学字段与联系人
func (g *ResidentGroup) absorb(rec domain.ImportedRecord) {
	setIfEmpty(&g.Gender, rec.Gender)
	setIfEmpty(&g.BirthDate, rec.BirthDate)
	setIfEmpty(&g.NativePlace, rec.NativePlace)
	setIfEmpty(&g.Ethnicity, rec.Ethnicity)

	if addr := textnorm.NormalizeSpacing(rec.Address); addr != "" {
		g.Addresses = appendUnique(g.Addresses, addr)
		setIfLonger(&g.Address, addr)
	}
	setIfLonger(&g.FatherInfo, rec.FatherInfo)
	setIfLonger(&g.MotherInfo, rec.MotherInfo)
	setIfLonger(&g.OtherGuardian, rec.OtherGuardian)
	setIfLonger(&g.FamilyEconomy, rec.FamilyEconomy)

	if rec.Caregivers != "" {
		g.Caregivers = contact.MergeCaregivers(g.Caregivers, rec.Caregivers)
	}

	order := rec.ImportOrder
	if order <= 0 {
		order = rec.RowIndex
	}
	if order > 0 && (g.ImportOrder == 0 || order < g.ImportOrder) {
		g.ImportOrder = order
	}

	g.addContacts(contact.ParseList(rec.FatherInfo, contact.RoleFather))
	g.addContacts(contact.ParseList(rec.MotherInfo, contact.RoleMother))
	g.addContacts(contact.ParseList(rec.OtherGuardian, contact.RoleOther))
}

func (g *ResidentGroup) addContacts(list []contact.Info) {
	for _, info := range list {
		sig := info.Signature()
		if _, ok := g.contactKeys[sig]; ok {
			continue
		}
		g.contactKeys[sig] = struct{}{}
		g.FamilyContacts = append(g.FamilyContacts, info)
	}
}

func setIfEmpty(dst *string, v string) {
	if *dst != "" {
		return
	}
	*dst = textnorm.NormalizeSpacing(v)
}

func setIfLonger(dst *string, v string) {
	n := textnorm.NormalizeSpacing(v)
	if n == "" {
		return
	}
	if *dst == "" || len([]rune(n)) > len([]rune(*dst)) {
		*dst = n
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
