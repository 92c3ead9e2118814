package grouping

import (
	"wisefido-intake/internal/contact"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/textnorm"
)

// Category 弱证据类别
type Category int

const (
	CategoryAddress Category = iota
	CategoryFather
	CategoryMother
)

func (c Category) String() string {
	switch c {
	case CategoryAddress:
		return "address"
	case CategoryFather:
		return "father"
	case CategoryMother:
		return "mother"
	}
	return "unknown"
}

// Evidence 单个类别的比对结果
// Available: 双方都有该类别的证据；Matched: 证据一致
type Evidence struct {
	Category  Category
	Available bool
	Matched   bool
}

// Policy 同名不同证件号时的合并阈值
type Policy struct {
	// MinMatches 需要一致的类别数上限；实际要求 min(available, MinMatches)
	MinMatches int
}

// DefaultPolicy 三类中至少两类一致；可用类别不足两类时要求全部一致
var DefaultPolicy = Policy{MinMatches: 2}

// Decide available=0 时证据不足，不合并
func (p Policy) Decide(evidence []Evidence) bool {
	available, matched := 0, 0
	for _, e := range evidence {
		if !e.Available {
			continue
		}
		available++
		if e.Matched {
			matched++
		}
	}
	if available == 0 {
		return false
	}
	need := p.MinMatches
	if need < 1 {
		need = 1
	}
	if available < need {
		need = available
	}
	return matched >= need
}

type tokenSet map[string]struct{}

func (s tokenSet) addAll(tokens []string) {
	for _, t := range tokens {
		s[t] = struct{}{}
	}
}

func (s tokenSet) intersects(other tokenSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; ok {
			return true
		}
	}
	return false
}

// recordEvidence 一条导入记录上的弱证据
type recordEvidence struct {
	address string
	father  tokenSet
	mother  tokenSet
}

func evidenceOf(rec domain.ImportedRecord) recordEvidence {
	return recordEvidence{
		address: textnorm.NormalizeSpacing(rec.Address),
		father:  contactTokens(rec.FatherInfo, contact.RoleFather),
		mother:  contactTokens(rec.MotherInfo, contact.RoleMother),
	}
}

func contactTokens(raw string, role contact.Role) tokenSet {
	set := tokenSet{}
	for _, seg := range contact.SplitList(raw) {
		if info, ok := contact.Parse(seg, role); ok {
			set.addAll(info.Tokens())
		}
	}
	return set
}

// groupEvidence 组内累积的证据
type groupEvidence struct {
	addresses map[string]struct{}
	father    tokenSet
	mother    tokenSet
}

func newGroupEvidence() groupEvidence {
	return groupEvidence{addresses: map[string]struct{}{}, father: tokenSet{}, mother: tokenSet{}}
}

func (g groupEvidence) add(ev recordEvidence) {
	if ev.address != "" {
		g.addresses[ev.address] = struct{}{}
	}
	for t := range ev.father {
		g.father[t] = struct{}{}
	}
	for t := range ev.mother {
		g.mother[t] = struct{}{}
	}
}

// compare 逐类别比对
func (g groupEvidence) compare(ev recordEvidence) []Evidence {
	out := make([]Evidence, 0, 3)

	addr := Evidence{Category: CategoryAddress, Available: ev.address != "" && len(g.addresses) > 0}
	if addr.Available {
		_, addr.Matched = g.addresses[ev.address]
	}
	out = append(out, addr)

	father := Evidence{Category: CategoryFather, Available: len(ev.father) > 0 && len(g.father) > 0}
	father.Matched = father.Available && g.father.intersects(ev.father)
	out = append(out, father)

	mother := Evidence{Category: CategoryMother, Available: len(ev.mother) > 0 && len(g.mother) > 0}
	mother.Matched = mother.Available && g.mother.intersects(ev.mother)
	out = append(out, mother)

	return out
}
