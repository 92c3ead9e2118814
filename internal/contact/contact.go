// Package contact 从监护人/联系人自由文本中提取 (姓名, 手机号, 身份证号)
package contact

import (
	"regexp"
	"strings"
	"unicode"

	"wisefido-intake/internal/textnorm"

	"golang.org/x/text/unicode/norm"
)

// Role 联系人角色
type Role string

const (
	RoleFather Role = "father"
	RoleMother Role = "mother"
	RoleOther  Role = "other"
)

// Info 解析结果
type Info struct {
	Role     Role   `json:"role"`
	Raw      string `json:"raw"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	IDNumber string `json:"id_number,omitempty"`
}

var (
	phonePattern = regexp.MustCompile(`1[3-9][0-9]{9}`)
	idPattern    = regexp.MustCompile(`[0-9]{17}[0-9Xx]|[0-9]{15}`)
	// 连续数字（可带末尾校验位 X）
	digitRunPattern = regexp.MustCompile(`[0-9]+[Xx]?`)
	bracketPattern  = regexp.MustCompile(`[()\[\]{}<>【】《》]`)
	separatorChars  = regexp.MustCompile(`[:;,、|/]+`)
	englishNoise    = regexp.MustCompile(`(?i)\b(id\s*card|id\s*no\.?|contact\s*phone|phone|tel|mobile)\b`)
	listDelimiters  = regexp.MustCompile(`[、，,；;]+`)
)

// 常见样板词，长词在前
var boilerplate = []string{
	"身份证号码", "身份证号", "身份证", "证件号码", "证件号", "证件",
	"联系电话", "电话号码", "联系方式", "手机号码", "手机号", "手机", "电话",
	"父亲姓名", "母亲姓名", "监护人姓名", "父亲", "母亲", "监护人", "姓名", "号码",
}

// Fold 全角转半角（全角数字、括号、冒号等）
func Fold(s string) string {
	return norm.NFKC.String(s)
}

// Parse 解析单个联系人字段；输入为空时 ok=false，从不 panic
func Parse(raw string, role Role) (Info, bool) {
	normalized := textnorm.NormalizeSpacing(raw)
	if normalized == "" {
		return Info{}, false
	}
	info := Info{Role: role, Raw: normalized}
	working := Fold(normalized)

	phone, id := classifyDigitRuns(working)
	if phone == "" {
		phone = phonePattern.FindString(stripDigits(working, id))
	}
	if phone != "" {
		info.Phone = phone
		working = strings.Replace(working, phone, " ", 1)
	}
	if id == "" {
		id = idPattern.FindString(working)
	}
	if id != "" {
		info.IDNumber = strings.ToUpper(id)
		working = strings.Replace(working, id, " ", 1)
	}

	info.Name = cleanName(working)
	if info.Name == "" {
		info.Name = normalized
	}
	return info, true
}

// ParseList 解析可能包含多个联系人的字段；other 角色按列表分隔符切分
func ParseList(raw string, role Role) []Info {
	segments := []string{raw}
	if role == RoleOther {
		segments = SplitList(raw)
	}
	var out []Info
	for _, seg := range segments {
		if info, ok := Parse(seg, role); ok {
			out = append(out, info)
		}
	}
	return out
}

// SplitList 按全/半角逗号、顿号、分号切分
func SplitList(raw string) []string {
	normalized := textnorm.NormalizeSpacing(raw)
	if normalized == "" {
		return nil
	}
	var out []string
	for _, part := range listDelimiters.Split(normalized, -1) {
		if p := textnorm.NormalizeSpacing(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MergeCaregivers 合并顿号分隔的照护人列表，去重并保持首次出现顺序
func MergeCaregivers(lists ...string) string {
	seen := make(map[string]struct{})
	var names []string
	for _, list := range lists {
		for _, name := range SplitList(list) {
			k := textnorm.NameKey(name)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			names = append(names, name)
		}
	}
	return strings.Join(names, "、")
}

// Tokens 用于证据比对的规范化标记
func (i Info) Tokens() []string {
	var tokens []string
	if k := nameToken(i.Name); k != "" {
		tokens = append(tokens, "name:"+k)
	}
	if i.Phone != "" {
		tokens = append(tokens, "phone:"+i.Phone)
	}
	if i.IDNumber != "" {
		tokens = append(tokens, "id:"+i.IDNumber)
	}
	return tokens
}

// Signature 去重签名：role|姓名|手机
func (i Info) Signature() string {
	return string(i.Role) + "|" + nameToken(i.Name) + "|" + i.Phone
}

// nameToken 只有包含字母/汉字的姓名才作为证据
func nameToken(name string) string {
	k := textnorm.NameKey(Fold(name))
	for _, r := range k {
		if unicode.IsLetter(r) {
			return k
		}
	}
	return ""
}

// classifyDigitRuns 按完整数字串判断，避免把身份证号中的片段误识别为手机号
func classifyDigitRuns(s string) (phone, id string) {
	for _, run := range digitRunPattern.FindAllString(s, -1) {
		switch {
		case phone == "" && len(run) == 11 && phonePattern.MatchString(run):
			phone = run
		case id == "" && (len(run) == 18 || len(run) == 15) && idPattern.FindString(run) == run:
			id = run
		}
	}
	return phone, id
}

func stripDigits(s, id string) string {
	if id == "" {
		return s
	}
	return strings.Replace(s, id, " ", 1)
}

func cleanName(s string) string {
	s = bracketPattern.ReplaceAllString(s, " ")
	for _, token := range boilerplate {
		s = strings.ReplaceAll(s, token, " ")
	}
	s = englishNoise.ReplaceAllString(s, " ")
	s = separatorChars.ReplaceAllString(s, " ")
	return textnorm.NormalizeSpacing(s)
}
