// Package excel 住户登记表导入/导出
//
// 表格前两行为表头（分组标题 + 子标题），列标签按 "分组_子标题"、"分组"、"子标题"、"col_N" 依次登记，
// 先登记者优先。
package excel

import (
	"fmt"
	"io"
	"regexp"
	"strconv"

	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/textnorm"

	"github.com/xuri/excelize/v2"
)

// 字段 → 候选列标签（按优先级）
var (
	labelName          = []string{"姓名"}
	labelGender        = []string{"性别"}
	labelAdmissionDate = []string{"入住时间"}
	labelCaregivers    = []string{"入住人"}
	labelBirthDate     = []string{"患儿基本信息_出生日期", "出生日期"}
	labelNativePlace   = []string{"患儿基本信息_籍贯", "籍贯"}
	labelEthnicity     = []string{"患儿基本信息_民族", "民族"}
	labelIDNumber      = []string{"患儿基本信息_身份证号", "身份证号"}
	labelHospital      = []string{"就诊情况_就诊医院", "就诊医院"}
	labelDiagnosis     = []string{"就诊情况_医院诊断", "医院诊断"}
	labelDoctor        = []string{"就诊情况_医生姓名", "医生姓名"}
	labelSymptoms      = []string{"医疗情况_症状详情", "症状详情"}
	labelTreatment     = []string{"医疗情况_医治过程", "医治过程"}
	labelFollowUp      = []string{"医疗情况_后续治疗安排", "后续治疗安排"}
	labelAddress       = []string{"家庭基础信息_家庭地址", "家庭基本情况_家庭地址", "家庭地址"}
	labelFatherInfo    = []string{
		"家庭基础信息_父亲姓名联系电话身份证号", "家庭基本情况_父亲姓名、电话、身份证号", "父亲姓名、电话、身份证号",
	}
	labelMotherInfo = []string{
		"家庭基础信息_母亲姓名联系电话身份证号", "家庭基本情况_母亲姓名、电话、身份证号", "母亲姓名、电话、身份证号",
	}
	labelOtherGuardian = []string{"家庭基础信息_其他监护人", "家庭基本情况_其他监护人", "其他监护人"}
	labelFamilyEconomy = []string{"家庭基础信息_家庭经济", "家庭基本情况_家庭经济", "家庭经济"}
)

// Excel 日期序列号（五位整数部分，约 1927–2173 年）
var serialDatePattern = regexp.MustCompile(`^[0-9]{5}(\.[0-9]+)?$`)

type labelIndex map[string]int

func buildLabelIndex(headers, subHeaders []string) labelIndex {
	idx := labelIndex{}
	n := len(headers)
	if len(subHeaders) > n {
		n = len(subHeaders)
	}
	for i := 0; i < n; i++ {
		top := textnorm.NormalizeValue(cellAt(headers, i))
		sub := textnorm.NormalizeValue(cellAt(subHeaders, i))
		var candidates []string
		if top != "" && sub != "" && top != sub {
			candidates = append(candidates, top+"_"+sub)
		}
		if top != "" {
			candidates = append(candidates, top)
		}
		if sub != "" {
			candidates = append(candidates, sub)
		}
		candidates = append(candidates, "col_"+strconv.Itoa(i+1))
		for _, label := range candidates {
			if _, ok := idx[label]; !ok {
				idx[label] = i
			}
		}
	}
	return idx
}

// value 第一个存在的标签对应的单元格
func (idx labelIndex) value(row []string, labels []string) string {
	for _, label := range labels {
		if i, ok := idx[label]; ok {
			return textnorm.NormalizeSpacing(cellAt(row, i))
		}
	}
	return ""
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadImportedRecords 读取第一个工作表中的住户登记行
// 空行、无姓名的行、除姓名外没有任何内容的行被跳过
func ReadImportedRecords(r io.Reader) ([]domain.ImportedRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headers, err := headerRows(f, sheet, rows)
	if err != nil {
		return nil, err
	}
	idx := buildLabelIndex(headers[0], headers[1])

	var records []domain.ImportedRecord
	for i := 2; i < len(rows); i++ {
		rec, ok := extractRecord(idx, rows[i])
		if !ok {
			continue
		}
		rec.RowIndex = i - 1
		rec.ImportOrder = len(records) + 1
		records = append(records, rec)
	}
	return records, nil
}

// headerRows 前两行表头，合并单元格的值填充到整个合并区域
func headerRows(f *excelize.File, sheet string, rows [][]string) ([2][]string, error) {
	var headers [2][]string
	width := 0
	for i := 0; i < 2 && i < len(rows); i++ {
		if len(rows[i]) > width {
			width = len(rows[i])
		}
	}
	for i := 0; i < 2; i++ {
		headers[i] = make([]string, width)
		if i < len(rows) {
			copy(headers[i], rows[i])
		}
	}

	merged, err := f.GetMergeCells(sheet)
	if err != nil {
		return headers, fmt.Errorf("failed to read merged cells: %w", err)
	}
	for _, mc := range merged {
		startCol, startRow, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		for r := startRow; r <= endRow && r <= 2; r++ {
			for c := startCol; c <= endCol && c <= width; c++ {
				if headers[r-1][c-1] == "" {
					headers[r-1][c-1] = mc.GetCellValue()
				}
			}
		}
	}
	return headers, nil
}

func extractRecord(idx labelIndex, row []string) (domain.ImportedRecord, bool) {
	if isRowEmpty(row) {
		return domain.ImportedRecord{}, false
	}
	name := idx.value(row, labelName)
	if name == "" {
		return domain.ImportedRecord{}, false
	}

	admission := dateText(idx.value(row, labelAdmissionDate))
	rec := domain.ImportedRecord{
		Key:                name,
		ResidentName:       name,
		Gender:             idx.value(row, labelGender),
		BirthDate:          dateText(idx.value(row, labelBirthDate)),
		NativePlace:        idx.value(row, labelNativePlace),
		Ethnicity:          idx.value(row, labelEthnicity),
		IDNumber:           idx.value(row, labelIDNumber),
		Caregivers:         idx.value(row, labelCaregivers),
		AdmissionDate:      admission,
		AdmissionTimestamp: textnorm.ParseTimestamp(admission),
		Hospital:           idx.value(row, labelHospital),
		Diagnosis:          idx.value(row, labelDiagnosis),
		Doctor:             idx.value(row, labelDoctor),
		Symptoms:           idx.value(row, labelSymptoms),
		TreatmentProcess:   idx.value(row, labelTreatment),
		FollowUpPlan:       idx.value(row, labelFollowUp),
		Address:            idx.value(row, labelAddress),
		FatherInfo:         idx.value(row, labelFatherInfo),
		MotherInfo:         idx.value(row, labelMotherInfo),
		OtherGuardian:      idx.value(row, labelOtherGuardian),
		FamilyEconomy:      idx.value(row, labelFamilyEconomy),
	}
	return rec, hasContent(rec)
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if textnorm.NormalizeValue(cell) != "" {
			return false
		}
	}
	return true
}

func hasContent(rec domain.ImportedRecord) bool {
	return textnorm.FirstNonEmpty(
		rec.Gender, rec.BirthDate, rec.NativePlace, rec.Ethnicity, rec.Caregivers, rec.AdmissionDate,
		rec.Hospital, rec.Diagnosis, rec.Doctor, rec.Symptoms, rec.TreatmentProcess, rec.FollowUpPlan,
		rec.Address, rec.FatherInfo, rec.MotherInfo, rec.OtherGuardian, rec.FamilyEconomy,
	) != ""
}

// dateText 日期序列号转为 yyyy-mm-dd（含时间时为 yyyy-mm-dd hh:mm），其余原样返回
func dateText(v string) string {
	if !serialDatePattern.MatchString(v) {
		return v
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04")
}
