package excel

import (
	"bytes"
	"fmt"

	"wisefido-intake/internal/domain"

	"github.com/xuri/excelize/v2"
)

// SheetName 导入模板工作表名
const SheetName = "住户登记"

type column struct {
	group string
	label string
	width float64
	value func(domain.ImportedRecord) string
}

var columns = []column{
	{"", "姓名", 12, func(r domain.ImportedRecord) string { return r.ResidentName }},
	{"", "性别", 8, func(r domain.ImportedRecord) string { return r.Gender }},
	{"", "入住时间", 14, func(r domain.ImportedRecord) string { return r.AdmissionDate }},
	{"", "入住人", 16, func(r domain.ImportedRecord) string { return r.Caregivers }},
	{"患儿基本信息", "出生日期", 14, func(r domain.ImportedRecord) string { return r.BirthDate }},
	{"患儿基本信息", "籍贯", 12, func(r domain.ImportedRecord) string { return r.NativePlace }},
	{"患儿基本信息", "民族", 8, func(r domain.ImportedRecord) string { return r.Ethnicity }},
	{"患儿基本信息", "身份证号", 22, func(r domain.ImportedRecord) string { return r.IDNumber }},
	{"就诊情况", "就诊医院", 20, func(r domain.ImportedRecord) string { return r.Hospital }},
	{"就诊情况", "医院诊断", 20, func(r domain.ImportedRecord) string { return r.Diagnosis }},
	{"就诊情况", "医生姓名", 12, func(r domain.ImportedRecord) string { return r.Doctor }},
	{"医疗情况", "症状详情", 30, func(r domain.ImportedRecord) string { return r.Symptoms }},
	{"医疗情况", "医治过程", 30, func(r domain.ImportedRecord) string { return r.TreatmentProcess }},
	{"医疗情况", "后续治疗安排", 30, func(r domain.ImportedRecord) string { return r.FollowUpPlan }},
	{"家庭基础信息", "家庭地址", 30, func(r domain.ImportedRecord) string { return r.Address }},
	{"家庭基础信息", "父亲姓名联系电话身份证号", 36, func(r domain.ImportedRecord) string { return r.FatherInfo }},
	{"家庭基础信息", "母亲姓名联系电话身份证号", 36, func(r domain.ImportedRecord) string { return r.MotherInfo }},
	{"家庭基础信息", "其他监护人", 24, func(r domain.ImportedRecord) string { return r.OtherGuardian }},
	{"家庭基础信息", "家庭经济", 20, func(r domain.ImportedRecord) string { return r.FamilyEconomy }},
}

// GenerateImportTemplate 生成空白导入模板（两行表头）
func GenerateImportTemplate() ([]byte, error) {
	return GenerateWorkbook(nil)
}

// GenerateWorkbook 按导入模板格式导出记录；records 为空时只生成表头
func GenerateWorkbook(records []domain.ImportedRecord) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 之前不能关闭文件

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
			WrapText:   true,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeaders(f, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	// 数据从第 3 行开始
	for i, rec := range records {
		for c, col := range columns {
			v := col.value(rec)
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, i+3)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      2,
		TopLeftCell: "B3",
		ActivePane:  "bottomRight",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	f.Close()
	return buf.Bytes(), nil
}

func writeHeaders(f *excelize.File, style int) error {
	groupStart := 0
	for c, col := range columns {
		colName, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, colName, colName, col.width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}

		top, sub := colName+"1", colName+"2"
		if col.group == "" {
			if err := f.SetCellStr(SheetName, top, col.label); err != nil {
				return fmt.Errorf("failed to set header cell %s: %w", top, err)
			}
			if err := f.MergeCell(SheetName, top, sub); err != nil {
				return fmt.Errorf("failed to merge %s:%s: %w", top, sub, err)
			}
		} else {
			if c == 0 || columns[c-1].group != col.group {
				groupStart = c
				if err := f.SetCellStr(SheetName, top, col.group); err != nil {
					return fmt.Errorf("failed to set header cell %s: %w", top, err)
				}
			}
			if err := f.SetCellStr(SheetName, sub, col.label); err != nil {
				return fmt.Errorf("failed to set header cell %s: %w", sub, err)
			}
			if c == len(columns)-1 || columns[c+1].group != col.group {
				start, _ := excelize.CoordinatesToCellName(groupStart+1, 1)
				if start != top {
					if err := f.MergeCell(SheetName, start, top); err != nil {
						return fmt.Errorf("failed to merge %s:%s: %w", start, top, err)
					}
				}
			}
		}
		if err := f.SetCellStyle(SheetName, top, sub, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return f.SetRowHeight(SheetName, 2, 30)
}
