package excel

import (
	"bytes"
	"testing"

	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/textnorm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestGenerateImportTemplate(t *testing.T) {
	data, err := GenerateImportTemplate()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	v, err := f.GetCellValue(SheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "姓名", v)
	v, err = f.GetCellValue(SheetName, "E1")
	require.NoError(t, err)
	assert.Equal(t, "患儿基本信息", v)
	v, err = f.GetCellValue(SheetName, "F2")
	require.NoError(t, err)
	assert.Equal(t, "籍贯", v)

	records, err := ReadImportedRecords(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWorkbookRoundTrip(t *testing.T) {
	in := []domain.ImportedRecord{
		{
			ResidentName:     "王芳",
			Gender:           "女",
			AdmissionDate:    "2023-05-01",
			IDNumber:         "110101201001011234",
			Hospital:         "儿童医院",
			Diagnosis:        "肺炎",
			Doctor:           "张医生",
			Symptoms:         "发热",
			TreatmentProcess: "抗感染治疗",
			FollowUpPlan:     "复查",
			Address:          "北京市朝阳区",
			FatherInfo:       "王建国13800000001",
			MotherInfo:       "刘梅13700000003",
			OtherGuardian:    "舅舅 13600000002",
			FamilyEconomy:    "一般",
			Caregivers:       "奶奶",
		},
		{ResidentName: "只有姓名"},
		{ResidentName: "李四", AdmissionDate: "2024.01.10", Hospital: "省人民医院"},
	}
	data, err := GenerateWorkbook(in)
	require.NoError(t, err)

	out, err := ReadImportedRecords(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, out, 2, "name-only rows are skipped")

	r := out[0]
	assert.Equal(t, "王芳", r.Key)
	assert.Equal(t, "王芳", r.ResidentName)
	assert.Equal(t, "女", r.Gender)
	assert.Equal(t, "110101201001011234", r.IDNumber)
	assert.Equal(t, "儿童医院", r.Hospital)
	assert.Equal(t, "肺炎", r.Diagnosis)
	assert.Equal(t, "张医生", r.Doctor)
	assert.Equal(t, "发热", r.Symptoms)
	assert.Equal(t, "抗感染治疗", r.TreatmentProcess)
	assert.Equal(t, "复查", r.FollowUpPlan)
	assert.Equal(t, "北京市朝阳区", r.Address)
	assert.Equal(t, "王建国13800000001", r.FatherInfo)
	assert.Equal(t, "刘梅13700000003", r.MotherInfo)
	assert.Equal(t, "舅舅 13600000002", r.OtherGuardian)
	assert.Equal(t, "一般", r.FamilyEconomy)
	assert.Equal(t, "奶奶", r.Caregivers)
	assert.Equal(t, textnorm.ParseTimestamp("2023-05-01"), r.AdmissionTimestamp)
	assert.Equal(t, 1, r.RowIndex)
	assert.Equal(t, 1, r.ImportOrder)

	assert.Equal(t, "李四", out[1].ResidentName)
	assert.Equal(t, 3, out[1].RowIndex)
	assert.Equal(t, 2, out[1].ImportOrder)
	assert.Equal(t, "2024.01.10", out[1].AdmissionDate)
	assert.Equal(t, textnorm.ParseTimestamp("2024-01-10"), out[1].AdmissionTimestamp)
}

func TestReadImportedRecords_FlatHeadersAndSerialDates(t *testing.T) {
	f := excelize.NewFile()
	sheet := "Sheet1"
	for cell, v := range map[string]string{
		"A1": "姓名", "B1": "入住时间", "C1": "就诊医院", "D1": "医院诊断", "E1": "家庭地址",
	} {
		require.NoError(t, f.SetCellStr(sheet, cell, v))
	}
	require.NoError(t, f.SetCellStr(sheet, "A3", " 王芳 "))
	require.NoError(t, f.SetCellValue(sheet, "B3", 45047))
	require.NoError(t, f.SetCellStr(sheet, "C3", "儿童医院"))
	require.NoError(t, f.SetCellStr(sheet, "D3", "肺炎"))
	require.NoError(t, f.SetCellStr(sheet, "E3", "北京市  朝阳区"))
	// 空行
	require.NoError(t, f.SetCellStr(sheet, "A5", "李四"))
	require.NoError(t, f.SetCellStr(sheet, "B5", "2024年1月10日"))

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := ReadImportedRecords(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "王芳", out[0].ResidentName)
	assert.Equal(t, "2023-05-01", out[0].AdmissionDate)
	assert.Equal(t, textnorm.ParseTimestamp("2023-05-01"), out[0].AdmissionTimestamp)
	assert.Equal(t, "北京市 朝阳区", out[0].Address)
	assert.Equal(t, "肺炎", out[0].Diagnosis)

	assert.Equal(t, "李四", out[1].ResidentName)
	assert.Equal(t, 3, out[1].RowIndex)
	assert.True(t, out[1].AdmissionTimestamp.Valid)
}

func TestReadImportedRecords_NotAWorkbook(t *testing.T) {
	_, err := ReadImportedRecords(bytes.NewReader([]byte("not a workbook")))
	assert.Error(t, err)
}

func TestBuildLabelIndex(t *testing.T) {
	idx := buildLabelIndex(
		[]string{"姓名", "患儿基本信息", "患儿基本信息"},
		[]string{"", "籍贯", "民族"},
	)
	assert.Equal(t, 0, idx["姓名"])
	assert.Equal(t, 1, idx["患儿基本信息_籍贯"])
	assert.Equal(t, 1, idx["患儿基本信息"], "first column wins for a shared label")
	assert.Equal(t, 2, idx["民族"])
	assert.Equal(t, 2, idx["col_3"])
}

func TestDateText(t *testing.T) {
	assert.Equal(t, "2023-05-01", dateText("45047"))
	assert.Regexp(t, `^2023-05-01 1[12]:[0-9]{2}$`, dateText("45047.5"))
	assert.Equal(t, "2023", dateText("2023"))
	assert.Equal(t, "2023-05-01", dateText("2023-05-01"))
	assert.Equal(t, "", dateText(""))
}
