package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"wisefido-intake/internal/docstore"
	"wisefido-intake/internal/domain"
	"wisefido-intake/internal/excel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const idLiSi = "110101201001011234"

func newTestImportService(env *testEnv) *importService {
	imp := NewImportService(env.store, env.svc, env.metrics, testCollections.ImportRecords, 2, zap.NewNop()).(*importService)
	imp.now = func() time.Time { return fixedNow }
	return imp
}

func testWorkbook(t *testing.T) []byte {
	t.Helper()
	data, err := excel.GenerateWorkbook([]domain.ImportedRecord{
		{ResidentName: "王芳", AdmissionDate: "2023-05-01", Hospital: "儿童医院", Diagnosis: "肺炎", Address: "X街1号", FatherInfo: "王建国 13800000000"},
		{ResidentName: "王芳", AdmissionDate: "2024-01-10", Hospital: "省人民医院", Diagnosis: "支气管炎", Address: "X街1号", FatherInfo: "13800000000"},
		{ResidentName: "李四", IDNumber: idLiSi, AdmissionDate: "2024-02-01", Hospital: "省人民医院"},
	})
	require.NoError(t, err)
	return data
}

func TestImportWorkbook(t *testing.T) {
	env := newTestEnv(t, nil)
	imp := newTestImportService(env)
	ctx := context.Background()
	data := testWorkbook(t)

	report, err := imp.ImportWorkbook(ctx, bytes.NewReader(data), ImportOptions{SourceFile: "登记表.xlsx", BatchID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, "b1", report.BatchID)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 3, report.Stored)
	assert.Equal(t, 3, report.Created)
	require.Len(t, report.Groups, 2)

	wang := report.Groups[0]
	assert.Equal(t, "王芳", wang.Name)
	assert.Equal(t, 2, wang.Rows)
	assert.Equal(t, 2, wang.AdmissionCount)
	assert.Equal(t, 2, wang.Created)
	require.NotNil(t, wang.Summary)
	assert.Equal(t, 2, wang.Summary.Count)
	assert.Equal(t, "省人民医院", wang.Summary.LatestHospital)

	li := report.Groups[1]
	assert.Equal(t, idLiSi, li.Key)
	assert.Equal(t, 1, li.Created)

	rows := env.all(t, testCollections.ImportRecords)
	require.Len(t, rows, 3)
	for _, doc := range rows {
		assert.Equal(t, "b1", doc["sync_batch_id"])
		assert.Equal(t, "登记表.xlsx", mustLookup(t, doc, "metadata.source_file"))
		assert.Equal(t, doc.ID(), mustLookup(t, doc, "metadata.import_record_id"))
	}

	resident := env.get(t, testCollections.Residents, wang.Key)
	assert.Equal(t, "王芳", resident["name"])
	assert.Equal(t, json.Number("2"), resident["admission_count"])
	assert.Equal(t, "13800000000", resident["father_contact_phone"])
	assert.Equal(t, json.Number("1"), env.get(t, testCollections.Residents, idLiSi)["admission_count"])

	// 重复导入同一文件
	again, err := imp.ImportWorkbook(ctx, bytes.NewReader(data), ImportOptions{SourceFile: "登记表.xlsx", BatchID: "b2"})
	require.NoError(t, err)
	assert.Equal(t, 3, again.Stored)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 3, again.Updated)
	assert.Equal(t, 2, again.Groups[0].Summary.Count)
	assert.Len(t, env.all(t, testCollections.ImportRecords), 3)
	assert.Len(t, env.all(t, testCollections.Intake), 3)
	assert.Len(t, env.all(t, testCollections.Residents), 2)
}

func TestImportWorkbook_EmptyTemplate(t *testing.T) {
	env := newTestEnv(t, nil)
	imp := newTestImportService(env)

	data, err := imp.Template()
	require.NoError(t, err)

	report, err := imp.ImportWorkbook(context.Background(), bytes.NewReader(data), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rows)
	assert.Empty(t, report.Groups)
	assert.True(t, strings.HasPrefix(report.BatchID, "batch_"))
}

func TestImportWorkbook_InvalidFile(t *testing.T) {
	env := newTestEnv(t, nil)
	imp := newTestImportService(env)

	_, err := imp.ImportWorkbook(context.Background(), strings.NewReader("not a workbook"), ImportOptions{})
	assert.ErrorContains(t, err, "invalid workbook")
}

func TestImportWorkbook_RowStoreFailureIsCounted(t *testing.T) {
	var fs *faultStore
	env := newTestEnv(t, func(s docstore.Store) docstore.Store {
		fs = newFaultStore(s)
		return fs
	})
	fs.failOn("set", testCollections.ImportRecords, docstore.ErrCollectionNotExist)
	imp := newTestImportService(env)

	report, err := imp.ImportWorkbook(context.Background(), bytes.NewReader(testWorkbook(t)), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 0, report.Stored)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 3, fs.callCount("set", testCollections.ImportRecords))
}
