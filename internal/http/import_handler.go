package httpapi

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"wisefido-intake/internal/service"

	"go.uber.org/zap"
)

// ImportHandler 住户登记表导入接口
type ImportHandler struct {
	svc      service.ImportService
	maxBytes int64
	logger   *zap.Logger
}

// NewImportHandler maxUploadMB 为上传文件大小上限
func NewImportHandler(svc service.ImportService, maxUploadMB int, logger *zap.Logger) *ImportHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &ImportHandler{
		svc:      svc,
		maxBytes: int64(maxUploadMB) << 20,
		logger:   logger,
	}
}

// GetImportTemplate 下载空白导入模板
func (h *ImportHandler) GetImportTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Template()
	if err != nil {
		h.logger.Error("GenerateImportTemplate failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate template: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=resident-import-template.xlsx")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportWorkbook multipart 上传：file（必填）、batch_id、force_summary
func (h *ImportHandler) ImportWorkbook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeJSON(w, http.StatusOK, Fail("failed to parse form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusOK, FailFields([]FieldError{{Field: "file", Message: "file is required"}}))
		return
	}
	defer file.Close()
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".xlsx" {
		writeJSON(w, http.StatusOK, FailFields([]FieldError{{Field: "file", Message: "only .xlsx workbooks are supported"}}))
		return
	}

	report, err := h.svc.ImportWorkbook(r.Context(), file, service.ImportOptions{
		SourceFile:   header.Filename,
		BatchID:      strings.TrimSpace(r.FormValue("batch_id")),
		ForceSummary: r.FormValue("force_summary") == "true",
	})
	if err != nil {
		h.logger.Error("ImportWorkbook failed", zap.String("file", header.Filename), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}
