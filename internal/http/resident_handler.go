package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"wisefido-intake/internal/service"
	"wisefido-intake/internal/textnorm"

	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

// ResidentHandler 住户对账接口
type ResidentHandler struct {
	reconcile service.ReconcileService
	list      service.ResidentListService
	logger    *zap.Logger
}

// NewResidentHandler 创建住户对账处理器
func NewResidentHandler(reconcile service.ReconcileService, list service.ResidentListService, logger *zap.Logger) *ResidentHandler {
	return &ResidentHandler{
		reconcile: reconcile,
		list:      list,
		logger:    logger,
	}
}

type residentKeyRequest struct {
	Key          string   `json:"key"`
	ImportKeys   []string `json:"import_keys"`
	RecordKey    string   `json:"record_key"`
	ForceSummary bool     `json:"force_summary"`
	ServerTime   int64    `json:"server_time"`
}

// validate 返回字段级错误
func (req *residentKeyRequest) validate() []FieldError {
	var errs []FieldError
	if textnorm.NormalizeValue(req.Key) == "" {
		errs = append(errs, FieldError{Field: "key", Message: "key is required"})
	}
	for _, k := range req.ImportKeys {
		if textnorm.NormalizeValue(k) == "" {
			errs = append(errs, FieldError{Field: "import_keys", Message: "import_keys must not contain empty values"})
			break
		}
	}
	if req.ServerTime < 0 {
		errs = append(errs, FieldError{Field: "server_time", Message: "server_time must be a non-negative millisecond timestamp"})
	}
	return errs
}

// decode 读取并校验请求体；失败时已写出响应
func (h *ResidentHandler) decode(w http.ResponseWriter, r *http.Request) (*residentKeyRequest, bool) {
	var req residentKeyRequest
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return nil, false
	}
	if errs := req.validate(); len(errs) > 0 {
		writeJSON(w, http.StatusOK, FailFields(errs))
		return nil, false
	}
	return &req, true
}

// EnsureResident 查找或由导入记录创建住户
func (h *ResidentHandler) EnsureResident(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.reconcile.EnsureResident(r.Context(), req.Key, service.EnsureOptions{ImportKeys: req.ImportKeys})
	if err != nil {
		h.fail(w, "EnsureResident", req.Key, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// SyncImports 导入记录同步为入住记录
func (h *ResidentHandler) SyncImports(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.reconcile.SyncImportedRecordsToIntake(r.Context(), req.Key, service.SyncOptions{
		ImportKeys:   req.ImportKeys,
		RecordKey:    req.RecordKey,
		ForceSummary: req.ForceSummary,
	})
	if err != nil {
		h.fail(w, "SyncImportedRecordsToIntake", req.Key, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// SyncAggregates 重新计算住户聚合字段
func (h *ResidentHandler) SyncAggregates(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	summary, err := h.reconcile.SyncAggregates(r.Context(), req.Key, service.SyncAggregatesOptions{
		ServerTime: req.ServerTime,
		Ensure:     service.EnsureOptions{ImportKeys: req.ImportKeys},
	})
	if err != nil {
		h.fail(w, "SyncAggregates", req.Key, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// FetchImportRecords GET ?key=&fallback=a&fallback=b（也接受逗号分隔）
func (h *ResidentHandler) FetchImportRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if textnorm.NormalizeValue(key) == "" {
		writeJSON(w, http.StatusOK, FailFields([]FieldError{{Field: "key", Message: "key is required"}}))
		return
	}
	var fallbacks []string
	for _, v := range q["fallback"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				fallbacks = append(fallbacks, part)
			}
		}
	}

	records, err := h.reconcile.FetchImportedRecordsByKey(r.Context(), key, fallbacks)
	if err != nil {
		h.fail(w, "FetchImportedRecordsByKey", key, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": records,
		"total": len(records),
	}))
}

// ListResidents GET ?skip=&limit=
func (h *ResidentHandler) ListResidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.list.ListResidents(r.Context(), service.ListResidentsRequest{
		Skip:  parseInt(q.Get("skip"), 0),
		Limit: parseInt(q.Get("limit"), 20),
	})
	if err != nil {
		h.logger.Error("ListResidents failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *ResidentHandler) fail(w http.ResponseWriter, op, key string, err error) {
	if errors.Is(err, service.ErrKeyRequired) {
		writeJSON(w, http.StatusOK, FailFields([]FieldError{{Field: "key", Message: err.Error()}}))
		return
	}
	h.logger.Error(op+" failed", zap.String("key", key), zap.Error(err))
	writeJSON(w, http.StatusOK, Fail(err.Error()))
}
