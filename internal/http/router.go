package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

const apiPrefix = "/intake/api/v1"

// Router 基于标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// method 只允许指定方法，其余返回 405
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterResidentRoutes 住户对账与列表
func (r *Router) RegisterResidentRoutes(h *ResidentHandler) {
	r.Handle(apiPrefix+"/residents", method(http.MethodGet, h.ListResidents))
	r.Handle(apiPrefix+"/residents/ensure", method(http.MethodPost, h.EnsureResident))
	r.Handle(apiPrefix+"/residents/sync-imports", method(http.MethodPost, h.SyncImports))
	r.Handle(apiPrefix+"/residents/sync-aggregates", method(http.MethodPost, h.SyncAggregates))
	r.Handle(apiPrefix+"/import-records", method(http.MethodGet, h.FetchImportRecords))
}

// RegisterImportRoutes 登记表导入
func (r *Router) RegisterImportRoutes(h *ImportHandler) {
	r.Handle(apiPrefix+"/import", method(http.MethodPost, h.ImportWorkbook))
	r.Handle(apiPrefix+"/import/template", method(http.MethodGet, h.GetImportTemplate))
}

// RegisterMetricsRoute Prometheus 抓取端点
func (r *Router) RegisterMetricsRoute(h http.Handler) {
	r.HandleHandler("/metrics", h)
}

// RegisterHealthRoute 存活检查
func (r *Router) RegisterHealthRoute() {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
}
