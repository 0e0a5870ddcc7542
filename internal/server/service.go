package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/database"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/logging"
	"go.uber.org/zap"
)

type ReportService struct {
	Reports database.ReportStore
	log     *logging.Logger
}

func NewReportService(reports database.ReportStore, logger *logging.Logger) *ReportService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ReportService{Reports: reports, log: logger}
}

// GetReport serves /reports/{table}. Every query parameter is an equality
// filter on a column of that table.
func (h *ReportService) GetReport(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/reports/")
	if table == "" || strings.Contains(table, "/") {
		http.Error(w, "Table is required in the URL path /reports/{table}", http.StatusBadRequest)
		return
	}

	raw := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}

	fields, err := database.ParseFields(table, raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := h.Reports.Select(r.Context(), table, fields)
	if err != nil {
		http.Error(w, "Failed to run report", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, rows)
}

func (h *ReportService) GetExperiments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.AllExperiments(r.Context())
	if err != nil {
		http.Error(w, "Failed to list experiments", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, rows)
}

func (h *ReportService) GetOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := h.Reports.Orphans(r.Context())
	if err != nil {
		http.Error(w, "Failed to find orphaned rows", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, orphans)
}

func (h *ReportService) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
