package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/queryguard/queryguard/internal/models"
	"github.com/queryguard/queryguard/internal/service"
)

// TablesHandler handles GET /api/v1/tables: the allow-listed surface a
// client may query, with excluded columns already filtered out.
type TablesHandler struct {
	svc *service.Analysis
}

func NewTablesHandler(svc *service.Analysis) *TablesHandler {
	return &TablesHandler{svc: svc}
}

func (h *TablesHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	includeColumns := r.URL.Query().Get("columns") != "false"

	tables, err := h.svc.ListTables(r.Context(), includeColumns)
	if err != nil {
		models.WriteError(w, http.StatusInternalServerError, "table listing failed")
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// GetTable returns one allow-listed table with columns. Accepts "table" or
// "schema.table"; anything outside the allow-list is a 404, not a 403, so
// the endpoint leaks nothing about what exists.
func (h *TablesHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "table"))

	tables, err := h.svc.ListTables(r.Context(), true)
	if err != nil {
		models.WriteError(w, http.StatusInternalServerError, "table listing failed")
		return
	}
	for _, t := range tables {
		if t.Table == name || t.Schema+"."+t.Table == name {
			models.WriteJSON(w, http.StatusOK, t)
			return
		}
	}
	models.WriteError(w, http.StatusNotFound, "table not found")
}
