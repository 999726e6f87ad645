package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domain "github.com/depscan-io/depscan/internal/domain/scans"
	"github.com/depscan-io/depscan/internal/middleware"
)

// POST /api/scans/upload  (multipart, field "file") → 202 with the pending scan
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUploadBytes+1024)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		return badRequest("invalid multipart request")
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return badRequest("missing file field")
	}
	defer file.Close()

	scan, err := r.scansSvc.Upload(req.Context(),
		middleware.GetUserID(req.Context()),
		middleware.SanitizeString(header.Filename),
		file, header.Size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, scan)
}

// GET /api/scans?offset=&limit=
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = middleware.ValidateLimit(limit)

	list, err := r.scansSvc.List(req.Context(), middleware.GetUserID(req.Context()), offset, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"scans":  list,
		"offset": offset,
		"limit":  limit,
	})
}

// GET /api/scans/summary?days=30
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	days = middleware.ValidateDays(days)

	summary, err := r.scansSvc.Summary(req.Context(), middleware.GetUserID(req.Context()), days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}

func scanIDParam(req *http.Request) (domain.ScanID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return "", badRequest(err.Error())
	}
	return domain.ScanID(id), nil
}

// GET /api/scans/{id} → scan plus its vulnerabilities
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	scan, rows, err := r.scansSvc.Get(req.Context(), middleware.GetUserID(req.Context()), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"scan":            scan,
		"vulnerabilities": rows,
	})
}

// DELETE /api/scans/{id}
func (r *Router) handleDeleteScan(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	if err := r.scansSvc.Delete(req.Context(), middleware.GetUserID(req.Context()), id); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /api/scans/{id}/log → plain text scanner output
func (r *Router) handleScanLog(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	text, err := r.scansSvc.ReadLog(req.Context(), middleware.GetUserID(req.Context()), id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = w.Write([]byte(text))
	return err
}

// GET /api/scans/{id}/report → raw Dependency Check JSON report
func (r *Router) handleScanReport(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	path, err := r.scansSvc.ReportPath(req.Context(), middleware.GetUserID(req.Context()), id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, req, path)
	return nil
}

// GET /api/scans/{id}/export/csv
func (r *Router) handleExportCSV(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="scan-%s.csv"`, id))
	return r.scansSvc.ExportCSV(req.Context(), middleware.GetUserID(req.Context()), id, w)
}

// POST /api/scans/{id}/analyze
// Body (optional): {"vulnerability_ids": [1,2,3]}; empty means all findings.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	var body struct {
		VulnerabilityIDs []int64 `json:"vulnerability_ids"`
	}
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return badRequest("invalid request body")
		}
	}

	result, err := r.aiSvc.Analyze(req.Context(), middleware.GetUserID(req.Context()), string(id), body.VulnerabilityIDs)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

// GET /api/scans/{id}/analyses?limit=
func (r *Router) handleAnalysisHistory(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = middleware.ValidateLimit(limit)

	list, err := r.aiSvc.History(req.Context(), middleware.GetUserID(req.Context()), string(id), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// PATCH /api/scans/{id}/vulnerabilities/{vulnID}/suppress
// Body: {"suppressed": true}
func (r *Router) handleSuppress(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	vulnID, err := strconv.ParseInt(chi.URLParam(req, "vulnID"), 10, 64)
	if err != nil || vulnID <= 0 {
		return badRequest("invalid vulnerability id")
	}
	var body struct {
		Suppressed bool `json:"suppressed"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}

	v, err := r.scansSvc.Suppress(req.Context(), middleware.GetUserID(req.Context()), id, vulnID, body.Suppressed)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, v)
}
