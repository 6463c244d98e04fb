package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/toolbox/internal/chread"
)

func (d *Dependencies) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListInvocationsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.PageSize < 1 {
		params.PageSize = 1
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("tool"); v != "" {
		params.ToolName = &v
	}
	if v := q.Get("status"); v != "" {
		params.Status = &v
	}
	if v := q.Get("client_id"); v != "" {
		params.ClientID = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	rows, total, err := d.Reader.ListInvocations(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list invocations", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list invocations"})
		return
	}

	resp := InvocationListResp{
		Invocations: make([]InvocationResp, 0, len(rows)),
		Total:       total,
		Page:        params.Page,
		PageSize:    params.PageSize,
	}
	for _, e := range rows {
		resp.Invocations = append(resp.Invocations, invocationRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	row, err := d.Reader.GetInvocation(r.Context(), r.PathValue("request_id"))
	if err != nil {
		d.Logger.Error("failed to get invocation", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get invocation"})
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Invocation not found."})
		return
	}

	writeJSON(w, http.StatusOK, invocationRowToResp(*row))
}

func (d *Dependencies) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	stats, err := d.Reader.GetStats(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to get stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get stats"})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// queryInt reads an integer query parameter, falling back to def when it
// is absent or malformed.
func queryInt(q url.Values, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
