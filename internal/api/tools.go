package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/triage-ai/toolbox/internal/auth"
	"github.com/triage-ai/toolbox/internal/engine"
)

func (d *Dependencies) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BannerResp{
		Message: "toolbox server is running",
		Version: Version,
	})
}

func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Dispatcher.List())
}

func (d *Dependencies) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeReq
	if err := readJSON(r, &req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	meta := engine.Meta{
		RequestID: r.Header.Get("X-Request-Id"),
		Transport: "http",
	}
	if meta.RequestID == "" {
		meta.RequestID = uuid.New().String()
	}
	if c := auth.ClientFromContext(r.Context()); c != nil {
		meta.ClientID = c.ID
	}
	w.Header().Set("X-Request-Id", meta.RequestID)

	result, err := d.Dispatcher.Invoke(r.Context(), req.Name, req.Arguments, meta)
	if err != nil {
		f := engine.AsFault(err)
		writeJSON(w, f.HTTPStatus(), ErrorResp{Detail: f.Message})
		return
	}

	writeJSON(w, http.StatusOK, InvokeResp{Result: result})
}
