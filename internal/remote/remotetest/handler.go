// Package remotetest serves the content API over an in-process remote so the
// HTTP client can be tested against real requests.
package remotetest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
	"mirror-go/internal/remote"
)

// Handler exposes a mirror.Remote as the REST content API.
type Handler struct {
	remote mirror.Remote
	auth   string
	mux    *http.ServeMux
}

// NewHandler creates a Handler. When auth is non-empty, requests must carry
// it verbatim in the Authorization header.
func NewHandler(r mirror.Remote, auth string) *Handler {
	h := &Handler{remote: r, auth: auth, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /resources/{type}", h.list)
	h.mux.HandleFunc("POST /resources/{type}", h.create)
	h.mux.HandleFunc("GET /resources/{type}/{id}", h.get)
	h.mux.HandleFunc("PUT /resources/{type}/{id}", h.update)
	h.mux.HandleFunc("DELETE /resources/{type}/{id}", h.delete)
	h.mux.HandleFunc("GET /terms/{taxonomy}", h.listTerms)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.auth != "" && r.Header.Get("Authorization") != h.auth {
		writeError(w, http.StatusUnauthorized, "rest_not_logged_in", "authentication required")
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	pg, err := h.remote.List(r.Context(), r.PathValue("type"), page, perPage)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	w.Header().Set(remote.TotalPagesHeader, strconv.Itoa(pg.TotalPages))
	writeJSON(w, http.StatusOK, pg.Items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.remote.Get(r.Context(), r.PathValue("type"), id)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in model.RemoteResource
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "rest_invalid_json", err.Error())
		return
	}
	res, err := h.remote.Create(r.Context(), r.PathValue("type"), in)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in model.RemoteResource
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "rest_invalid_json", err.Error())
		return
	}
	res, err := h.remote.Update(r.Context(), r.PathValue("type"), id, in)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.remote.Delete(r.Context(), r.PathValue("type"), id); err != nil {
		writeRemoteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTerms(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	pg, err := h.remote.ListTerms(r.Context(), r.PathValue("taxonomy"), page, perPage)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	w.Header().Set(remote.TotalPagesHeader, strconv.Itoa(pg.TotalPages))
	writeJSON(w, http.StatusOK, pg.Items)
}

func pageParams(r *http.Request) (int, int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, perPage
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "rest_invalid_param", "invalid id")
		return 0, false
	}
	return id, true
}

func writeRemoteError(w http.ResponseWriter, err error) {
	var rErr *mirror.RemoteError
	if errors.As(err, &rErr) && rErr.StatusCode != 0 {
		writeError(w, rErr.StatusCode, rErr.Code, rErr.Detail)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
