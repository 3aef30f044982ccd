package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cognicore/tabsense/pkg/tabsense"
	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/session"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

type sessionResponse struct {
	Session session.Info `json:"session"`
	Table   *table.Table `json:"table,omitempty"`
}

type stageResponse struct {
	Session session.Info   `json:"session"`
	Report  *enrich.Report `json:"report"`
}

type selectRequest struct {
	Columns []string `json:"columns"`
}

type sentimentRequest struct {
	Column string `json:"column"`
	Mode   string `json:"mode"`
}

type tagsRequest struct {
	Column string   `json:"column"`
	Tags   []string `json:"tags"`
}

type summaryRequest struct {
	IDColumn string   `json:"id_column"`
	Tags     []string `json:"tags"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

// createSession accepts raw CSV or a multipart form with a "file" field.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.engine.Config().Server.MaxUploadBytes)

	body, name, err := uploadBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer body.Close()

	tbl, warnings, err := s.engine.Parse(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.sessions.Create(name, tbl, warnings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: info, Table: tbl.Head(s.previewRows())})
}

func uploadBody(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, "", nil
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: multipart upload needs a \"file\" field: %v", internalerr.ErrParse, err)
	}
	return file, header.Filename, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	limit := s.previewRows()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	tbl, info, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit > 0 {
		tbl = tbl.Head(limit)
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: info, Table: tbl})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectColumns(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	var out *table.Table
	info, err := s.sessions.Update(chi.URLParam(r, "id"), func(cur *table.Table) (*table.Table, error) {
		var err error
		out, err = s.engine.Select(cur, req.Columns...)
		return out, err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: info, Table: out.Head(s.previewRows())})
}

func (s *Server) sentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if !decode(w, r, &req) {
		return
	}
	mode, err := tabsense.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var report *enrich.Report
	info, err := s.sessions.Update(chi.URLParam(r, "id"), func(cur *table.Table) (*table.Table, error) {
		out, rep, err := s.engine.Sentiment(r.Context(), cur, req.Column, mode)
		report = rep
		return out, err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stageResponse{Session: info, Report: report})
}

func (s *Server) tags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if !decode(w, r, &req) {
		return
	}
	var report *enrich.Report
	info, err := s.sessions.Update(chi.URLParam(r, "id"), func(cur *table.Table) (*table.Table, error) {
		out, rep, err := s.engine.Tags(r.Context(), cur, req.Column, req.Tags)
		report = rep
		return out, err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stageResponse{Session: info, Report: report})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !decode(w, r, &req) {
		return
	}
	sum, ok := s.summarize(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !decode(w, r, &req) {
		return
	}
	sum, ok := s.summarize(w, r, req)
	if !ok {
		return
	}
	text, err := s.engine.Insights(r.Context(), sum.Table, req.IDColumn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"insights": text})
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request, req summaryRequest) (*tabsense.Summary, bool) {
	tbl, _, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	sum, err := s.engine.Summarize(tbl, req.IDColumn, req.Tags)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sum, true
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	tbl, info, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.engine.Export(tbl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": exportName(info)}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func exportName(info session.Info) string {
	base := strings.TrimSuffix(info.Name, ".csv")
	if base == "" {
		base = "tabsense-" + strings.ToLower(info.ID)
	}
	return base + "-enriched.csv"
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Store()
	if st == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	stats, err := st.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "entries": stats.Entries, "by_namespace": stats.ByNamespace})
}

func (s *Server) purgeCache(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Store()
	if st == nil {
		writeJSON(w, http.StatusOK, map[string]any{"purged": 0})
		return
	}
	n, err := st.Purge(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": n})
}

func (s *Server) previewRows() int {
	return s.engine.Config().Server.PreviewRows
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// statusFor maps pipeline errors to HTTP statuses. Precondition failures
// are the caller's fault; credentials and upstream models are not.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, internalerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internalerr.ErrMissingCredential):
		return http.StatusFailedDependency
	case errors.Is(err, internalerr.ErrParse),
		errors.Is(err, internalerr.ErrEmptySelection),
		errors.Is(err, internalerr.ErrUnknownColumn),
		errors.Is(err, internalerr.ErrDuplicateColumn),
		errors.Is(err, internalerr.ErrMissingIdentifier),
		errors.Is(err, internalerr.ErrMissingSentimentColumn),
		errors.Is(err, internalerr.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, internalerr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, internalerr.ErrRemoteService),
		errors.Is(err, internalerr.ErrResponseParse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorBody(err.Error()))
}
