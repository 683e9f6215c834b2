package feedbackapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/harken/internal/export"
	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/triage"
)

// parseFilter builds a list filter from query parameters. Unknown enum
// values are rejected rather than silently matching nothing.
func parseFilter(q url.Values) (feedback.Filter, error) {
	var f feedback.Filter
	var err error

	f.Department = q.Get("department")
	if v := q.Get("sentiment"); v != "" {
		if f.Sentiment, err = triage.ParseSentiment(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("status"); v != "" {
		if f.Status, err = triage.ParseStatus(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("category"); v != "" {
		if f.Category, err = triage.ParseCategory(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("priority"); v != "" {
		if f.Priority, err = triage.ParsePriority(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("min_priority"); v != "" {
		if f.MinPriority, err = triage.ParsePriority(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("before"); v != "" {
		if f.CreatedBefore, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fmt.Errorf("invalid before %q: want RFC 3339 timestamp", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
	}
	return f, nil
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to list feedback")
		return
	}
	if recs == nil {
		recs = []*feedback.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": recs,
		"count":    len(recs),
	})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("harken.feedback.id", id))

	rec, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to get feedback")
		return
	}

	span.SetAttributes(attribute.String("harken.feedback.status", string(rec.Status)))
	writeJSON(w, http.StatusOK, rec)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeDecodeError(w, err)
		return
	}
	to, err := triage.ParseStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: "status"})
		return
	}

	rec, err := a.svc.UpdateStatus(r.Context(), id, to)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to update feedback status")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := parseFilter(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Limit == 0 {
		f.Limit = feedback.MaxListLimit
	}

	recs, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to list feedback for export")
		return
	}

	// render fully before writing so a failure can still produce a 500
	var buf bytes.Buffer
	if err := export.Write(&buf, format, recs); err != nil {
		a.writeServiceError(w, r, err, "failed to render export")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
