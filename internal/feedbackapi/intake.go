package feedbackapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/triage"
)

// submitResponse acknowledges a stored submission without echoing contact
// details back.
type submitResponse struct {
	ID string `json:"id"`
	triage.Classification
	CreatedAt time.Time `json:"created_at"`
}

const maxMultipartMemory = 64 << 10

// decodeSubmission reads a submission from a JSON or form-encoded body.
func decodeSubmission(r *http.Request) (triage.Submission, error) {
	var sub triage.Submission
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if mt == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
				return sub, err
			}
		} else if err := r.ParseForm(); err != nil {
			return sub, err
		}
		sub = triage.Submission{
			ParentName:  r.PostFormValue("parent_name"),
			ParentEmail: r.PostFormValue("parent_email"),
			StudentID:   r.PostFormValue("student_id"),
			Channel:     r.PostFormValue("channel"),
			Message:     r.PostFormValue("message"),
		}
		return sub, nil
	default:
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		err := dec.Decode(&sub)
		return sub, err
	}
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := decodeSubmission(r)
	if err != nil {
		a.writeDecodeError(w, err)
		return
	}

	rec, err := a.svc.Submit(r.Context(), sub)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to submit feedback")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("harken.feedback.id", rec.ID),
		attribute.String("harken.feedback.priority", string(rec.Priority)),
	)

	w.Header().Set("Location", "/api/v1/feedback/"+rec.ID)
	writeJSON(w, http.StatusCreated, submitResponse{
		ID:             rec.ID,
		Classification: rec.Classification,
		CreatedAt:      rec.CreatedAt,
	})
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	sub, err := decodeSubmission(r)
	if err != nil {
		a.writeDecodeError(w, err)
		return
	}
	cls, err := a.svc.Preview(r.Context(), sub)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to preview triage")
		return
	}
	writeJSON(w, http.StatusOK, cls)
}

func (a *API) handleDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := a.svc.Departments(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err, "failed to list departments")
		return
	}
	if depts == nil {
		depts = []feedback.Department{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": depts})
}

func (a *API) writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid payload")
}
