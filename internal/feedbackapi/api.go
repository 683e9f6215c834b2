// Package feedbackapi exposes the feedback service over HTTP.
package feedbackapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/guard"
	"github.com/linnemanlabs/harken/internal/triage"
)

// FeedbackService defines the business operations feedbackapi needs.
type FeedbackService interface {
	Submit(ctx context.Context, sub triage.Submission) (*feedback.Record, error)
	Preview(ctx context.Context, sub triage.Submission) (triage.Classification, error)
	Get(ctx context.Context, id string) (*feedback.Record, error)
	List(ctx context.Context, f feedback.Filter) ([]*feedback.Record, error)
	Departments(ctx context.Context) ([]feedback.Department, error)
	UpdateStatus(ctx context.Context, id string, to triage.Status) (*feedback.Record, error)
}

// Options configures route protection.
type Options struct {
	// AdminToken guards the admin routes. Empty rejects every admin request.
	AdminToken string
	// IntakeLimiter rate limits the public intake routes when set.
	IntakeLimiter *guard.Limiter
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    FeedbackService
	opts   Options
}

// New creates a new API handler.
func New(logger log.Logger, svc FeedbackService, opts Options) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("feedback service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		opts:   opts,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/departments", a.handleDepartments)

		r.Group(func(r chi.Router) {
			if a.opts.IntakeLimiter != nil {
				r.Use(a.opts.IntakeLimiter.Middleware)
			}
			r.Post("/feedback", a.handleSubmit)
			r.Post("/triage", a.handlePreview)
		})

		r.Group(func(r chi.Router) {
			r.Use(guard.BearerToken(a.opts.AdminToken))
			r.Get("/feedback", a.handleList)
			r.Get("/feedback/export", a.handleExport)
			r.Get("/feedback/{id}", a.handleGet)
			r.Patch("/feedback/{id}/status", a.handleUpdateStatus)
		})
	})
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// nothing useful to do with a failed write to the client
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// writeServiceError maps service errors to HTTP statuses. Unexpected errors
// are logged and reported as 500 without detail.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var verr *feedback.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, triage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, feedback.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, feedback.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, feedback.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nobody is reading the response
		return
	default:
		a.logger.Error(r.Context(), err, msg)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
