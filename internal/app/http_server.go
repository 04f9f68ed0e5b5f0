package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crm-timeentry/internal/domain"
	"crm-timeentry/internal/usecase"
)

const (
	maxRequestBody = 64 << 10
	// historyDays is the default span of GET /time-entries.
	historyDays = 30
)

// HTTPServer returns a configured http.Server exposing the entry form API.
// Call ListenAndServe on the returned server in a goroutine and Shutdown it on exit.
func (a *App) HTTPServer() *http.Server {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.log.Info("http server configured", slog.String("addr", a.cfg.HTTP.Addr))
	return srv
}

// Router builds the HTTP routes.
func (a *App) Router() http.Handler {
	h := &handler{app: a, validate: validator.New()}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.RequestID, middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return loggingMiddleware(a.log, next) })

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Get("/config/ui", h.uiConfig)

	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(a.cfg.HTTP.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": http.StatusText(http.StatusTooManyRequests)})
			}),
		))
		gr.Post("/time-entries", h.submit)
		gr.Post("/time-entries/validate", h.check)
		gr.Get("/time-entries", h.list)
		gr.Get("/time-entries/{id}", h.get)
		gr.Delete("/time-entries/{id}", h.remove)
		gr.Get("/lookups/projects", h.projects)
		gr.Get("/lookups/projects/{projectID}/tasks", h.tasks)
		gr.Get("/lookups/resources", h.resources)
	})
	return r
}

type handler struct {
	app      *App
	validate *validator.Validate
}

type uiConfigResponse struct {
	DefaultEntryType    int       `json:"defaultEntryType"`
	DefaultWorkLocation int       `json:"defaultWorkLocation"`
	RealtimeValidation  bool      `json:"realtimeValidation"`
	DurationOptions     []float64 `json:"durationOptions"`
}

func (h *handler) uiConfig(w http.ResponseWriter, r *http.Request) {
	ui := h.app.cfg.UI
	writeJSON(w, http.StatusOK, uiConfigResponse{
		DefaultEntryType:    ui.DefaultEntryType,
		DefaultWorkLocation: ui.DefaultWorkLocation,
		RealtimeValidation:  ui.RealtimeValidation,
		DurationOptions:     domain.DurationOptions,
	})
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	raw, err := h.decode(w, r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, domain.Failed(domain.FailureInvalidInput, err.Error(), nil))
		return
	}
	res := h.app.Submit(r.Context(), raw)
	writeJSON(w, statusFor(res), jsonSafe(res))
}

func (h *handler) check(w http.ResponseWriter, r *http.Request) {
	if !h.app.cfg.UI.RealtimeValidation {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "real-time validation is disabled"})
		return
	}
	raw, err := h.decode(w, r)
	if err != nil {
		writeJSON(w, http.StatusOK, domain.NewValidationResult([]string{err.Error()}, nil))
		return
	}
	writeJSON(w, http.StatusOK, h.app.Check(raw))
}

// list serves /time-entries?from=...&to=...&project=...&owner=...
// from/to accept RFC3339 or YYYY-MM-DD. If omitted, defaults to the last 30 days.
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to, err := parseDayHTTP(q.Get("to"), h.app.Today())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to: " + err.Error()})
		return
	}
	from, err := parseDayHTTP(q.Get("from"), to.AddDate(0, 0, -historyDays))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from: " + err.Error()})
		return
	}

	recs, err := h.app.Entries(r.Context(), usecase.HistoryQuery{
		From:      from,
		To:        to,
		ProjectID: domain.ProjectID(q.Get("project")),
		OwnerID:   domain.OwnerID(q.Get("owner")),
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"entries": out,
	})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Entry(r.Context(), domain.TimeEntryID(chi.URLParam(r, "id")))
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "time entry not found"})
	case err != nil:
		h.app.log.Error("loading time entry failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
	default:
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	err := h.app.RemoveEntry(r.Context(), domain.TimeEntryID(chi.URLParam(r, "id")))
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "time entry not found"})
	case err != nil:
		h.app.log.Error("removing time entry failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handler) projects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Projects(r.Context()))
}

func (h *handler) tasks(w http.ResponseWriter, r *http.Request) {
	projectID := domain.ProjectID(chi.URLParam(r, "projectID"))
	writeJSON(w, http.StatusOK, h.app.ProjectTasks(r.Context(), projectID))
}

func (h *handler) resources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Resources(r.Context()))
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request) (usecase.RawTimeEntry, error) {
	var raw usecase.RawTimeEntry
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return raw, fmt.Errorf("invalid request body: %w", err)
	}
	if err := h.validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s check", jsonName(fe.Field()), fe.Tag()))
			}
			return raw, errors.New(strings.Join(msgs, ", "))
		}
		return raw, err
	}
	return raw, nil
}

// jsonName lower-cases the first letter of a Go field name.
func jsonName(field string) string {
	if field == "" {
		return field
	}
	if strings.HasSuffix(field, "ID") {
		field = strings.TrimSuffix(field, "ID") + "Id"
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// statusFor maps a submission outcome to an HTTP status.
func statusFor(res domain.SubmissionResult) int {
	if res.Success {
		return http.StatusCreated
	}
	switch res.Category {
	case domain.FailureInvalidInput, domain.FailureValidation:
		return http.StatusUnprocessableEntity
	case domain.FailureConnectivity, domain.FailureRemoteRejection:
		return http.StatusBadGateway
	case domain.FailureAuthorization:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// jsonSafe replaces details that cannot be encoded (panic values, errors)
// with their text.
func jsonSafe(res domain.SubmissionResult) domain.SubmissionResult {
	switch d := res.Details.(type) {
	case nil, string, []string, json.RawMessage:
	case error:
		res.Details = d.Error()
	default:
		if _, err := json.Marshal(d); err != nil {
			res.Details = fmt.Sprint(d)
		}
	}
	return res
}

type recordResponse struct {
	ID                    domain.TimeEntryID `json:"id"`
	Date                  string             `json:"date"`
	Duration              float64            `json:"duration"`
	Type                  string             `json:"type"`
	WorkLocation          string             `json:"workLocation"`
	ProjectID             string             `json:"projectId"`
	ProjectTaskID         string             `json:"projectTaskId"`
	Description           string             `json:"description"`
	Billable              bool               `json:"billable"`
	BookableResourceID    string             `json:"bookableResourceId"`
	OwnerID               string             `json:"ownerId"`
	ServiceRequestID      string             `json:"serviceRequestId,omitempty"`
	ResourceCategoryID    string             `json:"resourceCategoryId,omitempty"`
	AdditionalDescription string             `json:"additionalDescription,omitempty"`
	CRMRecordID           string             `json:"crmRecordId"`
	SubmittedAt           time.Time          `json:"submittedAt"`
}

func toRecordResponse(rec domain.Record) recordResponse {
	e := rec.Entry
	sr, _ := e.ServiceRequestID()
	rc, _ := e.ResourceCategoryID()
	add, _ := e.AdditionalDescription()
	return recordResponse{
		ID:                    e.ID(),
		Date:                  e.Date().Format("2006-01-02"),
		Duration:              e.Duration(),
		Type:                  e.Type().String(),
		WorkLocation:          e.WorkLocation().String(),
		ProjectID:             string(e.ProjectID()),
		ProjectTaskID:         string(e.ProjectTaskID()),
		Description:           e.Description(),
		Billable:              e.Billable(),
		BookableResourceID:    string(e.BookableResourceID()),
		OwnerID:               string(e.OwnerID()),
		ServiceRequestID:      string(sr),
		ResourceCategoryID:    string(rc),
		AdditionalDescription: add,
		CRMRecordID:           rec.CRMRecordID,
		SubmittedAt:           rec.SubmittedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", ww.Status()),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

// parseDayHTTP parses a boundary that may be RFC3339 or YYYY-MM-DD and
// returns the calendar day it names. If empty, defaultVal's day is returned.
func parseDayHTTP(val string, defaultVal time.Time) (time.Time, error) {
	if val == "" {
		return domain.CalendarDay(defaultVal), nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return domain.CalendarDay(t), nil
	}
	if d, err := time.Parse("2006-01-02", val); err == nil {
		return d, nil
	}
	return time.Time{}, errors.New("expected RFC3339 or YYYY-MM-DD")
}
