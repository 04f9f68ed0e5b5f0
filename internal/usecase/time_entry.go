package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crm-timeentry/internal/domain"
	"crm-timeentry/internal/ports"
)

// MsgConnectionFailed is returned when the CRM connectivity check fails.
const MsgConnectionFailed = "could not connect to the CRM"

// OptionValue is an option-set field as entered on the form: either a name
// ("work", "home") or the numeric CRM value. JSON numbers are accepted too.
type OptionValue string

func (v *OptionValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = OptionValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("option value must be a name or a number: %w", err)
	}
	*v = OptionValue(n.String())
	return nil
}

// RawTimeEntry is the loosely typed field data collected from a form or the CLI.
type RawTimeEntry struct {
	Date                  string      `json:"date" validate:"required,datetime=2006-01-02"`
	Duration              float64     `json:"duration" validate:"gte=0,lte=24"`
	Type                  OptionValue `json:"type"`
	WorkLocation          OptionValue `json:"workLocation"`
	ProjectID             string      `json:"projectId"`
	ProjectTaskID         string      `json:"projectTaskId"`
	Description           string      `json:"description" validate:"max=2000"`
	Billable              *bool       `json:"billable"`
	BookableResourceID    string      `json:"bookableResourceId"`
	OwnerID               string      `json:"ownerId"`
	ServiceRequestID      string      `json:"serviceRequestId,omitempty"`
	ResourceCategoryID    string      `json:"resourceCategoryId,omitempty"`
	AdditionalDescription string      `json:"additionalDescription,omitempty" validate:"max=4000"`
}

// TimeEntryUseCase builds entries from raw input, validates them and submits
// them to the CRM, keeping a local copy of every accepted entry.
type TimeEntryUseCase struct {
	Log       *slog.Logger
	Validator ports.Validator
	CRM       ports.CrmGateway
	Repo      ports.Repository
	NewID     func() domain.TimeEntryID
	Now       func() time.Time
	// Location is used to interpret raw calendar dates. Defaults to time.Local.
	Location *time.Location
}

func (uc *TimeEntryUseCase) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}

// CreateTimeEntry converts raw field data into a TimeEntry. Errors raised by
// the entity's constructor are returned unchanged.
func (uc *TimeEntryUseCase) CreateTimeEntry(raw RawTimeEntry) (*domain.TimeEntry, error) {
	if uc.NewID == nil {
		return nil, errors.New("usecase not initialized: missing ID generator")
	}
	loc := uc.Location
	if loc == nil {
		loc = time.Local
	}

	var date time.Time
	if s := strings.TrimSpace(raw.Date); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return nil, fmt.Errorf("date: invalid calendar date %q", raw.Date)
		}
		date = d
	}

	var (
		entryType domain.TimeEntryType
		location  domain.WorkLocation
		err       error
	)
	if raw.Type != "" {
		if entryType, err = domain.ParseTimeEntryType(string(raw.Type)); err != nil {
			return nil, fmt.Errorf("type: %w", err)
		}
	}
	if raw.WorkLocation != "" {
		if location, err = domain.ParseWorkLocation(string(raw.WorkLocation)); err != nil {
			return nil, fmt.Errorf("workLocation: %w", err)
		}
	}

	return domain.NewTimeEntry(domain.TimeEntryParams{
		ID:                    uc.NewID(),
		Date:                  date,
		Duration:              raw.Duration,
		Type:                  entryType,
		WorkLocation:          location,
		ProjectID:             domain.ProjectID(strings.TrimSpace(raw.ProjectID)),
		ProjectTaskID:         domain.ProjectTaskID(strings.TrimSpace(raw.ProjectTaskID)),
		Description:           raw.Description,
		Billable:              raw.Billable,
		BookableResourceID:    domain.BookableResourceID(strings.TrimSpace(raw.BookableResourceID)),
		OwnerID:               domain.OwnerID(strings.TrimSpace(raw.OwnerID)),
		ServiceRequestID:      domain.ServiceRequestID(strings.TrimSpace(raw.ServiceRequestID)),
		ResourceCategoryID:    domain.ResourceCategoryID(strings.TrimSpace(raw.ResourceCategoryID)),
		AdditionalDescription: raw.AdditionalDescription,
	}, uc.now())
}

// Submit validates e, checks the CRM is reachable, submits e and stores the
// accepted entry locally. It never panics; every outcome is a result value.
func (uc *TimeEntryUseCase) Submit(ctx context.Context, e *domain.TimeEntry) (res domain.SubmissionResult) {
	defer func() {
		if r := recover(); r != nil {
			uc.Log.Error("time entry submission panicked", slog.Any("panic", r))
			res = domain.Failed(domain.FailureUnexpected, fmt.Sprintf("unexpected error: %v", r), fmt.Sprint(r))
		}
	}()
	if uc.Validator == nil || uc.CRM == nil || uc.Repo == nil {
		return domain.Failed(domain.FailureUnexpected, "unexpected error: usecase not initialized", nil)
	}
	if e == nil {
		return domain.Failed(domain.FailureInvalidInput, "no time entry to submit", nil)
	}

	vr := uc.Validator.Validate(e)
	if !vr.Valid {
		uc.Log.Info("time entry rejected by validation", slog.String("entry", string(e.ID())), slog.Int("errors", len(vr.Errors)))
		res = domain.Failed(domain.FailureValidation, "validation failed: "+strings.Join(vr.Errors, ", "), vr.Errors)
		res.Warnings = vr.Warnings
		return res
	}

	if !uc.CRM.ValidateConnection(ctx) {
		uc.Log.Warn("crm connectivity check failed", slog.String("entry", string(e.ID())))
		return domain.Failed(domain.FailureConnectivity, MsgConnectionFailed, nil)
	}

	res = uc.CRM.SubmitTimeEntry(ctx, e)
	if !res.Success {
		return res
	}
	res.Warnings = append(res.Warnings, vr.Warnings...)
	res.WorkItemNote = "CRM time entry created. Record ID: " + res.RecordID

	rec := domain.Record{Entry: e, CRMRecordID: res.RecordID, SubmittedAt: uc.now().UTC()}
	if err := uc.Repo.Save(ctx, rec); err != nil {
		uc.Log.Error("local save failed after crm accepted entry",
			slog.String("entry", string(e.ID())),
			slog.String("record", res.RecordID),
			slog.String("error", err.Error()),
		)
		res.Warnings = append(res.Warnings, "entry saved to CRM but local record could not be stored: "+err.Error())
		return res
	}
	uc.Log.Info("time entry submitted", slog.String("entry", string(e.ID())), slog.String("record", res.RecordID))
	return res
}

// CreateAndSubmit runs CreateTimeEntry then Submit. Construction errors are
// reported as invalid input.
func (uc *TimeEntryUseCase) CreateAndSubmit(ctx context.Context, raw RawTimeEntry) domain.SubmissionResult {
	e, err := uc.CreateTimeEntry(raw)
	if err != nil {
		return domain.Failed(domain.FailureInvalidInput, err.Error(), nil)
	}
	return uc.Submit(ctx, e)
}

// Check builds and validates an entry without contacting the CRM.
func (uc *TimeEntryUseCase) Check(raw RawTimeEntry) domain.ValidationResult {
	e, err := uc.CreateTimeEntry(raw)
	if err != nil {
		return domain.NewValidationResult([]string{err.Error()}, nil)
	}
	return uc.Validator.Validate(e)
}

// Lookup loads a stored record.
func (uc *TimeEntryUseCase) Lookup(ctx context.Context, id domain.TimeEntryID) (domain.Record, error) {
	return uc.Repo.FindByID(ctx, id)
}

// HistoryQuery selects stored records. From and To bound the entry date
// inclusively; ProjectID and OwnerID narrow the result when set.
type HistoryQuery struct {
	From, To  time.Time
	ProjectID domain.ProjectID
	OwnerID   domain.OwnerID
}

// History returns stored records matching q, oldest first.
func (uc *TimeEntryUseCase) History(ctx context.Context, q HistoryQuery) ([]domain.Record, error) {
	if q.To.Before(q.From) {
		return nil, fmt.Errorf("invalid range: to (%s) is before from (%s)", q.To.Format("2006-01-02"), q.From.Format("2006-01-02"))
	}

	var (
		recs []domain.Record
		err  error
	)
	switch {
	case q.ProjectID != "":
		recs, err = uc.Repo.FindByProject(ctx, q.ProjectID)
	case q.OwnerID != "":
		recs, err = uc.Repo.FindByOwner(ctx, q.OwnerID)
	default:
		return uc.Repo.FindByDateRange(ctx, q.From, q.To)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.Record, 0, len(recs))
	for _, rec := range recs {
		e := rec.Entry
		if !domain.WithinDays(e.Date(), q.From, q.To) {
			continue
		}
		if q.OwnerID != "" && e.OwnerID() != q.OwnerID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Remove deletes a stored record. It returns domain.ErrRecordNotFound for
// unknown IDs. The CRM record is left untouched.
func (uc *TimeEntryUseCase) Remove(ctx context.Context, id domain.TimeEntryID) error {
	if _, err := uc.Repo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := uc.Repo.Delete(ctx, id); err != nil {
		return err
	}
	uc.Log.Info("local time entry removed", slog.String("entry", string(id)))
	return nil
}
