package domain

import (
	"strings"
	"time"
)

// Text bounds enforced when a TimeEntry is constructed.
const (
	MinDescriptionLength           = 3
	MaxAdditionalDescriptionLength = 2000
)

// Identifier types. Each wraps the CRM-native GUID of the referenced record;
// TimeEntryID is generated locally.
type (
	TimeEntryID        string
	ProjectID          string
	ProjectTaskID      string
	BookableResourceID string
	OwnerID            string
	ServiceRequestID   string
	ResourceCategoryID string
)

// TimeEntryParams carries the raw values a TimeEntry is built from.
// Billable is a pointer so that "not provided" can be told apart from false.
type TimeEntryParams struct {
	ID                    TimeEntryID
	Date                  time.Time
	Duration              float64 // hours
	Type                  TimeEntryType
	WorkLocation          WorkLocation
	ProjectID             ProjectID
	ProjectTaskID         ProjectTaskID
	Description           string
	Billable              *bool
	BookableResourceID    BookableResourceID
	OwnerID               OwnerID
	ServiceRequestID      ServiceRequestID
	ResourceCategoryID    ResourceCategoryID
	AdditionalDescription string
}

// TimeEntry is a validated, immutable time entry ready to be sent to the CRM.
type TimeEntry struct {
	id                    TimeEntryID
	date                  time.Time
	duration              float64
	entryType             TimeEntryType
	workLocation          WorkLocation
	projectID             ProjectID
	projectTaskID         ProjectTaskID
	description           string
	billable              bool
	bookableResourceID    BookableResourceID
	ownerID               OwnerID
	serviceRequestID      ServiceRequestID
	resourceCategoryID    ResourceCategoryID
	additionalDescription string
}

// NewTimeEntry builds a TimeEntry and enforces its structural invariants.
// The date is truncated to a calendar day in its own location and may not be
// later than the end of the current day as observed by now.
func NewTimeEntry(p TimeEntryParams, now time.Time) (*TimeEntry, error) {
	if err := checkRequired(p); err != nil {
		return nil, err
	}

	day := CalendarDay(p.Date)
	if day.After(CalendarDay(now.In(p.Date.Location()))) {
		return nil, newFieldError("date", ErrFutureDate)
	}
	if p.Duration <= 0 {
		return nil, newFieldError("duration", ErrNonPositiveDuration)
	}
	if len([]rune(strings.TrimSpace(p.Description))) < MinDescriptionLength {
		return nil, newFieldError("description", ErrDescriptionTooShort)
	}
	if len([]rune(p.AdditionalDescription)) > MaxAdditionalDescriptionLength {
		return nil, newFieldError("additionalDescription", ErrAdditionalDescriptionTooLong)
	}

	return &TimeEntry{
		id:                    p.ID,
		date:                  day,
		duration:              p.Duration,
		entryType:             p.Type,
		workLocation:          p.WorkLocation,
		projectID:             p.ProjectID,
		projectTaskID:         p.ProjectTaskID,
		description:           p.Description,
		billable:              *p.Billable,
		bookableResourceID:    p.BookableResourceID,
		ownerID:               p.OwnerID,
		serviceRequestID:      p.ServiceRequestID,
		resourceCategoryID:    p.ResourceCategoryID,
		additionalDescription: p.AdditionalDescription,
	}, nil
}

func checkRequired(p TimeEntryParams) error {
	switch {
	case p.ID == "":
		return newFieldError("id", ErrRequired)
	case p.Date.IsZero():
		return newFieldError("date", ErrRequired)
	case p.Duration == 0:
		return newFieldError("duration", ErrRequired)
	case p.Type == 0:
		return newFieldError("type", ErrRequired)
	case p.WorkLocation == 0:
		return newFieldError("workLocation", ErrRequired)
	case strings.TrimSpace(string(p.ProjectID)) == "":
		return newFieldError("projectId", ErrRequired)
	case strings.TrimSpace(string(p.ProjectTaskID)) == "":
		return newFieldError("projectTaskId", ErrRequired)
	case strings.TrimSpace(p.Description) == "":
		return newFieldError("description", ErrRequired)
	case p.Billable == nil:
		return newFieldError("billable", ErrRequired)
	case strings.TrimSpace(string(p.BookableResourceID)) == "":
		return newFieldError("bookableResourceId", ErrRequired)
	case strings.TrimSpace(string(p.OwnerID)) == "":
		return newFieldError("ownerId", ErrRequired)
	}
	return nil
}

// CalendarDay returns midnight of t's day in t's location.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WithinDays reports whether d's calendar day lies in [from, to]. Each value
// is read in its own location, so midnights from different zones compare by
// the date they name.
func WithinDays(d, from, to time.Time) bool {
	k := dayKey(d)
	return k >= dayKey(from) && k <= dayKey(to)
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func (e *TimeEntry) ID() TimeEntryID                        { return e.id }
func (e *TimeEntry) Date() time.Time                        { return e.date }
func (e *TimeEntry) Duration() float64                      { return e.duration }
func (e *TimeEntry) Type() TimeEntryType                    { return e.entryType }
func (e *TimeEntry) WorkLocation() WorkLocation             { return e.workLocation }
func (e *TimeEntry) ProjectID() ProjectID                   { return e.projectID }
func (e *TimeEntry) ProjectTaskID() ProjectTaskID           { return e.projectTaskID }
func (e *TimeEntry) Description() string                    { return e.description }
func (e *TimeEntry) Billable() bool                         { return e.billable }
func (e *TimeEntry) BookableResourceID() BookableResourceID { return e.bookableResourceID }
func (e *TimeEntry) OwnerID() OwnerID                       { return e.ownerID }

// ServiceRequestID reports the optional service request reference.
func (e *TimeEntry) ServiceRequestID() (ServiceRequestID, bool) {
	return e.serviceRequestID, e.serviceRequestID != ""
}

// ResourceCategoryID reports the optional resource category reference.
func (e *TimeEntry) ResourceCategoryID() (ResourceCategoryID, bool) {
	return e.resourceCategoryID, e.resourceCategoryID != ""
}

// AdditionalDescription reports the optional free-text addendum.
func (e *TimeEntry) AdditionalDescription() (string, bool) {
	return e.additionalDescription, e.additionalDescription != ""
}

// Params returns the values the entry was built from. Rebuilding an entry
// from them with NewTimeEntry yields an equal entry.
func (e *TimeEntry) Params() TimeEntryParams {
	billable := e.billable
	return TimeEntryParams{
		ID:                    e.id,
		Date:                  e.date,
		Duration:              e.duration,
		Type:                  e.entryType,
		WorkLocation:          e.workLocation,
		ProjectID:             e.projectID,
		ProjectTaskID:         e.projectTaskID,
		Description:           e.description,
		Billable:              &billable,
		BookableResourceID:    e.bookableResourceID,
		OwnerID:               e.ownerID,
		ServiceRequestID:      e.serviceRequestID,
		ResourceCategoryID:    e.resourceCategoryID,
		AdditionalDescription: e.additionalDescription,
	}
}
