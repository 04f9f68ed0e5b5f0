package ports

import (
	"context"
	"time"

	"crm-timeentry/internal/domain"
)

// Validator checks an entry before it is sent to the CRM.
type Validator interface {
	Validate(e *domain.TimeEntry) domain.ValidationResult
}

// CrmGateway is the authenticated path to the CRM Web API. None of its
// methods return errors: outcomes are reported in the returned values.
type CrmGateway interface {
	ValidateConnection(ctx context.Context) bool
	SubmitTimeEntry(ctx context.Context, e *domain.TimeEntry) domain.SubmissionResult
}

// LookupSource lists CRM records for the entry form's selection fields.
// Failures produce empty lists.
type LookupSource interface {
	ListProjects(ctx context.Context) []domain.LookupOption
	ListProjectTasks(ctx context.Context, projectID domain.ProjectID) []domain.LookupOption
	ListBookableResources(ctx context.Context) []domain.LookupOption
}

// Repository keeps local copies of entries the CRM accepted.
// FindByID returns domain.ErrRecordNotFound when the ID is unknown.
type Repository interface {
	Save(ctx context.Context, rec domain.Record) error
	FindByID(ctx context.Context, id domain.TimeEntryID) (domain.Record, error)
	FindByDateRange(ctx context.Context, from, to time.Time) ([]domain.Record, error)
	FindByProject(ctx context.Context, projectID domain.ProjectID) ([]domain.Record, error)
	FindByOwner(ctx context.Context, ownerID domain.OwnerID) ([]domain.Record, error)
	Delete(ctx context.Context, id domain.TimeEntryID) error
	List(ctx context.Context) ([]domain.Record, error)
}
