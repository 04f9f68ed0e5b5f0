package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"crm-timeentry/internal/domain"
	"crm-timeentry/internal/ports"
)

// Repository implements ports.Repository on the crm_time_entries table.
type Repository struct {
	db  *sql.DB
	log *slog.Logger
}

var _ ports.Repository = (*Repository)(nil)

// Open connects to MySQL using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	// Conservative pool defaults; can be adjusted via env later.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, log), nil
}

// New wraps an existing handle. The DSN behind it must set parseTime=true.
func New(db *sql.DB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}

const selectColumns = `SELECT id, entry_date, duration_hours, entry_type, work_location,
  project_id, project_task_id, description, billable, bookable_resource_id, owner_id,
  service_request_id, resource_category_id, additional_description, crm_record_id, submitted_at
FROM crm_time_entries`

// Save upserts rec keyed by the local entry ID.
func (r *Repository) Save(ctx context.Context, rec domain.Record) error {
	const q = `
INSERT INTO crm_time_entries
  (id, entry_date, duration_hours, entry_type, work_location, project_id, project_task_id,
   description, billable, bookable_resource_id, owner_id, service_request_id,
   resource_category_id, additional_description, crm_record_id, submitted_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  entry_date=VALUES(entry_date),
  duration_hours=VALUES(duration_hours),
  entry_type=VALUES(entry_type),
  work_location=VALUES(work_location),
  project_id=VALUES(project_id),
  project_task_id=VALUES(project_task_id),
  description=VALUES(description),
  billable=VALUES(billable),
  bookable_resource_id=VALUES(bookable_resource_id),
  owner_id=VALUES(owner_id),
  service_request_id=VALUES(service_request_id),
  resource_category_id=VALUES(resource_category_id),
  additional_description=VALUES(additional_description),
  crm_record_id=VALUES(crm_record_id),
  submitted_at=VALUES(submitted_at);
`
	e := rec.Entry
	serviceRequest, _ := e.ServiceRequestID()
	category, _ := e.ResourceCategoryID()
	additional, _ := e.AdditionalDescription()

	if _, err := r.db.ExecContext(ctx, q,
		string(e.ID()),
		e.Date().Format("2006-01-02"),
		e.Duration(),
		int(e.Type()),
		int(e.WorkLocation()),
		string(e.ProjectID()),
		string(e.ProjectTaskID()),
		e.Description(),
		e.Billable(),
		string(e.BookableResourceID()),
		string(e.OwnerID()),
		nullable(string(serviceRequest)),
		nullable(string(category)),
		nullable(additional),
		nullable(rec.CRMRecordID),
		rec.SubmittedAt.UTC(),
	); err != nil {
		return fmt.Errorf("mysql: saving entry %s: %w", e.ID(), err)
	}
	r.log.Debug("mysql repository saved entry", slog.String("id", string(e.ID())))
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id domain.TimeEntryID) (domain.Record, error) {
	recs, err := r.query(ctx, selectColumns+" WHERE id = ?", string(id))
	if err != nil {
		return domain.Record{}, err
	}
	if len(recs) == 0 {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	return recs[0], nil
}

// FindByDateRange returns records whose entry date lies in [from, to], oldest first.
func (r *Repository) FindByDateRange(ctx context.Context, from, to time.Time) ([]domain.Record, error) {
	return r.query(ctx, selectColumns+" WHERE entry_date BETWEEN ? AND ? ORDER BY entry_date, id",
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func (r *Repository) FindByProject(ctx context.Context, projectID domain.ProjectID) ([]domain.Record, error) {
	return r.query(ctx, selectColumns+" WHERE project_id = ? ORDER BY entry_date, id", string(projectID))
}

func (r *Repository) FindByOwner(ctx context.Context, ownerID domain.OwnerID) ([]domain.Record, error) {
	return r.query(ctx, selectColumns+" WHERE owner_id = ? ORDER BY entry_date, id", string(ownerID))
}

func (r *Repository) Delete(ctx context.Context, id domain.TimeEntryID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM crm_time_entries WHERE id = ?", string(id))
	return err
}

func (r *Repository) List(ctx context.Context) ([]domain.Record, error) {
	return r.query(ctx, selectColumns+" ORDER BY entry_date, id")
}

// Close closes the underlying DB.
func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			p                                         domain.TimeEntryParams
			id, project, task, resource, owner        string
			serviceRequest, category, additional, crm sql.NullString
			billable                                  bool
			submittedAt                               time.Time
		)
		if err := rows.Scan(&id, &p.Date, &p.Duration, &p.Type, &p.WorkLocation,
			&project, &task, &p.Description, &billable, &resource, &owner,
			&serviceRequest, &category, &additional, &crm, &submittedAt); err != nil {
			return nil, err
		}
		p.ID = domain.TimeEntryID(id)
		p.ProjectID = domain.ProjectID(project)
		p.ProjectTaskID = domain.ProjectTaskID(task)
		p.BookableResourceID = domain.BookableResourceID(resource)
		p.OwnerID = domain.OwnerID(owner)
		p.ServiceRequestID = domain.ServiceRequestID(serviceRequest.String)
		p.ResourceCategoryID = domain.ResourceCategoryID(category.String)
		p.AdditionalDescription = additional.String
		p.Billable = &billable

		// Rows were valid when submitted. The extra day absorbs the offset
		// between the entry's local date and the UTC submission time.
		e, err := domain.NewTimeEntry(p, submittedAt.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("mysql: corrupt entry %s: %w", id, err)
		}
		out = append(out, domain.Record{Entry: e, CRMRecordID: crm.String, SubmittedAt: submittedAt})
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
