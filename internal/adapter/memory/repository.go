package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"crm-timeentry/internal/domain"
	"crm-timeentry/internal/ports"
)

// Repository keeps submitted entries in a map for in-session lookup.
type Repository struct {
	mu      sync.RWMutex
	records map[domain.TimeEntryID]domain.Record
}

var _ ports.Repository = (*Repository)(nil)

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{records: make(map[domain.TimeEntryID]domain.Record)}
}

// Save stores rec, replacing any record with the same entry ID.
func (r *Repository) Save(_ context.Context, rec domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Entry.ID()] = rec
	return nil
}

func (r *Repository) FindByID(_ context.Context, id domain.TimeEntryID) (domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

// FindByDateRange returns records whose entry date lies in [from, to], oldest
// first. Dates compare as calendar days, like the entry_date column.
func (r *Repository) FindByDateRange(_ context.Context, from, to time.Time) ([]domain.Record, error) {
	return r.filter(func(rec domain.Record) bool {
		return domain.WithinDays(rec.Entry.Date(), from, to)
	}), nil
}

func (r *Repository) FindByProject(_ context.Context, projectID domain.ProjectID) ([]domain.Record, error) {
	return r.filter(func(rec domain.Record) bool { return rec.Entry.ProjectID() == projectID }), nil
}

func (r *Repository) FindByOwner(_ context.Context, ownerID domain.OwnerID) ([]domain.Record, error) {
	return r.filter(func(rec domain.Record) bool { return rec.Entry.OwnerID() == ownerID }), nil
}

func (r *Repository) Delete(_ context.Context, id domain.TimeEntryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *Repository) List(_ context.Context) ([]domain.Record, error) {
	return r.filter(func(domain.Record) bool { return true }), nil
}

// Clear removes every record.
func (r *Repository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[domain.TimeEntryID]domain.Record)
}

// filter returns matching records ordered by entry date, then entry ID.
func (r *Repository) filter(keep func(domain.Record) bool) []domain.Record {
	r.mu.RLock()
	out := make([]domain.Record, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Entry.Date(), out[j].Entry.Date()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].Entry.ID() < out[j].Entry.ID()
	})
	return out
}
