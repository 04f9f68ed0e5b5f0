package app

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"crm-timeentry/internal/adapter/crm"
	"crm-timeentry/internal/adapter/memory"
	msql "crm-timeentry/internal/adapter/mysql"
	"crm-timeentry/internal/config"
	"crm-timeentry/internal/domain"
	"crm-timeentry/internal/ids"
	"crm-timeentry/internal/migrate"
	"crm-timeentry/internal/ports"
	"crm-timeentry/internal/usecase"
	"crm-timeentry/internal/validation"
)

// App wires adapters and use cases.
type App struct {
	log      *slog.Logger
	cfg      config.Config
	uc       *usecase.TimeEntryUseCase
	lookups  ports.LookupSource
	registry *prometheus.Registry
	closer   io.Closer
}

func New(ctx context.Context, log *slog.Logger, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := crm.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	crmClient := crm.NewClient(crm.Config{
		BaseURL:      cfg.CRM.BaseURL,
		ClientID:     cfg.CRM.ClientID,
		ClientSecret: cfg.CRM.ClientSecret,
		TenantID:     cfg.CRM.TenantID,
		Resource:     cfg.CRM.Resource,
		AuthorityURL: cfg.CRM.AuthorityURL,
		Timeout:      cfg.CRM.Timeout,
	}, log, metrics)

	validator := validation.NewService(validationOptions(cfg), time.Now, log)

	repo, closer, err := openRepository(ctx, log, cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}

	uc := &usecase.TimeEntryUseCase{
		Log:       log,
		Validator: validator,
		CRM:       crmClient,
		Repo:      repo,
		NewID:     ids.NewTimeEntryID,
		Now:       time.Now,
		Location:  loc,
	}

	return &App{log: log, cfg: cfg, uc: uc, lookups: crmClient, registry: registry, closer: closer}, nil
}

func validationOptions(cfg config.Config) validation.Options {
	return validation.Options{
		MaxDailyHours:        cfg.Validation.MaxDailyHours,
		MaxPastDays:          cfg.Validation.MaxPastDays,
		MinDescriptionLength: cfg.Validation.MinDescriptionLength,
		WeekendWarning:       cfg.Validation.WeekendWarning,
		Rules:                []validation.Rule{validation.MaxDailyHours(cfg.Validation.MaxDailyHours)},
	}
}

// openRepository keeps records in memory unless a MySQL DSN is configured.
func openRepository(ctx context.Context, log *slog.Logger, dsn string) (ports.Repository, io.Closer, error) {
	if dsn == "" {
		log.Info("no MYSQL_DSN set, keeping submitted entries in memory")
		return memory.NewRepository(), nil, nil
	}
	// Run migrations before opening the repository for use
	if err := migrate.Run(ctx, dsn, log); err != nil {
		return nil, nil, err
	}
	repo, err := msql.Open(ctx, dsn, log)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo, nil
}

// Close releases the repository connection, if any.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// WithDefaults fills the type and work location from the UI defaults when
// the caller left them blank.
func (a *App) WithDefaults(raw usecase.RawTimeEntry) usecase.RawTimeEntry {
	if raw.Type == "" {
		raw.Type = usecase.OptionValue(strconv.Itoa(a.cfg.UI.DefaultEntryType))
	}
	if raw.WorkLocation == "" {
		raw.WorkLocation = usecase.OptionValue(strconv.Itoa(a.cfg.UI.DefaultWorkLocation))
	}
	return raw
}

// Submit builds, validates and submits one entry.
func (a *App) Submit(ctx context.Context, raw usecase.RawTimeEntry) domain.SubmissionResult {
	return a.uc.CreateAndSubmit(ctx, a.WithDefaults(raw))
}

// Check builds and validates one entry without sending it.
func (a *App) Check(raw usecase.RawTimeEntry) domain.ValidationResult {
	return a.uc.Check(a.WithDefaults(raw))
}

func (a *App) Entry(ctx context.Context, id domain.TimeEntryID) (domain.Record, error) {
	return a.uc.Lookup(ctx, id)
}

func (a *App) Entries(ctx context.Context, q usecase.HistoryQuery) ([]domain.Record, error) {
	return a.uc.History(ctx, q)
}

// RemoveEntry deletes a local record; the CRM copy stays.
func (a *App) RemoveEntry(ctx context.Context, id domain.TimeEntryID) error {
	return a.uc.Remove(ctx, id)
}

// Today is the current calendar day in ENTRY_TZ.
func (a *App) Today() time.Time {
	return domain.CalendarDay(time.Now().In(a.location()))
}

func (a *App) location() *time.Location {
	if a.uc.Location != nil {
		return a.uc.Location
	}
	return time.Local
}

func (a *App) Projects(ctx context.Context) []domain.LookupOption {
	return a.lookups.ListProjects(ctx)
}

func (a *App) ProjectTasks(ctx context.Context, projectID domain.ProjectID) []domain.LookupOption {
	return a.lookups.ListProjectTasks(ctx, projectID)
}

func (a *App) Resources(ctx context.Context) []domain.LookupOption {
	return a.lookups.ListBookableResources(ctx)
}

// Connected reports whether the CRM answers an authenticated WhoAmI call.
func (a *App) Connected(ctx context.Context) bool {
	return a.uc.CRM.ValidateConnection(ctx)
}
