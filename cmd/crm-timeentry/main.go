package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"crm-timeentry/internal/app"
	"crm-timeentry/internal/config"
	"crm-timeentry/internal/domain"
	"crm-timeentry/internal/migrate"
	"crm-timeentry/internal/usecase"
)

var (
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crm-timeentry",
	Short: "Submit time entries to Dynamics 365 Project Operations",
	Long: `crm-timeentry builds, validates and submits msdyn_timeentry records to a
Dataverse organisation, keeping a local copy of every accepted entry.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Logger
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the entry form API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := a.HTTPServer()
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var entry entryFlags

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Validate and submit one time entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.Submit(cmd.Context(), entry.raw(cmd, a.Today()))
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("submission failed: %s", res.ErrorMessage)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one time entry without submitting it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		vr := a.Check(entry.raw(cmd, a.Today()))
		if err := printJSON(vr); err != nil {
			return err
		}
		if !vr.Valid {
			return errors.New("entry is not valid")
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify CRM credentials with a WhoAmI call",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.Connected(cmd.Context()) {
			return errors.New("could not connect to the CRM")
		}
		fmt.Println("ok")
		return nil
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List active projects",
	RunE: lookupCommand(func(ctx context.Context, a *app.App, _ []string) []domain.LookupOption {
		return a.Projects(ctx)
	}),
}

var tasksCmd = &cobra.Command{
	Use:   "tasks <projectID>",
	Short: "List the tasks of a project",
	Args:  cobra.ExactArgs(1),
	RunE: lookupCommand(func(ctx context.Context, a *app.App, args []string) []domain.LookupOption {
		return a.ProjectTasks(ctx, domain.ProjectID(args[0]))
	}),
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List active bookable resources",
	RunE: lookupCommand(func(ctx context.Context, a *app.App, _ []string) []domain.LookupOption {
		return a.Resources(ctx)
	}),
}

var (
	entriesFrom    string
	entriesTo      string
	entriesProject string
	entriesOwner   string
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List locally stored entries by date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		to, err := parseDay(entriesTo, a.Today())
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		from, err := parseDay(entriesFrom, to.AddDate(0, 0, -30))
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		recs, err := a.Entries(cmd.Context(), usecase.HistoryQuery{
			From:      from,
			To:        to,
			ProjectID: domain.ProjectID(entriesProject),
			OwnerID:   domain.OwnerID(entriesOwner),
		})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tHOURS\tTYPE\tCRM RECORD\tDESCRIPTION")
		for _, rec := range recs {
			e := rec.Entry
			fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%s\t%s\n",
				e.ID(), e.Date().Format("2006-01-02"), e.Duration(), e.Type(), rec.CRMRecordID, e.Description())
		}
		return tw.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <entryID>",
	Short: "Remove a locally stored entry (the CRM record is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveEntry(cmd.Context(), domain.TimeEntryID(args[0])); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending MySQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.MySQL.DSN == "" {
			return errors.New("MYSQL_DSN is required")
		}
		if !migrateStatus {
			return migrate.Run(cmd.Context(), cfg.MySQL.DSN, logger)
		}
		status, err := migrate.StatusDSN(cmd.Context(), cfg.MySQL.DSN)
		if err != nil {
			return err
		}
		for _, m := range status {
			state := "pending"
			if m.Applied {
				state = "applied"
			}
			fmt.Printf("%04d  %-8s %s\n", m.Version, state, m.File)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	entry.bind(submitCmd)
	entry.bind(validateCmd)

	entriesCmd.Flags().StringVar(&entriesFrom, "from", "", "First day (YYYY-MM-DD or RFC3339, default: --to minus 30 days)")
	entriesCmd.Flags().StringVar(&entriesTo, "to", "", "Last day (YYYY-MM-DD or RFC3339, default: today in ENTRY_TZ)")
	entriesCmd.Flags().StringVar(&entriesProject, "project", "", "Only entries for this project GUID")
	entriesCmd.Flags().StringVar(&entriesOwner, "owner", "", "Only entries owned by this system user GUID")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show applied and pending migrations instead of applying")

	rootCmd.AddCommand(serveCmd, submitCmd, validateCmd, checkCmd, projectsCmd, tasksCmd, resourcesCmd, entriesCmd, deleteCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a, err := app.New(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func lookupCommand(list func(context.Context, *app.App, []string) []domain.LookupOption) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, opt := range list(cmd.Context(), a, args) {
			fmt.Fprintf(tw, "%s\t%s\n", opt.ID, opt.Name)
		}
		return tw.Flush()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// entryFlags collects the fields of one time entry from the command line.
type entryFlags struct {
	date                  string
	duration              float64
	entryType             string
	workLocation          string
	project               string
	task                  string
	description           string
	billable              bool
	resource              string
	owner                 string
	serviceRequest        string
	category              string
	additionalDescription string
}

func (f *entryFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.date, "date", "", "Entry date, YYYY-MM-DD (default: today in ENTRY_TZ)")
	fl.Float64Var(&f.duration, "duration", 0, "Hours worked, e.g. 0.25, 1.5, 8")
	fl.StringVar(&f.entryType, "type", "", "work, absence, vacation, break or an option-set value (default: UI_DEFAULT_ENTRY_TYPE)")
	fl.StringVar(&f.workLocation, "location", "", "office, home, client-site, field or an option-set value (default: UI_DEFAULT_WORK_LOCATION)")
	fl.StringVar(&f.project, "project", "", "Project GUID")
	fl.StringVar(&f.task, "task", "", "Project task GUID")
	fl.StringVar(&f.description, "description", "", "What was done")
	fl.BoolVar(&f.billable, "billable", false, "Whether the time is billable (required)")
	fl.StringVar(&f.resource, "resource", "", "Bookable resource GUID")
	fl.StringVar(&f.owner, "owner", "", "Owner (system user) GUID")
	fl.StringVar(&f.serviceRequest, "service-request", "", "Optional service request (incident) GUID")
	fl.StringVar(&f.category, "category", "", "Optional resource category GUID")
	fl.StringVar(&f.additionalDescription, "note", "", "Optional additional description")
}

// raw leaves Billable unset unless --billable was given explicitly.
// An empty --date means today.
func (f *entryFlags) raw(cmd *cobra.Command, today time.Time) usecase.RawTimeEntry {
	date := f.date
	if date == "" {
		date = today.Format("2006-01-02")
	}
	raw := usecase.RawTimeEntry{
		Date:                  date,
		Duration:              f.duration,
		Type:                  usecase.OptionValue(f.entryType),
		WorkLocation:          usecase.OptionValue(f.workLocation),
		ProjectID:             f.project,
		ProjectTaskID:         f.task,
		Description:           f.description,
		BookableResourceID:    f.resource,
		OwnerID:               f.owner,
		ServiceRequestID:      f.serviceRequest,
		ResourceCategoryID:    f.category,
		AdditionalDescription: f.additionalDescription,
	}
	if cmd.Flags().Changed("billable") {
		billable := f.billable
		raw.Billable = &billable
	}
	return raw
}

// parseDay parses a day that may be RFC3339 or YYYY-MM-DD.
// If empty, defaultVal is returned.
func parseDay(val string, defaultVal time.Time) (time.Time, error) {
	if val == "" {
		return defaultVal, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return domain.CalendarDay(t), nil
	}
	if d, err := time.Parse("2006-01-02", val); err == nil {
		return d, nil
	}
	return time.Time{}, errors.New("expected RFC3339 or YYYY-MM-DD")
}
