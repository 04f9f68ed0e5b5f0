//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"crm-timeentry/internal/adapter/crm"
	msql "crm-timeentry/internal/adapter/mysql"
	"crm-timeentry/internal/domain"
	"crm-timeentry/internal/ids"
	"crm-timeentry/internal/migrate"
	"crm-timeentry/internal/usecase"
	"crm-timeentry/internal/validation"
)

// fakeDataverse answers the token, WhoAmI and create calls of a Dataverse org.
func fakeDataverse(t *testing.T) *httptest.Server {
	t.Helper()
	var created atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /e2e-tenant/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "e2e-token", "expires_in": 3600})
	})
	mux.HandleFunc("GET /api/data/v9.2/WhoAmI", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"UserId":"16fd2706-8baf-433b-82eb-8c7fada847da"}`))
	})
	mux.HandleFunc("POST /api/data/v9.2/msdyn_timeentries", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer e2e-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := created.Add(1)
		w.Header().Set("OData-EntityId", fmt.Sprintf("%s/api/data/v9.2/msdyn_timeentries(00000000-0000-4000-8000-%012d)", "https://org.example", n))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitToMySQL_StoresAcceptedEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	ctx := context.Background()

	// Start MySQL container
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      "testdb",
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_USER":          "test",
			"MYSQL_PASSWORD":      "pass",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start mysql container: %v", err)
	}
	t.Cleanup(func() { _ = mysqlC.Terminate(context.Background()) })

	host, err := mysqlC.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := mysqlC.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true", "test", "pass", host, port.Port(), "testdb")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := migrate.Run(ctx, dsn, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run must find nothing pending.
	if err := migrate.Run(ctx, dsn, logger); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	repo, err := msql.Open(ctx, dsn, logger)
	if err != nil {
		t.Fatalf("mysql repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	dv := fakeDataverse(t)
	client := crm.NewClient(crm.Config{
		BaseURL:      dv.URL,
		ClientID:     "e2e-client",
		ClientSecret: "e2e-secret",
		TenantID:     "e2e-tenant",
		AuthorityURL: dv.URL,
	}, logger, nil)

	uc := &usecase.TimeEntryUseCase{
		Log:       logger,
		Validator: validation.NewService(validation.DefaultOptions(), nil, logger),
		CRM:       client,
		Repo:      repo,
		NewID:     ids.NewTimeEntryID,
		Location:  time.UTC,
	}

	billable := true
	today := time.Now().UTC().Format("2006-01-02")
	entry, err := uc.CreateTimeEntry(usecase.RawTimeEntry{
		Date:                  today,
		Duration:              1.5,
		Type:                  "work",
		WorkLocation:          "home",
		ProjectID:             "3f2504e0-4f89-41d3-9a0c-0305e82c3301",
		ProjectTaskID:         "6ba7b810-9dad-41d1-80b4-00c04fd430c8",
		Description:           "Reviewed the integration test plan",
		Billable:              &billable,
		BookableResourceID:    "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		OwnerID:               "16fd2706-8baf-433b-82eb-8c7fada847da",
		AdditionalDescription: "Follow-up with the QA team",
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	res := uc.Submit(ctx, entry)
	if !res.Success {
		t.Fatalf("submit: %+v", res)
	}
	if res.RecordID != "00000000-0000-4000-8000-000000000001" {
		t.Fatalf("unexpected record id %q", res.RecordID)
	}
	for _, w := range res.Warnings {
		if w != validation.MsgWeekend && w != validation.MsgRelationshipPending {
			t.Fatalf("unexpected warning %q", w)
		}
	}

	// Verify rows
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crm_time_entries").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}

	// Submitting again creates a second CRM record but upserts the local row
	if res := uc.Submit(ctx, entry); !res.Success {
		t.Fatalf("submit 2: %+v", res)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crm_time_entries").Scan(&count); err != nil {
		t.Fatalf("count 2: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", count)
	}

	day := domain.CalendarDay(time.Now().UTC())
	recs, err := repo.FindByDateRange(ctx, day.AddDate(0, 0, -1), day)
	if err != nil {
		t.Fatalf("find by date range: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	got := recs[0]
	if got.Entry.ID() != entry.ID() || got.CRMRecordID != "00000000-0000-4000-8000-000000000002" {
		t.Fatalf("unexpected record %s / %s", got.Entry.ID(), got.CRMRecordID)
	}
	if note, _ := got.Entry.AdditionalDescription(); note != "Follow-up with the QA team" {
		t.Fatalf("additional description not stored: %q", note)
	}

	if _, err := repo.FindByID(ctx, "te_missing"); err != domain.ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
