package crm

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-timeentry/internal/domain"
)

func TestListProjects(t *testing.T) {
	f := newFakeCRM(t)
	f.handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/msdyn_projects", r.URL.Path)
		assert.Equal(t, "msdyn_projectid,msdyn_subject", r.URL.Query().Get("$select"))
		assert.Equal(t, "statecode eq 0", r.URL.Query().Get("$filter"))
		_, _ = w.Write([]byte(`{"value":[
			{"msdyn_projectid":"3f2504e0-4f89-41d3-9a0c-0305e82c3301","msdyn_subject":"Website relaunch"},
			{"msdyn_projectid":"6ba7b810-9dad-41d1-80b4-00c04fd430c8","msdyn_subject":"Data migration"}
		]}`))
	})

	got := f.client().ListProjects(context.Background())

	assert.Equal(t, []domain.LookupOption{
		{ID: "3f2504e0-4f89-41d3-9a0c-0305e82c3301", Name: "Website relaunch"},
		{ID: "6ba7b810-9dad-41d1-80b4-00c04fd430c8", Name: "Data migration"},
	}, got)
}

func TestListProjectTasks(t *testing.T) {
	f := newFakeCRM(t)
	f.handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/msdyn_projecttasks", r.URL.Path)
		assert.Equal(t,
			"_msdyn_project_value eq 3f2504e0-4f89-41d3-9a0c-0305e82c3301 and statecode eq 0",
			r.URL.Query().Get("$filter"))
		_, _ = w.Write([]byte(`{"value":[{"msdyn_projecttaskid":"t-1","msdyn_subject":"Design"}]}`))
	})

	got := f.client().ListProjectTasks(context.Background(), "3F2504E0-4F89-41D3-9A0C-0305E82C3301")
	assert.Equal(t, []domain.LookupOption{{ID: "t-1", Name: "Design"}}, got)
}

func TestListProjectTasks_RejectsNonGUID(t *testing.T) {
	f := newFakeCRM(t)
	got := f.client().ListProjectTasks(context.Background(), "x' or 1 eq 1")
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.EqualValues(t, 0, f.apiCalls.Load())
}

func TestListBookableResources(t *testing.T) {
	f := newFakeCRM(t)
	f.handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/bookableresources", r.URL.Path)
		assert.Equal(t, "bookableresourceid,name", r.URL.Query().Get("$select"))
		_, _ = w.Write([]byte(`{"value":[{"bookableresourceid":"r-1","name":"Ada Lovelace"}]}`))
	})

	got := f.client().ListBookableResources(context.Background())
	assert.Equal(t, []domain.LookupOption{{ID: "r-1", Name: "Ada Lovelace"}}, got)
}

func TestLookups_FailuresReturnEmpty(t *testing.T) {
	f := newFakeCRM(t)
	f.handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := f.client()
	ctx := context.Background()

	for name, got := range map[string][]domain.LookupOption{
		"projects":  c.ListProjects(ctx),
		"tasks":     c.ListProjectTasks(ctx, "3f2504e0-4f89-41d3-9a0c-0305e82c3301"),
		"resources": c.ListBookableResources(ctx),
	} {
		assert.NotNil(t, got, name)
		assert.Empty(t, got, name)
	}

	f.handle(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`not json`)) })
	assert.Empty(t, c.ListProjects(ctx))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	f := newFakeCRM(t)
	f.handle(func(w http.ResponseWriter, r *http.Request) {
		if f.apiCalls.Load() == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	c := f.client()
	c.metrics = m
	c.tokens.metrics = m

	res := c.SubmitTimeEntry(context.Background(), testEntry(t))
	require.True(t, res.Success)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tokenRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("submit", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("submit", "204")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}
