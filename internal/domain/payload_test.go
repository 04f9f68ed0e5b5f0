package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrmPayload_RequiredFieldsOnly(t *testing.T) {
	e, err := NewTimeEntry(validParams(), testNow)
	require.NoError(t, err)

	got, err := json.Marshal(e.CrmPayload())
	require.NoError(t, err)

	want := `{"msdyn_date":"2025-08-13",` +
		`"msdyn_duration":1,` +
		`"msdyn_type":192350000,` +
		`"new_calismayeri":100000000,` +
		`"msdyn_project@odata.bind":"/msdyn_projects(3f2504e0-4f89-41d3-9a0c-0305e82c3301)",` +
		`"msdyn_projecttask@odata.bind":"/msdyn_projecttasks(6ba7b810-9dad-41d1-80b4-00c04fd430c8)",` +
		`"msdyn_description":"Implemented feature X",` +
		`"new_fatura":true,` +
		`"msdyn_bookableresource@odata.bind":"/bookableresources(7c9e6679-7425-40de-944b-e07fc1f90ae7)",` +
		`"ownerid@odata.bind":"/systemusers(16fd2706-8baf-433b-82eb-8c7fada847da)"}`
	assert.Equal(t, want, string(got))
}

func TestCrmPayload_OptionalFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TimeEntryParams)
		want   []string
	}{
		{
			name:   "service request",
			mutate: func(p *TimeEntryParams) { p.ServiceRequestID = "a8098c1a-f86e-41da-bd34-0800200c9a66" },
			want:   []string{"new_servistalebi@odata.bind"},
		},
		{
			name:   "resource category",
			mutate: func(p *TimeEntryParams) { p.ResourceCategoryID = "a8098c1a-f86e-41da-bd34-0800200c9a66" },
			want:   []string{"msdyn_resourcecategory@odata.bind"},
		},
		{
			name:   "additional description",
			mutate: func(p *TimeEntryParams) { p.AdditionalDescription = "follow-up notes" },
			want:   []string{"new_ekaciklama"},
		},
		{
			name: "all",
			mutate: func(p *TimeEntryParams) {
				p.ServiceRequestID = "a8098c1a-f86e-41da-bd34-0800200c9a66"
				p.ResourceCategoryID = "b8098c1a-f86e-41da-bd34-0800200c9a66"
				p.AdditionalDescription = "follow-up notes"
			},
			want: []string{"new_servistalebi@odata.bind", "msdyn_resourcecategory@odata.bind", "new_ekaciklama"},
		},
	}

	base, err := NewTimeEntry(validParams(), testNow)
	require.NoError(t, err)
	required := base.CrmPayload().Names()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			e, err := NewTimeEntry(p, testNow)
			require.NoError(t, err)

			names := e.CrmPayload().Names()
			assert.Equal(t, append(append([]string{}, required...), tc.want...), names)
		})
	}
}

func TestCrmPayload_Deterministic(t *testing.T) {
	p := validParams()
	p.AdditionalDescription = "notes"
	e, err := NewTimeEntry(p, testNow)
	require.NoError(t, err)

	first, err := json.Marshal(e.CrmPayload())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(e.CrmPayload())
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}

	v, ok := e.CrmPayload().Get("new_ekaciklama")
	require.True(t, ok)
	assert.Equal(t, "notes", v)
}
