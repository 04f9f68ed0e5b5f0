package validation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-timeentry/internal/domain"
)

// Thursday afternoon.
var testNow = time.Date(2025, 8, 14, 15, 30, 0, 0, time.UTC)

const (
	guidProject  = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	guidTask     = "6ba7b810-9dad-41d1-80b4-00c04fd430c8"
	guidResource = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	guidOwner    = "16fd2706-8baf-433b-82eb-8c7fada847da"
	guidService  = "a8098c1a-f86e-41da-bd34-0800200c9a66"
)

func newService() *Service {
	return NewService(DefaultOptions(), func() time.Time { return testNow }, nil)
}

func params() domain.TimeEntryParams {
	billable := true
	return domain.TimeEntryParams{
		ID:                 "te_1",
		Date:               testNow.AddDate(0, 0, -1),
		Duration:           1.0,
		Type:               domain.TypeWork,
		WorkLocation:       domain.LocationOffice,
		ProjectID:          guidProject,
		ProjectTaskID:      guidTask,
		Description:        "Implemented feature X",
		Billable:           &billable,
		BookableResourceID: guidResource,
		OwnerID:            guidOwner,
	}
}

func entry(t *testing.T, mutate func(*domain.TimeEntryParams)) *domain.TimeEntry {
	t.Helper()
	p := params()
	if mutate != nil {
		mutate(&p)
	}
	e, err := domain.NewTimeEntry(p, testNow)
	require.NoError(t, err)
	return e
}

func TestValidate_ValidEntry(t *testing.T) {
	res := newService().Validate(entry(t, nil))

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{MsgRelationshipPending}, res.Warnings)
}

func TestValidate_Idempotent(t *testing.T) {
	svc := newService()
	e := entry(t, func(p *domain.TimeEntryParams) { p.Duration = 0.1; p.Description = "test" })

	assert.Equal(t, svc.Validate(e), svc.Validate(e))
}

func TestValidate_BusinessRules(t *testing.T) {
	cases := []struct {
		name         string
		mutate       func(*domain.TimeEntryParams)
		wantError    string
		wantWarnings []string
	}{
		{
			name:         "older than look-back window",
			mutate:       func(p *domain.TimeEntryParams) { p.Date = testNow.AddDate(0, 0, -45) },
			wantWarnings: []string{fmt.Sprintf(MsgPastLimit, 30)},
		},
		{
			name:         "weekend",
			mutate:       func(p *domain.TimeEntryParams) { p.Date = time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC) },
			wantWarnings: []string{MsgWeekend},
		},
		{
			name:         "long day",
			mutate:       func(p *domain.TimeEntryParams) { p.Duration = 13 },
			wantWarnings: []string{fmt.Sprintf(MsgLongDay, 12.0)},
		},
		{
			name:      "below minimum duration",
			mutate:    func(p *domain.TimeEntryParams) { p.Duration = 0.1 },
			wantError: MsgMinDuration,
		},
		{
			name:         "short description",
			mutate:       func(p *domain.TimeEntryParams) { p.Description = "Fixed bug" },
			wantWarnings: []string{MsgShortDescription},
		},
		{
			name:         "generic word",
			mutate:       func(p *domain.TimeEntryParams) { p.Description = "Project" },
			wantWarnings: []string{MsgShortDescription, MsgVagueDescription},
		},
		{
			name:         "repeated characters",
			mutate:       func(p *domain.TimeEntryParams) { p.Description = "xxxxxxxxxxxx" },
			wantWarnings: []string{MsgVagueDescription},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := newService().Validate(entry(t, tc.mutate))
			if tc.wantError != "" {
				assert.False(t, res.Valid)
				assert.Contains(t, res.Errors, tc.wantError)
			}
			for _, w := range tc.wantWarnings {
				assert.Contains(t, res.Warnings, w)
			}
		})
	}
}

func TestValidate_WeekendWarningDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.WeekendWarning = false
	svc := NewService(opts, func() time.Time { return testNow }, nil)

	res := svc.Validate(entry(t, func(p *domain.TimeEntryParams) {
		p.Date = time.Date(2025, 8, 9, 0, 0, 0, 0, time.UTC)
	}))
	assert.NotContains(t, res.Warnings, MsgWeekend)
}

func TestValidate_Durations(t *testing.T) {
	svc := newService()
	for _, d := range domain.DurationOptions {
		res := svc.Validate(entry(t, func(p *domain.TimeEntryParams) { p.Duration = d }))
		assert.NotContains(t, res.Errors, MsgInvalidDuration, "duration %g", d)
		assert.NotContains(t, res.Warnings, fmt.Sprintf(MsgLongDay, 12.0), "duration %g", d)
	}
	for _, d := range []float64{0.1, 1.1, 2.5, 9, 13} {
		res := svc.Validate(entry(t, func(p *domain.TimeEntryParams) { p.Duration = d }))
		assert.Contains(t, res.Errors, MsgInvalidDuration, "duration %g", d)
	}
}

func TestValidate_NonGUIDIdentifier(t *testing.T) {
	res := newService().Validate(entry(t, func(p *domain.TimeEntryParams) {
		p.ProjectID = "not-a-guid"
		p.ServiceRequestID = "42"
	}))

	assert.False(t, res.Valid)
	assert.Equal(t, []string{
		fmt.Sprintf(MsgInvalidGUID, "project ID"),
		fmt.Sprintf(MsgInvalidGUID, "service request ID"),
	}, res.Errors)
}

func TestValidate_InvalidEnums(t *testing.T) {
	res := newService().Validate(entry(t, func(p *domain.TimeEntryParams) {
		p.Type = 7
		p.WorkLocation = 9
	}))
	assert.Equal(t, []string{MsgInvalidType, MsgInvalidLocation}, res.Errors)
}

func TestValidate_DescriptionTooLong(t *testing.T) {
	res := newService().Validate(entry(t, func(p *domain.TimeEntryParams) {
		p.Description = strings.Repeat("a", MaxDescriptionLength+1)
	}))
	assert.Contains(t, res.Errors, fmt.Sprintf(MsgDescriptionTooLong, MaxDescriptionLength))
}

func TestExceeds_AdditionalDescriptionCeiling(t *testing.T) {
	_, over := exceeds(strings.Repeat("a", MaxAdditionalDescriptionLength), MaxAdditionalDescriptionLength, MsgAdditionalTooLong)
	assert.False(t, over)

	msg, over := exceeds(strings.Repeat("a", MaxAdditionalDescriptionLength+1), MaxAdditionalDescriptionLength, MsgAdditionalTooLong)
	assert.True(t, over)
	assert.Equal(t, "additional description must not exceed 4000 characters", msg)
}

func TestValidate_BillableServiceRequest(t *testing.T) {
	res := newService().Validate(entry(t, func(p *domain.TimeEntryParams) { p.ServiceRequestID = guidService }))
	assert.True(t, res.Valid)
	assert.Equal(t, []string{MsgBillableService, MsgRelationshipPending}, res.Warnings)

	notBillable := false
	res = newService().Validate(entry(t, func(p *domain.TimeEntryParams) {
		p.ServiceRequestID = guidService
		p.Billable = &notBillable
	}))
	assert.NotContains(t, res.Warnings, MsgBillableService)
}

func TestValidate_NilEntry(t *testing.T) {
	res := newService().Validate(nil)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "validation failed")
}

func TestValidate_PanicBecomesError(t *testing.T) {
	svc := NewService(DefaultOptions(), func() time.Time { panic("clock unavailable") }, nil)
	res := svc.Validate(entry(t, nil))
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"validation failed: clock unavailable"}, res.Errors)
}

func TestIsGUID(t *testing.T) {
	assert.True(t, IsGUID(guidProject))
	assert.True(t, IsGUID(strings.ToUpper(guidProject)))
	assert.False(t, IsGUID("3f2504e0-4f89-61d3-9a0c-0305e82c3301"), "version 6")
	assert.False(t, IsGUID("3f2504e0-4f89-41d3-ca0c-0305e82c3301"), "variant c")
	assert.False(t, IsGUID("3f2504e04f8941d39a0c0305e82c3301"), "no hyphens")
	assert.False(t, IsGUID("{3f2504e0-4f89-41d3-9a0c-0305e82c3301}"))
	assert.False(t, IsGUID(""))
}

func TestValidate_ConfiguredRules(t *testing.T) {
	opts := DefaultOptions()
	opts.Rules = []Rule{MaxDailyHours(4)}
	svc := NewService(opts, func() time.Time { return testNow }, nil)

	res := svc.Validate(entry(t, func(p *domain.TimeEntryParams) { p.Duration = 5 }))
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"maximum of 4 hours per day exceeded"}, res.Errors)

	res = svc.Validate(entry(t, func(p *domain.TimeEntryParams) { p.Duration = 4 }))
	assert.True(t, res.Valid)
}
