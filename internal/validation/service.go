// Package validation runs the layered business, integrity and CRM checks a
// TimeEntry passes before it is submitted.
package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"crm-timeentry/internal/domain"
)

// Limits enforced by the integrity checks.
const (
	MaxDescriptionLength           = 2000
	MaxAdditionalDescriptionLength = 4000
	MinDuration                    = 0.25
)

// Messages the checks emit. Tests and callers match on these.
const (
	MsgPastLimit           = "date is more than %d days in the past; approval may be required"
	MsgWeekend             = "entry falls on a weekend; approval may be required"
	MsgLongDay             = "duration exceeds %g hours; approval may be required"
	MsgMinDuration         = "minimum duration is 15 minutes"
	MsgShortDescription    = "description is short; a more detailed description is recommended"
	MsgVagueDescription    = "description could be more descriptive"
	MsgInvalidGUID         = "%s is not a valid GUID"
	MsgDescriptionTooLong  = "description must not exceed %d characters"
	MsgAdditionalTooLong   = "additional description must not exceed %d characters"
	MsgInvalidType         = "invalid time entry type"
	MsgInvalidLocation     = "invalid work location"
	MsgInvalidDuration     = "invalid duration; only predefined values are allowed"
	MsgBillableService     = "billable service request entry; customer approval may be required"
	MsgRelationshipPending = "project and task relationship will be verified by the CRM"
	MsgCheckFailed         = "validation failed: %v"
)

var lowQualityDescriptions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(work|task|project|job|misc|stuff)$`),
	regexp.MustCompile(`^.{1,5}$`),
	regexp.MustCompile(`(?i)^(test|aa+|xx+)$`),
}

// Options tunes the business-rule thresholds.
type Options struct {
	MaxDailyHours        float64
	MaxPastDays          int
	MinDescriptionLength int
	WeekendWarning       bool
	// Rules run after the built-in checks, in order.
	Rules                []Rule
}

// DefaultOptions mirrors the stock extension settings.
func DefaultOptions() Options {
	return Options{
		MaxDailyHours:        12,
		MaxPastDays:          30,
		MinDescriptionLength: 10,
		WeekendWarning:       true,
	}
}

// Service validates time entries. It is safe for concurrent use.
type Service struct {
	opts  Options
	rules []Rule
	now   func() time.Time
	log   *slog.Logger
}

// NewService returns a Service. A nil now uses time.Now.
func NewService(opts Options, now func() time.Time, log *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.MaxDailyHours <= 0 {
		opts.MaxDailyHours = def.MaxDailyHours
	}
	if opts.MaxPastDays <= 0 {
		opts.MaxPastDays = def.MaxPastDays
	}
	if opts.MinDescriptionLength <= 0 {
		opts.MinDescriptionLength = def.MinDescriptionLength
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	var rules []Rule
	if opts.WeekendWarning {
		rules = append(rules, WeekendWork())
	}
	rules = append(rules, opts.Rules...)
	return &Service{opts: opts, rules: rules, now: now, log: log}
}

// Validate runs every check group and never panics; an unexpected failure
// becomes a single error entry.
func (s *Service) Validate(e *domain.TimeEntry) (res domain.ValidationResult) {
	var errs, warnings []string
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("validation panicked", slog.Any("panic", r))
			res = domain.NewValidationResult(append(errs, fmt.Sprintf(MsgCheckFailed, r)), warnings)
		}
	}()
	if e == nil {
		return domain.NewValidationResult([]string{fmt.Sprintf(MsgCheckFailed, "no time entry")}, nil)
	}

	for _, check := range []func(*domain.TimeEntry) ([]string, []string){
		s.businessRules,
		dataIntegrity,
		crmConstraints,
	} {
		ce, cw := check(e)
		errs = append(errs, ce...)
		warnings = append(warnings, cw...)
	}
	rr := s.ApplyRules(e, s.rules)
	errs = append(errs, rr.Errors...)
	warnings = append(warnings, rr.Warnings...)
	return domain.NewValidationResult(errs, warnings)
}

func (s *Service) businessRules(e *domain.TimeEntry) (errs, warnings []string) {
	now := s.now()
	oldest := now.AddDate(0, 0, -s.opts.MaxPastDays)
	if e.Date().Before(oldest) {
		warnings = append(warnings, fmt.Sprintf(MsgPastLimit, s.opts.MaxPastDays))
	}
	if e.Duration() > s.opts.MaxDailyHours {
		warnings = append(warnings, fmt.Sprintf(MsgLongDay, s.opts.MaxDailyHours))
	}
	if e.Duration() < MinDuration {
		errs = append(errs, MsgMinDuration)
	}

	desc := strings.TrimSpace(e.Description())
	if len([]rune(e.Description())) < s.opts.MinDescriptionLength {
		warnings = append(warnings, MsgShortDescription)
	}
	for _, re := range lowQualityDescriptions {
		if re.MatchString(desc) {
			warnings = append(warnings, MsgVagueDescription)
			break
		}
	}
	return errs, warnings
}

func dataIntegrity(e *domain.TimeEntry) (errs, warnings []string) {
	ids := []struct {
		label string
		value string
	}{
		{"project ID", string(e.ProjectID())},
		{"project task ID", string(e.ProjectTaskID())},
		{"bookable resource ID", string(e.BookableResourceID())},
		{"owner ID", string(e.OwnerID())},
	}
	if id, ok := e.ServiceRequestID(); ok {
		ids = append(ids, struct{ label, value string }{"service request ID", string(id)})
	}
	if id, ok := e.ResourceCategoryID(); ok {
		ids = append(ids, struct{ label, value string }{"resource category ID", string(id)})
	}
	for _, id := range ids {
		if !IsGUID(id.value) {
			errs = append(errs, fmt.Sprintf(MsgInvalidGUID, id.label))
		}
	}

	if msg, ok := exceeds(e.Description(), MaxDescriptionLength, MsgDescriptionTooLong); ok {
		errs = append(errs, msg)
	}
	if text, present := e.AdditionalDescription(); present {
		if msg, ok := exceeds(text, MaxAdditionalDescriptionLength, MsgAdditionalTooLong); ok {
			errs = append(errs, msg)
		}
	}
	return errs, nil
}

func crmConstraints(e *domain.TimeEntry) (errs, warnings []string) {
	if !e.Type().Valid() {
		errs = append(errs, MsgInvalidType)
	}
	if !e.WorkLocation().Valid() {
		errs = append(errs, MsgInvalidLocation)
	}
	if !domain.IsDurationOption(e.Duration()) {
		errs = append(errs, MsgInvalidDuration)
	}
	if _, ok := e.ServiceRequestID(); ok && e.Billable() {
		warnings = append(warnings, MsgBillableService)
	}
	warnings = append(warnings, MsgRelationshipPending)
	return errs, warnings
}

// IsGUID reports whether s is a hyphenated 8-4-4-4-12 RFC 4122 identifier
// with version 1 to 5.
func IsGUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Variant() == uuid.RFC4122 && id.Version() >= 1 && id.Version() <= 5
}

func exceeds(text string, max int, format string) (string, bool) {
	if len([]rune(text)) > max {
		return fmt.Sprintf(format, max), true
	}
	return "", false
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
