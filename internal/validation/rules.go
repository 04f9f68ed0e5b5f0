package validation

import (
	"fmt"
	"log/slog"

	"crm-timeentry/internal/domain"
)

// Severity decides whether a failed rule blocks submission.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Judgment is a rule's verdict on one entry.
type Judgment struct {
	Pass     bool
	Message  string
	Severity Severity
}

// Rule is a named, pure check over a TimeEntry.
type Rule struct {
	Name  string
	Check func(*domain.TimeEntry) Judgment
}

// WeekendWork warns about entries dated on a Saturday or Sunday.
func WeekendWork() Rule {
	return Rule{
		Name: "WeekendWork",
		Check: func(e *domain.TimeEntry) Judgment {
			return Judgment{
				Pass:     !isWeekend(e.Date()),
				Message:  MsgWeekend,
				Severity: SeverityWarning,
			}
		},
	}
}

// MaxDailyHours rejects entries longer than maxHours. A non-positive
// maxHours means 12.
func MaxDailyHours(maxHours float64) Rule {
	if maxHours <= 0 {
		maxHours = 12
	}
	return Rule{
		Name: "MaxDailyHours",
		Check: func(e *domain.TimeEntry) Judgment {
			return Judgment{
				Pass:     e.Duration() <= maxHours,
				Message:  fmt.Sprintf("maximum of %g hours per day exceeded", maxHours),
				Severity: SeverityError,
			}
		},
	}
}

// ApplyRules folds the rules over e in order, routing each failed judgment to
// the error or warning list by its severity.
func (s *Service) ApplyRules(e *domain.TimeEntry, rules []Rule) domain.ValidationResult {
	var errs, warnings []string
	for _, r := range rules {
		j := judge(r, e)
		if j.Pass {
			continue
		}
		s.log.Debug("validation rule failed", slog.String("rule", r.Name), slog.String("severity", j.Severity.String()))
		if j.Severity == SeverityWarning {
			warnings = append(warnings, j.Message)
		} else {
			errs = append(errs, j.Message)
		}
	}
	return domain.NewValidationResult(errs, warnings)
}

func judge(r Rule, e *domain.TimeEntry) (j Judgment) {
	defer func() {
		if p := recover(); p != nil {
			j = Judgment{Message: fmt.Sprintf("rule %s failed: %v", r.Name, p), Severity: SeverityError}
		}
	}()
	return r.Check(e)
}
