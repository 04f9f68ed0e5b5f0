package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeEntryType is the CRM option-set value of msdyn_type.
type TimeEntryType int

const (
	TypeWork     TimeEntryType = 192350000
	TypeAbsence  TimeEntryType = 192350001
	TypeVacation TimeEntryType = 192350002
	TypeBreak    TimeEntryType = 192350003
)

var timeEntryTypeNames = map[TimeEntryType]string{
	TypeWork:     "work",
	TypeAbsence:  "absence",
	TypeVacation: "vacation",
	TypeBreak:    "break",
}

// Valid reports whether t is one of the known option-set values.
func (t TimeEntryType) Valid() bool {
	_, ok := timeEntryTypeNames[t]
	return ok
}

func (t TimeEntryType) String() string {
	if n, ok := timeEntryTypeNames[t]; ok {
		return n
	}
	return strconv.Itoa(int(t))
}

// ParseTimeEntryType accepts a type name ("work") or its numeric option-set value.
func ParseTimeEntryType(s string) (TimeEntryType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, n := range timeEntryTypeNames {
		if n == s {
			return v, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && TimeEntryType(n).Valid() {
		return TimeEntryType(n), nil
	}
	return 0, fmt.Errorf("unknown time entry type %q", s)
}

// WorkLocation is the CRM option-set value of new_calismayeri.
type WorkLocation int

const (
	LocationOffice     WorkLocation = 100000000
	LocationHome       WorkLocation = 100000001
	LocationClientSite WorkLocation = 100000002
	LocationField      WorkLocation = 100000003
)

var workLocationNames = map[WorkLocation]string{
	LocationOffice:     "office",
	LocationHome:       "home",
	LocationClientSite: "client-site",
	LocationField:      "field",
}

// Valid reports whether l is one of the known option-set values.
func (l WorkLocation) Valid() bool {
	_, ok := workLocationNames[l]
	return ok
}

func (l WorkLocation) String() string {
	if n, ok := workLocationNames[l]; ok {
		return n
	}
	return strconv.Itoa(int(l))
}

// ParseWorkLocation accepts a location name ("client-site") or its numeric option-set value.
func ParseWorkLocation(s string) (WorkLocation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, n := range workLocationNames {
		if n == s {
			return v, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && WorkLocation(n).Valid() {
		return WorkLocation(n), nil
	}
	return 0, fmt.Errorf("unknown work location %q", s)
}

// DurationOptions lists the hour values the CRM form accepts, in ascending order.
var DurationOptions = []float64{
	0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 1.75,
	2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0,
}

// IsDurationOption reports whether hours is one of DurationOptions.
func IsDurationOption(hours float64) bool {
	for _, d := range DurationOptions {
		if d == hours {
			return true
		}
	}
	return false
}
