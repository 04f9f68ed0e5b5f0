package domain

import "time"

// Record is the local audit copy of an entry accepted by the CRM.
type Record struct {
	Entry       *TimeEntry
	CRMRecordID string
	SubmittedAt time.Time
}
