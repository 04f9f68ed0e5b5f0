package domain

// ValidationResult is the outcome of checking a TimeEntry. Errors block
// submission; warnings are advisory.
type ValidationResult struct {
	Valid    bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewValidationResult derives Valid from the error list and normalises nil
// slices to empty ones.
func NewValidationResult(errs, warnings []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// FailureCategory classifies why a submission did not succeed.
type FailureCategory string

const (
	FailureNone            FailureCategory = ""
	FailureInvalidInput    FailureCategory = "invalid_input"
	FailureValidation      FailureCategory = "validation"
	FailureConnectivity    FailureCategory = "connectivity"
	FailureAuthorization   FailureCategory = "authorization"
	FailureRemoteRejection FailureCategory = "remote_rejection"
	FailureUnexpected      FailureCategory = "unexpected"
)

// SubmissionResult is the outcome of sending an entry to the CRM.
type SubmissionResult struct {
	Success      bool            `json:"success"`
	RecordID     string          `json:"crmRecordId,omitempty"`
	Category     FailureCategory `json:"category,omitempty"`
	StatusCode   int             `json:"statusCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Details      any             `json:"errorDetails,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	// WorkItemNote is the text to append to the originating work item's
	// history once the CRM has accepted the entry.
	WorkItemNote string `json:"workItemNote,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(category FailureCategory, message string, details any) SubmissionResult {
	return SubmissionResult{Category: category, ErrorMessage: message, Details: details}
}
