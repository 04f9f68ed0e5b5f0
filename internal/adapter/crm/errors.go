package crm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"crm-timeentry/internal/domain"
)

const unknownErrorMessage = "unknown error"

// failureForStatus turns a non-204 CRM reply into a failed SubmissionResult.
func failureForStatus(status int, body []byte) domain.SubmissionResult {
	category := domain.FailureRemoteRejection
	var msg string
	switch {
	case status >= 200 && status < 300:
		msg = fmt.Sprintf("unexpected HTTP status: %d", status)
	case status == http.StatusBadRequest:
		msg = "invalid data: " + extractErrorMessage(body)
	case status == http.StatusUnauthorized:
		category = domain.FailureAuthorization
		msg = "authorization error: no permission to access the CRM"
	case status == http.StatusForbidden:
		msg = "access denied: required permissions are missing"
	case status == http.StatusNotFound:
		msg = "CRM resource not found"
	case status >= 500:
		msg = "CRM server error"
	default:
		msg = fmt.Sprintf("error while sending the time entry to the CRM (status %d): %s", status, extractErrorMessage(body))
	}
	return domain.SubmissionResult{
		Category:     category,
		StatusCode:   status,
		ErrorMessage: msg,
		Details:      errorDetails(body),
	}
}

// extractErrorMessage pulls error.message or message out of an OData error
// body, falling back to the raw text.
func extractErrorMessage(body []byte) string {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != nil && payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
		return unknownErrorMessage
	}

	// A JSON string literal is still "a string body".
	var str string
	if err := json.Unmarshal(body, &str); err == nil && str != "" {
		return str
	}
	if text := strings.TrimSpace(string(body)); text != "" && !json.Valid(body) {
		return text
	}
	return unknownErrorMessage
}

// errorDetails keeps a JSON body as raw JSON and anything else as text.
func errorDetails(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
