package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"crm-timeentry/internal/domain"
)

// SubmitTimeEntry creates an msdyn_timeentry record. The CRM answers 204 and
// names the new record in the OData-EntityId (or Location) header.
func (c *Client) SubmitTimeEntry(ctx context.Context, e *domain.TimeEntry) (res domain.SubmissionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("crm submission panicked", slog.Any("panic", r))
			res = domain.Failed(domain.FailureUnexpected, fmt.Sprintf("unexpected error: %v", r), r)
		}
	}()

	resp, err := c.do(ctx, "submit", http.MethodPost, "msdyn_timeentries", nil, e.CrmPayload())
	if err != nil {
		c.log.Error("crm time entry submission failed", slog.String("entry", string(e.ID())), slog.String("error", err.Error()))
		if errors.Is(err, ErrNoToken) {
			return domain.Failed(domain.FailureAuthorization, "authorization error: could not obtain a CRM access token", err.Error())
		}
		return domain.Failed(domain.FailureConnectivity, "network error: could not connect to the CRM", err.Error())
	}

	if resp.status == http.StatusNoContent {
		id := recordIDFromHeader(resp.header)
		c.log.Info("crm time entry created", slog.String("entry", string(e.ID())), slog.String("record", id))
		return domain.SubmissionResult{Success: true, RecordID: id, StatusCode: resp.status}
	}

	res = failureForStatus(resp.status, resp.body)
	c.log.Error("crm time entry rejected",
		slog.String("entry", string(e.ID())),
		slog.Int("status", resp.status),
		slog.String("message", res.ErrorMessage),
	)
	return res
}

// recordIDFromHeader extracts <id> from ".../msdyn_timeentries(<id>)".
func recordIDFromHeader(h http.Header) string {
	loc := h.Get("OData-EntityId")
	if loc == "" {
		loc = h.Get("Location")
	}
	return RecordIDFromURL(loc)
}

// RecordIDFromURL returns the text between the last '(' and the ')' after it,
// or "" when there is none.
func RecordIDFromURL(s string) string {
	open := strings.LastIndex(s, "(")
	if open < 0 {
		return ""
	}
	end := strings.Index(s[open+1:], ")")
	if end <= 0 {
		return ""
	}
	return s[open+1 : open+1+end]
}
