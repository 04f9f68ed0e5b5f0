package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"crm-timeentry/internal/domain"
)

// ListProjects returns active projects. Failures yield an empty list.
func (c *Client) ListProjects(ctx context.Context) []domain.LookupOption {
	var rows []struct {
		ID   string `json:"msdyn_projectid"`
		Name string `json:"msdyn_subject"`
	}
	q := odataQuery("msdyn_projectid,msdyn_subject", "statecode eq 0")
	if err := c.list(ctx, "projects", "msdyn_projects", q, &rows); err != nil {
		return []domain.LookupOption{}
	}
	out := make([]domain.LookupOption, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.LookupOption{ID: r.ID, Name: r.Name})
	}
	return out
}

// ListProjectTasks returns the active tasks of projectID. Failures, including
// a projectID that is not a GUID, yield an empty list.
func (c *Client) ListProjectTasks(ctx context.Context, projectID domain.ProjectID) []domain.LookupOption {
	id, err := uuid.Parse(string(projectID))
	if err != nil {
		c.log.Warn("crm task lookup skipped: project id is not a GUID", slog.String("project", string(projectID)))
		return []domain.LookupOption{}
	}
	var rows []struct {
		ID   string `json:"msdyn_projecttaskid"`
		Name string `json:"msdyn_subject"`
	}
	q := odataQuery("msdyn_projecttaskid,msdyn_subject",
		fmt.Sprintf("_msdyn_project_value eq %s and statecode eq 0", id.String()))
	if err := c.list(ctx, "project_tasks", "msdyn_projecttasks", q, &rows); err != nil {
		return []domain.LookupOption{}
	}
	out := make([]domain.LookupOption, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.LookupOption{ID: r.ID, Name: r.Name})
	}
	return out
}

// ListBookableResources returns active bookable resources. Failures yield an empty list.
func (c *Client) ListBookableResources(ctx context.Context) []domain.LookupOption {
	var rows []struct {
		ID   string `json:"bookableresourceid"`
		Name string `json:"name"`
	}
	q := odataQuery("bookableresourceid,name", "statecode eq 0")
	if err := c.list(ctx, "bookable_resources", "bookableresources", q, &rows); err != nil {
		return []domain.LookupOption{}
	}
	out := make([]domain.LookupOption, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.LookupOption{ID: r.ID, Name: r.Name})
	}
	return out
}

func odataQuery(sel, filter string) url.Values {
	q := url.Values{}
	q.Set("$select", sel)
	q.Set("$filter", filter)
	return q
}

// list fetches an OData collection and decodes its "value" array into dst.
func (c *Client) list(ctx context.Context, op, entitySet string, q url.Values, dst any) error {
	resp, err := c.do(ctx, op, http.MethodGet, entitySet, q, nil)
	if err == nil && resp.status != http.StatusOK {
		err = &StatusError{Op: op, Status: resp.status, Body: resp.body}
	}
	if err == nil {
		var envelope struct {
			Value json.RawMessage `json:"value"`
		}
		if err = json.Unmarshal(resp.body, &envelope); err == nil {
			err = json.Unmarshal(envelope.Value, dst)
		}
	}
	if err != nil {
		c.log.Error("crm lookup failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	return err
}
