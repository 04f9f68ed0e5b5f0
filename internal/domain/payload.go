package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PayloadField is one CRM attribute in a write request.
type PayloadField struct {
	Name  string
	Value any
}

// Payload is an ordered CRM request body. It marshals to a JSON object whose
// keys appear in insertion order.
type Payload []PayloadField

// Get returns the value stored under name.
func (p Payload) Get(name string) (any, bool) {
	for _, f := range p {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names lists the field names in order.
func (p Payload) Names() []string {
	out := make([]string, 0, len(p))
	for _, f := range p {
		out = append(out, f.Name)
	}
	return out
}

func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("payload field %s: %w", f.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type payloadBuilder struct {
	fields Payload
}

func (b *payloadBuilder) set(name string, value any) *payloadBuilder {
	b.fields = append(b.fields, PayloadField{Name: name, Value: value})
	return b
}

func (b *payloadBuilder) bind(name, entitySet, id string) *payloadBuilder {
	return b.set(name+"@odata.bind", BindExpression(entitySet, id))
}

// BindExpression renders a navigation-bind reference such as /msdyn_projects(<id>).
func BindExpression(entitySet, id string) string {
	return "/" + entitySet + "(" + id + ")"
}

// CrmPayload maps the entry to the msdyn_timeentries write schema. Optional
// relations and text are appended only when present.
func (e *TimeEntry) CrmPayload() Payload {
	b := &payloadBuilder{}
	b.set("msdyn_date", e.date.Format("2006-01-02")).
		set("msdyn_duration", e.duration).
		set("msdyn_type", int(e.entryType)).
		set("new_calismayeri", int(e.workLocation)).
		bind("msdyn_project", "msdyn_projects", string(e.projectID)).
		bind("msdyn_projecttask", "msdyn_projecttasks", string(e.projectTaskID)).
		set("msdyn_description", e.description).
		set("new_fatura", e.billable).
		bind("msdyn_bookableresource", "bookableresources", string(e.bookableResourceID)).
		bind("ownerid", "systemusers", string(e.ownerID))

	if id, ok := e.ServiceRequestID(); ok {
		b.bind("new_servistalebi", "incidents", string(id))
	}
	if id, ok := e.ResourceCategoryID(); ok {
		b.bind("msdyn_resourcecategory", "bookableresourcecategories", string(id))
	}
	if text, ok := e.AdditionalDescription(); ok {
		b.set("new_ekaciklama", text)
	}
	return b.fields
}
