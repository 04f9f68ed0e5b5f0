package domain

// LookupOption is a CRM record reduced to what a selection list needs.
type LookupOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
