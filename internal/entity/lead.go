package entity

import "time"

// Lead statuses accepted by the store.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusConverted = "converted"
	LeadStatusRejected  = "rejected"
	LeadStatusClosed    = "closed"
)

// LeadStatuses lists every known status in dashboard order.
var LeadStatuses = []string{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusConverted,
	LeadStatusRejected,
	LeadStatusClosed,
}

// IsValidLeadStatus reports whether status is one of LeadStatuses.
func IsValidLeadStatus(status string) bool {
	for _, s := range LeadStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Lead is a prospective-customer contact captured by the public form.
// ID is an ObjectID hex string under MongoDB and a UUID under file storage.
type Lead struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Company   string     `json:"company,omitempty"`
	Network   string     `json:"network,omitempty"`
	Message   string     `json:"message,omitempty"`
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
