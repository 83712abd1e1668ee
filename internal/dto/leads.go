package dto

// SubmitLeadRequest is the public lead form payload. Both JSON and form encodings bind.
type SubmitLeadRequest struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Phone   string `json:"phone" form:"phone"`
	Company string `json:"company" form:"company"`
	Network string `json:"network" form:"network"`
	Message string `json:"message" form:"message"`
}

// UpdateLeadStatusRequest changes the status of one lead.
type UpdateLeadStatusRequest struct {
	LeadID string `json:"lead_id" form:"lead_id"`
	Status string `json:"status" form:"status"`
}

// UpdateLeadRequest carries an admin edit. Omitted fields are left untouched.
type UpdateLeadRequest struct {
	LeadID  string  `json:"lead_id" form:"lead_id"`
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Company *string `json:"company,omitempty"`
	Network *string `json:"network,omitempty"`
	Message *string `json:"message,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// DeleteLeadRequest identifies the lead to remove.
type DeleteLeadRequest struct {
	LeadID string `json:"lead_id" form:"lead_id"`
}

// LeadListParams contains query parameters for the admin dashboard and export.
type LeadListParams struct {
	Q        string
	Status   string
	SortBy   string
	SortDir  string
	Page     int
	PageSize int
	Format   string
}

// SubmitLeadResponse is the legacy acknowledgement returned by the submit routes.
type SubmitLeadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LeadCountResponse is returned by GET /leads/count. Source is set only when the
// in-memory store is serving.
type LeadCountResponse struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Source string `json:"source,omitempty"`
}
