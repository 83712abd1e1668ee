package middleware

// Context keys used to store request and session metadata.
const (
	ContextKeyAdminUsername = "admin_username"
	ContextKeyAdminRole     = "admin_role"
	ContextKeyRequestID     = "request_id"
)
