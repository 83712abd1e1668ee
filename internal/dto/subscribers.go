package dto

// SubscribeRequest is the newsletter sign-up payload.
type SubscribeRequest struct {
	Email string `json:"email" form:"email"`
	Name  string `json:"name" form:"name"`
}
