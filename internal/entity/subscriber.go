package entity

import "time"

// Subscriber is a newsletter sign-up. Token authorises confirm and unsubscribe links.
type Subscriber struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	Confirmed      bool       `json:"confirmed"`
	Unsubscribed   bool       `json:"unsubscribed"`
	Token          string     `json:"token"`
	SubscribedAt   time.Time  `json:"subscribed_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}
