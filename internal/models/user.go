package models

// User is an addressable identity, keyed by the external (Telegram) id.
// Created on first contact, updated on later contact, never deleted.
type User struct {
	ID          int64   `json:"id"`
	ExternalID  string  `json:"external_id"`
	Username    *string `json:"username,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	IsAdmin     bool    `json:"is_admin"`
	CreatedAt   string  `json:"created_at"`
}

// UserStats summarizes a user's successful verifications.
type UserStats struct {
	SuccessfulVerifications int     `json:"successful_verifications"`
	LastActivity            *string `json:"last_activity,omitempty"`
}
