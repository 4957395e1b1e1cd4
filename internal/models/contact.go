package models

import (
	"strings"
	"time"
)

// Contact is an end user reachable over WhatsApp. (user_id, phone) is unique
// in the store; phone is canonical digits-only once discovered.
type Contact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayName returns the contact name, falling back to the phone number
func (c *Contact) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.Phone
}

// User is a tenant owning flows, contacts and broadcasts. Lifecycle and
// credential management happen outside the engine.
type User struct {
	ID                string    `json:"id"`
	AccessToken       string    `json:"-"`
	BusinessAccountID string    `json:"businessAccountId"`
	PhoneNumberID     string    `json:"phoneNumberId"`
	VerifyToken       string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
