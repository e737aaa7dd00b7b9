package domain

import "time"

// Identity is an account known to the credential store. It is never
// mutated after creation.
type Identity struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}
