package auth

import "time"

// Status is the structured session state printed by the CLI.
type Status struct {
	Status        string    `json:"status"`
	Authenticated bool      `json:"authenticated"`
	Username      string    `json:"username,omitempty"`
	Name          string    `json:"name,omitempty"`
	Method        string    `json:"method,omitempty"`
	Environment   string    `json:"environment,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Error         string    `json:"error,omitempty"`
}
