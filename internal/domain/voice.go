package domain

import "time"

// Voice is a cloned narration voice created from an uploaded sample.
type Voice struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Name      string    `json:"name"`
	Gender    string    `json:"gender"`
	Age       string    `json:"age"`
	CreatedAt time.Time `json:"createdAt"`
}
