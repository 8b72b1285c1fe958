package judge

import "time"

// Profile is a decision-maker that can receive distributed appeals.
type Profile struct {
	ID        string    `json:"id"`
	CSSID     string    `json:"css_id"`
	FullName  string    `json:"full_name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
