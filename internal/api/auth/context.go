package auth

import "github.com/labstack/echo/v4"

// ContextKey represents keys for context values
type ContextKey string

const ReviewerContextKey ContextKey = "reviewer"

// Reviewer is the authenticated operator behind a request
type Reviewer struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// GetReviewer returns the reviewer set by RequireAuth, or nil
func GetReviewer(c echo.Context) *Reviewer {
	if r, ok := c.Get(string(ReviewerContextKey)).(*Reviewer); ok {
		return r
	}
	return nil
}
