package session

import (
	"strings"
	"time"

	"claygrounds-desktop/internal/models"
)

const dateLayout = "2006-01-02"

// Validate checks the form before any request is made
func Validate(c Credentials) error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return &models.ValidationError{Field: "email", Message: "Email is required"}
	}
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return &models.ValidationError{Field: "email", Message: "Enter a valid email address"}
	}
	if c.Password == "" {
		return &models.ValidationError{Field: "password", Message: "Password is required"}
	}
	if c.StartDate == "" {
		return &models.ValidationError{Field: "startDate", Message: "Start date is required"}
	}
	if c.EndDate == "" {
		return &models.ValidationError{Field: "endDate", Message: "End date is required"}
	}

	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return &models.ValidationError{Field: "startDate", Message: "Start date must be YYYY-MM-DD"}
	}
	end, err := time.Parse(dateLayout, c.EndDate)
	if err != nil {
		return &models.ValidationError{Field: "endDate", Message: "End date must be YYYY-MM-DD"}
	}
	if start.After(end) {
		return &models.ValidationError{Field: "endDate", Message: "End date must not be before start date"}
	}
	return nil
}

// DefaultDateRange returns the previous calendar month relative to now
func DefaultDateRange(now time.Time) (string, string) {
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := firstOfThisMonth.AddDate(0, -1, 0)
	end := firstOfThisMonth.AddDate(0, 0, -1)
	return start.Format(dateLayout), end.Format(dateLayout)
}
