package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claygrounds-desktop/internal/models"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Credentials)
		field string
	}{
		{"Should require an email", func(c *Credentials) { c.Email = " " }, "email"},
		{"Should reject an email without @", func(c *Credentials) { c.Email = "ab.com" }, "email"},
		{"Should require a password", func(c *Credentials) { c.Password = "" }, "password"},
		{"Should require a start date", func(c *Credentials) { c.StartDate = "" }, "startDate"},
		{"Should reject a malformed end date", func(c *Credentials) { c.EndDate = "31/07/2025" }, "endDate"},
		{"Should reject a start after the end", func(c *Credentials) { c.StartDate = "2025-08-01" }, "endDate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCreds()
			tc.edit(&c)
			err := Validate(c)
			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	t.Run("Should accept a single day range", func(t *testing.T) {
		c := validCreds()
		c.EndDate = c.StartDate
		assert.NoError(t, Validate(c))
	})
}

func TestDefaultDateRange(t *testing.T) {
	t.Run("Should cover the previous calendar month", func(t *testing.T) {
		start, end := DefaultDateRange(time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC))
		assert.Equal(t, "2025-07-01", start)
		assert.Equal(t, "2025-07-31", end)
	})

	t.Run("Should wrap into the previous year in January", func(t *testing.T) {
		start, end := DefaultDateRange(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, "2025-12-01", start)
		assert.Equal(t, "2025-12-31", end)
	})
}
