package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SavedCredentials holds the last sign-in used for the email report, so the
// form can be prefilled on the next launch
type SavedCredentials struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Email       string    `gorm:"not null;uniqueIndex" json:"email"`
	PasswordEnc string    `gorm:"not null;column:password_enc" json:"-"` // Encrypted, never expose in JSON
	StartDate   string    `gorm:"column:start_date" json:"start_date"`
	EndDate     string    `gorm:"column:end_date" json:"end_date"`
	ReportType  int       `gorm:"not null;default:1;column:report_type" json:"report_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (sc *SavedCredentials) BeforeCreate(tx *gorm.DB) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (SavedCredentials) TableName() string {
	return "saved_credentials"
}
