package session

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/models"
)

// Sealer encrypts secrets before they reach the database
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// GormCredentialStore keeps the last used credentials in the local
// database with the password encrypted
type GormCredentialStore struct {
	db     *gorm.DB
	sealer Sealer
}

// NewGormCredentialStore creates a credential store
func NewGormCredentialStore(db *gorm.DB, sealer Sealer) *GormCredentialStore {
	return &GormCredentialStore{db: db, sealer: sealer}
}

// Save upserts the credentials for their email address
func (g *GormCredentialStore) Save(ctx context.Context, creds Credentials) error {
	enc, err := g.sealer.Seal(creds.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	db := g.db.WithContext(ctx)
	var row models.SavedCredentials
	err = db.Where("email = ?", creds.Email).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.SavedCredentials{Email: creds.Email}
	case err != nil:
		return fmt.Errorf("failed to look up saved credentials: %w", err)
	}

	row.PasswordEnc = enc
	row.StartDate = creds.StartDate
	row.EndDate = creds.EndDate
	row.ReportType = api.ReportTypeDefault

	if err := db.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Load returns the most recently used credentials, or nil when none are stored
func (g *GormCredentialStore) Load(ctx context.Context) (*Credentials, error) {
	var row models.SavedCredentials
	err := g.db.WithContext(ctx).Order("updated_at desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saved credentials: %w", err)
	}

	password, err := g.sealer.Open(row.PasswordEnc)
	if err != nil {
		// key rotated or keychain reset; still prefill everything else
		password = ""
	}
	return &Credentials{
		Email:     row.Email,
		Password:  password,
		StartDate: row.StartDate,
		EndDate:   row.EndDate,
	}, nil
}
