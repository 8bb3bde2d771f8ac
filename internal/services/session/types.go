package session

import (
	"context"

	"claygrounds-desktop/internal/api"
)

const (
	// MsgSignInFailed is shown when the server rejects a sign-in without saying why
	MsgSignInFailed = "Sign in failed"
	// MsgNetwork is shown for every transport failure
	MsgNetwork = "Network error. Please try again."
	// MsgSignedIn accompanies a successful sign-in
	MsgSignedIn = "Sign in successful"
)

// Credentials is what the user types into the email report form
type Credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Result of a sign-in attempt
type Result struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	OperationID       string `json:"operationId,omitempty"`
	VenueCount        int    `json:"venueCount,omitempty"`
	EstimatedDuration int    `json:"estimatedDuration,omitempty"`
}

// State is the observable session state
type State struct {
	Authenticated     bool         `json:"authenticated"`
	Loading           bool         `json:"loading"`
	Error             string       `json:"error,omitempty"`
	LastUsed          *Credentials `json:"lastUsed,omitempty"` // password withheld
	OperationID       string       `json:"operationId,omitempty"`
	VenueCount        int          `json:"venueCount,omitempty"`
	EstimatedDuration int          `json:"estimatedDuration,omitempty"`
}

// Authenticator performs the combined sign-in and report start request
type Authenticator interface {
	SignIn(ctx context.Context, req api.SignInRequest) (api.StartResult, error)
}

// CredentialStore persists the last used credentials between launches
type CredentialStore interface {
	Save(ctx context.Context, creds Credentials) error
	Load(ctx context.Context) (*Credentials, error)
}
