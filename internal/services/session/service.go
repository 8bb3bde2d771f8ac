package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/models"
)

// Service holds authentication state for the email report flow
type Service struct {
	auth  Authenticator
	store CredentialStore
	log   *logrus.Entry

	mu       sync.RWMutex
	state    State
	lastUsed *Credentials
}

// NewService creates a session service; store may be nil
func NewService(auth Authenticator, store CredentialStore, log *logrus.Entry) *Service {
	return &Service{
		auth:  auth,
		store: store,
		log:   log.WithField("svc", "session"),
	}
}

// SignIn validates the form, authenticates and starts the email report.
// Failures are recorded in State().Error until cleared or resubmitted.
func (s *Service) SignIn(ctx context.Context, creds Credentials) Result {
	creds.Email = strings.TrimSpace(creds.Email)

	if err := Validate(creds); err != nil {
		msg := err.Error()
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			msg = ve.Message
		}
		s.setError(msg)
		return Result{Success: false, Message: msg}
	}

	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()

	res, err := s.auth.SignIn(ctx, api.SignInRequest{
		Email:      creds.Email,
		Password:   creds.Password,
		StartDate:  creds.StartDate,
		EndDate:    creds.EndDate,
		ReportType: api.ReportTypeDefault,
	})

	if err != nil {
		msg := MsgNetwork
		if !api.IsNetwork(err) && ctx.Err() == nil {
			msg = api.Message(err, MsgSignInFailed)
		}
		s.log.WithError(err).WithField("email", creds.Email).Warn("Sign in failed")

		s.mu.Lock()
		s.state.Loading = false
		s.state.Error = msg
		s.mu.Unlock()
		return Result{Success: false, Message: msg}
	}

	stored := creds
	s.mu.Lock()
	s.state = State{
		Authenticated:     true,
		LastUsed:          redacted(&stored),
		OperationID:       res.OperationID,
		VenueCount:        res.VenueCount,
		EstimatedDuration: res.EstimatedDuration,
	}
	s.lastUsed = &stored
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"operation":   res.OperationID,
		"venue_count": res.VenueCount,
	}).Info("Signed in")

	if s.store != nil {
		if err := s.store.Save(ctx, stored); err != nil {
			s.log.WithError(err).Warn("Failed to persist last used credentials")
		}
	}

	return Result{
		Success:           true,
		Message:           MsgSignedIn,
		OperationID:       res.OperationID,
		VenueCount:        res.VenueCount,
		EstimatedDuration: res.EstimatedDuration,
	}
}

// State returns a copy of the session state
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.LastUsed != nil {
		c := *st.LastUsed
		st.LastUsed = &c
	}
	return st
}

// SetError records an error raised elsewhere, such as an operation that
// failed because the partner rejected the credentials
func (s *Service) SetError(msg string) {
	s.setError(msg)
}

// ClearError dismisses the current error
func (s *Service) ClearError() {
	s.setError("")
}

// ClearOperationID forgets the operation started by the last sign-in
func (s *Service) ClearOperationID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.OperationID = ""
	s.state.VenueCount = 0
	s.state.EstimatedDuration = 0
}

// SignOut drops the authenticated state; persisted credentials are kept
// for prefilling the form
func (s *Service) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{LastUsed: s.state.LastUsed}
	s.lastUsed = nil
}

// LastUsed returns the credentials of the last successful sign-in, falling
// back to the credential store
func (s *Service) LastUsed(ctx context.Context) (*Credentials, error) {
	s.mu.RLock()
	last := s.lastUsed
	s.mu.RUnlock()
	if last != nil {
		c := *last
		return &c, nil
	}
	if s.store == nil {
		return nil, nil
	}
	return s.store.Load(ctx)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = msg
}

func redacted(c *Credentials) *Credentials {
	r := *c
	r.Password = ""
	return &r
}

// IsAuthError reports whether a server error text points at the credentials
func IsAuthError(msg string) bool {
	m := strings.ToLower(msg)
	for _, needle := range []string{"auth", "credential", "password", "login", "sign in", "unauthori"} {
		if strings.Contains(m, needle) {
			return true
		}
	}
	return false
}
