package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/crypto"
	"claygrounds-desktop/internal/database"
	applog "claygrounds-desktop/internal/logger"
)

type fakeAuth struct {
	mu       sync.Mutex
	requests []api.SignInRequest
	result   api.StartResult
	err      error
}

func (f *fakeAuth) SignIn(_ context.Context, req api.SignInRequest) (api.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type memStore struct {
	saved *Credentials
	err   error
}

func (m *memStore) Save(_ context.Context, c Credentials) error {
	if m.err != nil {
		return m.err
	}
	m.saved = &c
	return nil
}

func (m *memStore) Load(context.Context) (*Credentials, error) {
	return m.saved, m.err
}

func validCreds() Credentials {
	return Credentials{Email: "a@b.com", Password: "x", StartDate: "2025-07-01", EndDate: "2025-07-31"}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("Should authenticate and expose the started operation", func(t *testing.T) {
		auth := &fakeAuth{result: api.StartResult{OperationID: "op-1", VenueCount: 5, EstimatedDuration: 120}}
		store := &memStore{}
		svc := NewService(auth, store, applog.Noop())

		res := svc.SignIn(ctx, validCreds())

		assert.True(t, res.Success)
		assert.Equal(t, MsgSignedIn, res.Message)
		assert.Equal(t, "op-1", res.OperationID)
		assert.Equal(t, 5, res.VenueCount)

		st := svc.State()
		assert.True(t, st.Authenticated)
		assert.False(t, st.Loading)
		assert.Empty(t, st.Error)
		assert.Equal(t, "op-1", st.OperationID)
		assert.Equal(t, 5, st.VenueCount)
		require.NotNil(t, st.LastUsed)
		assert.Equal(t, "a@b.com", st.LastUsed.Email)
		assert.Empty(t, st.LastUsed.Password)

		require.Len(t, auth.requests, 1)
		assert.Equal(t, api.ReportTypeDefault, auth.requests[0].ReportType)
		assert.Equal(t, "2025-07-01", auth.requests[0].StartDate)

		require.NotNil(t, store.saved)
		assert.Equal(t, "x", store.saved.Password)
	})

	t.Run("Should keep the server message after a rejection", func(t *testing.T) {
		auth := &fakeAuth{err: &api.RejectedError{Message: "Invalid credentials"}}
		svc := NewService(auth, nil, applog.Noop())

		res := svc.SignIn(ctx, validCreds())

		assert.False(t, res.Success)
		assert.Equal(t, "Invalid credentials", res.Message)
		st := svc.State()
		assert.False(t, st.Authenticated)
		assert.Equal(t, "Invalid credentials", st.Error)
		assert.Empty(t, st.OperationID)
	})

	t.Run("Should fall back to the generic failure message", func(t *testing.T) {
		auth := &fakeAuth{err: &api.StatusError{StatusCode: 500}}
		svc := NewService(auth, nil, applog.Noop())

		res := svc.SignIn(ctx, validCreds())
		assert.Equal(t, MsgSignInFailed, res.Message)
	})

	t.Run("Should report network errors with the network message", func(t *testing.T) {
		auth := &fakeAuth{err: fmt.Errorf("%w: dial tcp: connection refused", api.ErrNetwork)}
		svc := NewService(auth, nil, applog.Noop())

		res := svc.SignIn(ctx, validCreds())
		assert.Equal(t, MsgNetwork, res.Message)
		assert.Equal(t, MsgNetwork, svc.State().Error)
	})

	t.Run("Should clear the previous error on a new submission", func(t *testing.T) {
		auth := &fakeAuth{err: &api.RejectedError{Message: "Invalid credentials"}}
		svc := NewService(auth, nil, applog.Noop())
		svc.SignIn(ctx, validCreds())
		require.NotEmpty(t, svc.State().Error)

		auth.err = nil
		auth.result = api.StartResult{OperationID: "op-2"}
		res := svc.SignIn(ctx, validCreds())

		assert.True(t, res.Success)
		assert.Empty(t, svc.State().Error)
	})

	t.Run("Should block invalid input without a network call", func(t *testing.T) {
		auth := &fakeAuth{}
		svc := NewService(auth, nil, applog.Noop())

		creds := validCreds()
		creds.StartDate = "2025-08-01"
		res := svc.SignIn(ctx, creds)

		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Message)
		assert.Equal(t, res.Message, svc.State().Error)
		assert.Zero(t, auth.calls())
	})

	t.Run("Should still succeed when persisting credentials fails", func(t *testing.T) {
		auth := &fakeAuth{result: api.StartResult{OperationID: "op-1"}}
		svc := NewService(auth, &memStore{err: fmt.Errorf("disk full")}, applog.Noop())

		res := svc.SignIn(ctx, validCreds())
		assert.True(t, res.Success)
	})
}

func TestSessionState(t *testing.T) {
	ctx := context.Background()

	t.Run("Should keep an error until cleared", func(t *testing.T) {
		svc := NewService(&fakeAuth{}, nil, applog.Noop())
		svc.SetError("Authentication expired")
		assert.Equal(t, "Authentication expired", svc.State().Error)

		svc.ClearError()
		assert.Empty(t, svc.State().Error)
	})

	t.Run("Should forget the operation id", func(t *testing.T) {
		auth := &fakeAuth{result: api.StartResult{OperationID: "op-1", VenueCount: 5}}
		svc := NewService(auth, nil, applog.Noop())
		svc.SignIn(ctx, validCreds())

		svc.ClearOperationID()
		st := svc.State()
		assert.Empty(t, st.OperationID)
		assert.Zero(t, st.VenueCount)
		assert.True(t, st.Authenticated)
	})

	t.Run("Should sign out but remember the last used email", func(t *testing.T) {
		auth := &fakeAuth{result: api.StartResult{OperationID: "op-1"}}
		store := &memStore{}
		svc := NewService(auth, store, applog.Noop())
		svc.SignIn(ctx, validCreds())

		svc.SignOut()
		st := svc.State()
		assert.False(t, st.Authenticated)
		require.NotNil(t, st.LastUsed)
		assert.Equal(t, "a@b.com", st.LastUsed.Email)

		last, err := svc.LastUsed(ctx)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, "x", last.Password)
	})

	t.Run("Should return nil last used without a store", func(t *testing.T) {
		svc := NewService(&fakeAuth{}, nil, applog.Noop())
		last, err := svc.LastUsed(ctx)
		require.NoError(t, err)
		assert.Nil(t, last)
	})
}

func TestIsAuthError(t *testing.T) {
	t.Run("Should match credential related failures", func(t *testing.T) {
		assert.True(t, IsAuthError("Authentication failed for partner portal"))
		assert.True(t, IsAuthError("Invalid password"))
		assert.True(t, IsAuthError("401 Unauthorized"))
	})

	t.Run("Should ignore unrelated failures", func(t *testing.T) {
		assert.False(t, IsAuthError("Venue export timed out"))
		assert.False(t, IsAuthError(""))
	})
}

func TestGormCredentialStore(t *testing.T) {
	ctx := context.Background()
	sealer, err := crypto.NewSealer(crypto.KeyFromString("test-key"))
	require.NoError(t, err)

	t.Run("Should return nil when nothing is stored", func(t *testing.T) {
		store := NewGormCredentialStore(setupTestDB(t), sealer)
		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should round trip with the password encrypted at rest", func(t *testing.T) {
		db := setupTestDB(t)
		store := NewGormCredentialStore(db, sealer)
		require.NoError(t, store.Save(ctx, validCreds()))

		var enc string
		require.NoError(t, db.Table("saved_credentials").Select("password_enc").Row().Scan(&enc))
		assert.NotEqual(t, "x", enc)
		assert.NotEmpty(t, enc)

		got, err := store.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, validCreds(), *got)
	})

	t.Run("Should upsert by email and load the most recent", func(t *testing.T) {
		db := setupTestDB(t)
		store := NewGormCredentialStore(db, sealer)
		require.NoError(t, store.Save(ctx, validCreds()))

		other := validCreds()
		other.Email = "c@d.com"
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, store.Save(ctx, other))

		again := validCreds()
		again.EndDate = "2025-07-15"
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, store.Save(ctx, again))

		var count int64
		require.NoError(t, db.Table("saved_credentials").Count(&count).Error)
		assert.Equal(t, int64(2), count)

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", got.Email)
		assert.Equal(t, "2025-07-15", got.EndDate)
	})

	t.Run("Should drop the password when it cannot be decrypted", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, NewGormCredentialStore(db, sealer).Save(ctx, validCreds()))

		otherSealer, err := crypto.NewSealer(crypto.KeyFromString("another-key"))
		require.NoError(t, err)
		got, err := NewGormCredentialStore(db, otherSealer).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", got.Email)
		assert.Empty(t, got.Password)
	})
}
