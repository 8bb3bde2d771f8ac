package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/crypto"
	"claygrounds-desktop/internal/database"
	"claygrounds-desktop/internal/events"
	"claygrounds-desktop/internal/services/dashboard"
	"claygrounds-desktop/internal/services/history"
	"claygrounds-desktop/internal/services/operation"
	"claygrounds-desktop/internal/services/poller"
	"claygrounds-desktop/internal/services/session"
	"claygrounds-desktop/internal/services/upload"
	"claygrounds-desktop/internal/services/workflow"
)

// Options tune how the service graph is built
type Options struct {
	Emitter events.Emitter
	// Debug switches the gorm logger to Info
	Debug bool
	// KeyStore holds the credentials key; nil uses the default keychain service
	KeyStore *crypto.KeyStore
	// OnUpdate, when set, also receives every poller update
	OnUpdate func(poller.Update)
}

// Services is the wired application
type Services struct {
	Config     *config.Config
	Log        *logrus.Entry
	DB         *gorm.DB
	Client     *api.Client
	Operations *operation.Store
	Poller     *poller.Poller
	Session    *session.Service
	History    *history.Cache
	Upload     *upload.Service
	Workflow   *workflow.Machine
	Dashboard  *dashboard.Service
}

// New opens the database and builds every service. Credentials are only
// persisted when an encryption key is available.
func New(cfg *config.Config, log *logrus.Entry, opts Options) (*Services, error) {
	if opts.Emitter == nil {
		opts.Emitter = events.Noop{}
	}
	if opts.KeyStore == nil {
		opts.KeyStore = crypto.NewKeyStore(crypto.DefaultKeystoreService)
	}

	db, err := database.Init(cfg.Database, opts.Debug, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client, err := api.NewClient(cfg.API, log)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	var credentials session.CredentialStore
	if sealer, err := crypto.Load(opts.KeyStore, log); err != nil {
		log.WithError(err).Warn("Encryption unavailable, last used credentials will not be saved")
	} else {
		credentials = session.NewGormCredentialStore(db, sealer)
	}

	s := &Services{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Client:     client,
		Operations: operation.NewStore(log),
		Session:    session.NewService(client, credentials, log),
		History:    history.NewCache(db, cfg.History, log),
		Upload:     upload.NewService(client, cfg.Upload, log),
		Dashboard:  dashboard.NewService(client, cfg.Refresh, opts.Emitter, log),
	}

	s.Poller = poller.New(client, poller.ConfigFrom(cfg.Polling), func(u poller.Update) {
		s.Workflow.HandleUpdate(u)
		if opts.OnUpdate != nil {
			opts.OnUpdate(u)
		}
	}, log)

	s.Workflow = workflow.New(workflow.Deps{
		Session:    s.Session,
		Processor:  client,
		Tracker:    s.Poller,
		Operations: s.Operations,
		Summaries:  s.History,
		Emitter:    opts.Emitter,
	}, cfg.Workflow, log)

	return s, nil
}

// Close stops polling and closes the database
func (s *Services) Close() error {
	s.Poller.Stop()
	if err := database.Close(s.DB); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
