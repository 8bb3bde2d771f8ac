package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/bootstrap"
	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/events"
	"claygrounds-desktop/internal/logger"
	"claygrounds-desktop/internal/models"
	"claygrounds-desktop/internal/services/poller"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "text"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	LoggerType string
	ConfigPath string
	APIURL     string
	DBURL      string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *logrus.Entry
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("config", "Path to a YAML configuration file.").Envar("CLAYGROUNDS_CONFIG").StringVar(&c.ConfigPath)
	app.Flag("api-url", "Claygrounds API base URL, overrides the configuration.").StringVar(&c.APIURL)
	app.Flag("db-url", "Local database URL, overrides the configuration.").StringVar(&c.DBURL)

	return c
}

// SetupLogger builds the logger from the global flags.
func (r *RootCommand) SetupLogger() {
	if r.NoLog {
		r.Logger = logger.Noop()
		return
	}
	level := "info"
	if r.Debug {
		level = "debug"
	}
	r.Logger = logger.New(r.Stderr, level, r.LoggerType)
}

// LoadConfig loads the configuration and applies the flag overrides.
func (r *RootCommand) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(r.ConfigPath)
	if err != nil {
		return nil, err
	}
	if r.APIURL != "" {
		cfg.API.BaseURL = r.APIURL
	}
	if r.DBURL != "" {
		cfg.Database.URL = r.DBURL
	}
	// A command runs to completion, the dashboard return timer only makes sense on screen.
	cfg.Workflow.AutoReturnAfterEmail = false
	return cfg, nil
}

// Services wires the application. Toasts are logged, other events only at debug level.
func (r *RootCommand) Services(onUpdate func(poller.Update)) (*bootstrap.Services, error) {
	cfg, err := r.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}

	emitter := events.Func(func(name string, payload any) {
		log := r.Logger.WithField("event", name)
		if t, ok := payload.(events.Toast); ok {
			if t.Variant == events.ToastError {
				log.Warnf("%s: %s", t.Title, t.Description)
				return
			}
			log.Infof("%s: %s", t.Title, t.Description)
			return
		}
		log.Debug("Event emitted")
	})

	svcs, err := bootstrap.New(cfg, r.Logger, bootstrap.Options{
		Emitter:  emitter,
		Debug:    r.Debug,
		OnUpdate: onUpdate,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create services: %w", err)
	}
	return svcs, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// progressWatcher prints poll updates and hands back the last one.
type progressWatcher struct {
	out  io.Writer
	done chan poller.Update
	once sync.Once
}

func newProgressWatcher(out io.Writer) *progressWatcher {
	return &progressWatcher{out: out, done: make(chan poller.Update, 1)}
}

func (w *progressWatcher) OnUpdate(u poller.Update) {
	switch {
	case u.Err != nil:
		fmt.Fprintf(w.out, "%s  progress unavailable: %s\n", u.OperationID, u.Err)
	case u.Snapshot != nil:
		s := u.Snapshot
		fmt.Fprintf(w.out, "%s  %-9s %3d%%  %d/%d\n", u.OperationID, s.Status, s.Percent, s.Current, s.Total)
	}

	if u.Terminal || u.Exhausted {
		w.once.Do(func() { w.done <- u })
	}
}

func (w *progressWatcher) Wait(ctx context.Context) (poller.Update, error) {
	select {
	case <-ctx.Done():
		return poller.Update{}, ctx.Err()
	case u := <-w.done:
		if u.Exhausted {
			return u, u.Err
		}
		return u, nil
	}
}

// finish prints the outcome of a watched operation.
func finish(out io.Writer, u poller.Update) error {
	if u.Snapshot == nil {
		return fmt.Errorf("operation %s finished without progress", u.OperationID)
	}
	s := u.Snapshot
	fmt.Fprintf(out, "%s finished: %s in %ds\n", u.OperationID, s.Status, s.DurationSeconds)
	if s.Status != models.StatusCompleted {
		if s.Error != "" {
			return fmt.Errorf("operation %s %s: %s", u.OperationID, s.Status, s.Error)
		}
		return fmt.Errorf("operation %s %s", u.OperationID, s.Status)
	}
	return nil
}
