package commands

import (
	"context"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"claygrounds-desktop/internal/models"
	"claygrounds-desktop/internal/services/history"
	"claygrounds-desktop/internal/services/poller"
)

const summaryTimeout = 5 * time.Second

type WatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	operationID string
	total       int
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootCmd *RootCommand, app *kingpin.Application) *WatchCommand {
	c := &WatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("watch", "Follow the progress of a running operation.")
	c.Cmd.Arg("operation-id", "Operation to follow.").Required().StringVar(&c.operationID)
	c.Cmd.Flag("total", "Expected number of venues, used while the server reports none.").IntVar(&c.total)

	return c
}

func (c WatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c WatchCommand) Run(ctx context.Context) error {
	watcher := newProgressWatcher(c.rootCmd.Stdout)

	// The workflow ignores operations it did not start, so the store is fed here.
	var apply func(poller.Update)
	svcs, err := c.rootCmd.Services(func(u poller.Update) {
		apply(u)
		watcher.OnUpdate(u)
	})
	if err != nil {
		return err
	}
	defer svcs.Close()

	apply = func(u poller.Update) {
		if !u.Fresh() {
			return
		}
		op, err := svcs.Operations.ApplySnapshot(u.Snapshot)
		if err != nil {
			c.rootCmd.Logger.WithError(err).Warn("Progress update rejected")
			return
		}
		if !u.Terminal {
			return
		}

		summary, err := history.NewSummary(op)
		if err != nil {
			c.rootCmd.Logger.WithError(err).Warn("Could not build progress summary")
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		defer cancel()
		if _, err := svcs.History.Save(sctx, summary); err != nil {
			c.rootCmd.Logger.WithError(err).Warn("Could not store progress summary")
		}
	}

	svcs.Operations.SetCurrent(&models.Operation{
		ID:        c.operationID,
		Kind:      models.KindBookingsProcess,
		Status:    models.StatusPending,
		Total:     c.total,
		StartTime: time.Now(),
	})
	svcs.Poller.Track(c.operationID, c.total)

	u, err := watcher.Wait(ctx)
	if err != nil {
		return err
	}
	return finish(c.rootCmd.Stdout, u)
}
