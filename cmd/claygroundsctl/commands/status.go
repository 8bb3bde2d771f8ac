package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/alecthomas/kingpin/v2"

	"claygrounds-desktop/internal/services/dashboard"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Show admin stats and database health.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	svcs, err := c.rootCmd.Services(nil)
	if err != nil {
		return err
	}
	defer svcs.Close()

	// Partial results are still worth printing.
	refreshErr := svcs.Dashboard.RefreshAll(ctx)
	snap := svcs.Dashboard.Snapshot()

	if c.format == formatJSON {
		if err := printJSON(c.rootCmd.Stdout, snap); err != nil {
			return err
		}
	} else {
		printSnapshot(c.rootCmd.Stdout, snap)
	}

	if refreshErr != nil {
		return fmt.Errorf("dashboard refresh incomplete: %w", refreshErr)
	}
	return nil
}

func printSnapshot(out io.Writer, snap dashboard.Snapshot) {
	if s := snap.Stats.Value; s != nil {
		fmt.Fprintf(out, "Venues:      %d (%d facilities, %d regions, %d cities)\n",
			s.Counts.Venues, s.Counts.Facilities, s.Counts.Regions, s.Counts.Cities)
		fmt.Fprintf(out, "Admins:      %d\n", s.Counts.Admins)
		if s.DataFreshness.SyncStatus != "" {
			fmt.Fprintf(out, "Sync:        %s\n", s.DataFreshness.SyncStatus)
		}
	} else {
		fmt.Fprintf(out, "Stats:       %s\n", snap.Stats.Error)
	}

	if h := snap.Health.Value; h != nil {
		fmt.Fprintf(out, "Database:    %s (%s)\n", h.Status, h.ResponseTime)
		for _, name := range slices.Sorted(maps.Keys(h.Database.Modules)) {
			m := h.Database.Modules[name]
			fmt.Fprintf(out, "  %-10s %s, %d records\n", name, m.Status, m.RecordCount)
		}
	} else {
		fmt.Fprintf(out, "Database:    %s\n", snap.Health.Error)
	}

	if v := snap.Venues.Value; v != nil {
		fmt.Fprintf(out, "Venue data:  %s, %s accurate, %d real time vs %d scheduled\n",
			v.Summary.HealthStatus, v.Summary.AccuracyPercentage, v.Summary.RealTimeVenues, v.Summary.ScheduledVenues)
	} else {
		fmt.Fprintf(out, "Venue data:  %s\n", snap.Venues.Error)
	}
}
