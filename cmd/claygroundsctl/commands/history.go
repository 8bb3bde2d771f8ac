package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
	clear  bool
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "Show recently finished operations.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)
	c.Cmd.Flag("clear", "Forget every stored operation.").BoolVar(&c.clear)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	svcs, err := c.rootCmd.Services(nil)
	if err != nil {
		return err
	}
	defer svcs.Close()

	if c.clear {
		if err := svcs.History.Clear(ctx); err != nil {
			return fmt.Errorf("could not clear history: %w", err)
		}
		fmt.Fprintln(c.rootCmd.Stdout, "history cleared")
		return nil
	}

	summaries, err := svcs.History.Load(ctx)
	if err != nil {
		return fmt.Errorf("could not load history: %w", err)
	}

	if c.format == formatJSON {
		return printJSON(c.rootCmd.Stdout, summaries)
	}

	w := tabwriter.NewWriter(c.rootCmd.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPROCESSED\tDURATION\tSTORED")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			s.OperationID, s.Kind, s.Status, s.Processed, s.Total,
			time.Duration(s.DurationSeconds)*time.Second, formatTime(s.StoredAt))
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
