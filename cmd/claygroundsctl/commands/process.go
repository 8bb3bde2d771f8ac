package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"claygrounds-desktop/internal/bootstrap"
	"claygrounds-desktop/internal/services/workflow"
)

type ProcessCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file string
	wait bool
}

// NewProcessCommand returns the process command.
func NewProcessCommand(rootCmd *RootCommand, app *kingpin.Application) *ProcessCommand {
	c := &ProcessCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("process", "Process booking files already stored in the bucket.")
	c.Cmd.Arg("file", `Bucket file name, "all" processes every valid file.`).Default(workflow.AllFiles).StringVar(&c.file)
	c.Cmd.Flag("wait", "Follow progress until processing finishes.").Default("true").BoolVar(&c.wait)

	return c
}

func (c ProcessCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProcessCommand) Run(ctx context.Context) error {
	watcher := newProgressWatcher(c.rootCmd.Stdout)
	svcs, err := c.rootCmd.Services(watcher.OnUpdate)
	if err != nil {
		return err
	}
	defer svcs.Close()

	svcs.Workflow.Open()
	if err := svcs.Workflow.Select(workflow.StepBucketFiles); err != nil {
		return err
	}
	if err := svcs.Workflow.ConfirmBucketFile(ctx, c.file); err != nil {
		return fmt.Errorf("could not start processing: %w", err)
	}

	return followStarted(ctx, c.rootCmd.Stdout, svcs, watcher, c.wait)
}

// followStarted reports the operation the workflow adopted and optionally waits for it.
func followStarted(ctx context.Context, out io.Writer, svcs *bootstrap.Services, watcher *progressWatcher, wait bool) error {
	op := svcs.Operations.Current()
	if op == nil {
		fmt.Fprintln(out, "processing completed immediately")
		return nil
	}
	fmt.Fprintf(out, "operation %s started for %d venues\n", op.ID, op.VenueCount)

	if !wait {
		return nil
	}
	u, err := watcher.Wait(ctx)
	if err != nil {
		return err
	}
	return finish(out, u)
}
