package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"claygrounds-desktop/internal/services/upload"
	"claygrounds-desktop/internal/services/workflow"
)

type UploadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	paths   []string
	process bool
	wait    bool
}

// NewUploadCommand returns the upload command.
func NewUploadCommand(rootCmd *RootCommand, app *kingpin.Application) *UploadCommand {
	c := &UploadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("upload", "Upload booking files and optionally process them.")
	c.Cmd.Arg("paths", "Local booking files.").Required().ExistingFilesVar(&c.paths)
	c.Cmd.Flag("process", "Process the uploaded files.").Default("true").BoolVar(&c.process)
	c.Cmd.Flag("wait", "Follow progress until processing finishes.").Default("true").BoolVar(&c.wait)

	return c
}

func (c UploadCommand) Name() string { return c.Cmd.FullCommand() }

func (c UploadCommand) Run(ctx context.Context) error {
	watcher := newProgressWatcher(c.rootCmd.Stdout)
	svcs, err := c.rootCmd.Services(watcher.OnUpdate)
	if err != nil {
		return err
	}
	defer svcs.Close()

	svcs.Workflow.Open()
	if err := svcs.Workflow.Select(workflow.StepFileUpload); err != nil {
		return err
	}

	names, err := svcs.Upload.UploadFiles(ctx, c.paths)
	if len(names) > 0 {
		fmt.Fprintf(c.rootCmd.Stdout, "uploaded %s\n", strings.Join(names, ", "))
	}
	if err != nil {
		msg := upload.ErrorMessage(err)
		svcs.Workflow.UploadFailed(msg)
		return fmt.Errorf("could not upload files: %w", err)
	}
	if err := svcs.Workflow.UploadSucceeded(names...); err != nil {
		return err
	}

	if !c.process {
		return nil
	}
	if err := svcs.Workflow.ConfirmUpload(ctx); err != nil {
		return fmt.Errorf("could not start processing: %w", err)
	}
	return followStarted(ctx, c.rootCmd.Stdout, svcs, watcher, c.wait)
}
