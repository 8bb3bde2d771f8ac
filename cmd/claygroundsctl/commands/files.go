package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/alecthomas/kingpin/v2"

	"claygrounds-desktop/internal/api"
)

type FilesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewFilesCommand returns the files command.
func NewFilesCommand(rootCmd *RootCommand, app *kingpin.Application) *FilesCommand {
	c := &FilesCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("files", "List the valid booking files in the bucket.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c FilesCommand) Name() string { return c.Cmd.FullCommand() }

func (c FilesCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	client, err := api.NewClient(cfg.API, c.rootCmd.Logger)
	if err != nil {
		return fmt.Errorf("could not create api client: %w", err)
	}

	files, err := client.ListValidFiles(ctx)
	if err != nil {
		return fmt.Errorf("could not list files: %w", err)
	}

	if c.format == formatJSON {
		return printJSON(c.rootCmd.Stdout, files)
	}

	w := tabwriter.NewWriter(c.rootCmd.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tUPLOADED\tMODIFIED")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", f.FileName, f.Size, formatTime(f.UploadDate), formatTime(f.LastModified))
	}
	return w.Flush()
}
