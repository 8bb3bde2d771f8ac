package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"claygrounds-desktop/cmd/claygroundsctl/commands"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("claygroundsctl", "Claygrounds booking report operator.")
	app.Version(Version)
	rootCmd := commands.NewRootCommand(app)

	signInCmd := commands.NewSignInCommand(rootCmd, app)
	processCmd := commands.NewProcessCommand(rootCmd, app)
	uploadCmd := commands.NewUploadCommand(rootCmd, app)
	filesCmd := commands.NewFilesCommand(rootCmd, app)
	watchCmd := commands.NewWatchCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)
	statusCmd := commands.NewStatusCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		signInCmd.Name():  signInCmd,
		processCmd.Name(): processCmd,
		uploadCmd.Name():  uploadCmd,
		filesCmd.Name():   filesCmd,
		watchCmd.Name():   watchCmd,
		historyCmd.Name(): historyCmd,
		statusCmd.Name():  statusCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Machine readable output stays clean unless debugging.
	printerCommands := map[string]bool{
		"files":   true,
		"history": true,
		"status":  true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}
	rootCmd.SetupLogger()

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
