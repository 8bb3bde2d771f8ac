package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"claygrounds-desktop/internal/services/session"
	"claygrounds-desktop/internal/services/workflow"
)

type SignInCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	email     string
	password  string
	startDate string
	endDate   string
	wait      bool
}

// NewSignInCommand returns the signin command.
func NewSignInCommand(rootCmd *RootCommand, app *kingpin.Application) *SignInCommand {
	c := &SignInCommand{rootCmd: rootCmd}
	start, end := session.DefaultDateRange(time.Now())

	c.Cmd = app.Command("signin", "Sign in and request the email booking report.")
	c.Cmd.Flag("email", "Partner account email.").Envar("CLAYGROUNDS_EMAIL").StringVar(&c.email)
	c.Cmd.Flag("password", "Partner account password.").Envar("CLAYGROUNDS_PASSWORD").StringVar(&c.password)
	c.Cmd.Flag("start-date", "Report start date (YYYY-MM-DD).").Default(start).StringVar(&c.startDate)
	c.Cmd.Flag("end-date", "Report end date (YYYY-MM-DD).").Default(end).StringVar(&c.endDate)
	c.Cmd.Flag("wait", "Follow progress until the report finishes.").Default("true").BoolVar(&c.wait)

	return c
}

func (c SignInCommand) Name() string { return c.Cmd.FullCommand() }

func (c SignInCommand) Run(ctx context.Context) error {
	watcher := newProgressWatcher(c.rootCmd.Stdout)
	svcs, err := c.rootCmd.Services(watcher.OnUpdate)
	if err != nil {
		return err
	}
	defer svcs.Close()

	creds := session.Credentials{
		Email:     c.email,
		Password:  c.password,
		StartDate: c.startDate,
		EndDate:   c.endDate,
	}
	if creds.Email == "" {
		// Fall back to the last account used on this machine.
		last, err := svcs.Session.LastUsed(ctx)
		if err != nil {
			return fmt.Errorf("could not load last used credentials: %w", err)
		}
		if last != nil {
			creds.Email = last.Email
			if creds.Password == "" {
				creds.Password = last.Password
			}
		}
	}

	svcs.Workflow.Open()
	if err := svcs.Workflow.Select(workflow.StepEmailAuth); err != nil {
		return err
	}

	res, err := svcs.Workflow.SubmitEmailAuth(ctx, creds)
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Message)
	}

	fmt.Fprintln(c.rootCmd.Stdout, res.Message)
	if res.OperationID == "" {
		return nil
	}
	fmt.Fprintf(c.rootCmd.Stdout, "operation %s started for %d venues\n", res.OperationID, res.VenueCount)

	if !c.wait {
		return nil
	}
	u, err := watcher.Wait(ctx)
	if err != nil {
		return err
	}
	return finish(c.rootCmd.Stdout, u)
}
