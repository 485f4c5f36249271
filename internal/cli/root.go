package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"replybot/internal/app"
	"replybot/internal/config"
	"replybot/internal/configuration"
	"replybot/internal/dispatch"
	logx "replybot/pkg/logx"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitInput = 2
)

// cli carries the persistent flags shared by every command, including the
// commands run from the interactive shell.
type cli struct {
	cfgPath   string
	envFiles  []string
	verbosity int

	stdout io.Writer
	stderr io.Writer
}

// usageError marks bad flags or arguments; it exits like an input error.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	return c.run(ctx, args)
}

func (c *cli) run(ctx context.Context, args []string) int {
	root := c.newRoot()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintln(c.stderr, color.New(color.FgRed).Render("error:"), err)
	return exitCode(err)
}

func exitCode(err error) int {
	var uerr usageError
	switch {
	case err == nil:
		return ExitOK
	case configuration.IsInputError(err), errors.As(err, &uerr):
		return ExitInput
	default:
		return ExitError
	}
}

func (c *cli) newRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "replybot",
		Short:         "Manage per-conversation auto-reply and scheduled message configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)
	cmd.PersistentFlags().StringVar(&c.cfgPath, "config", c.cfgPath, "config file (.json, .yaml); empty uses defaults and REPLYBOT_* variables")
	cmd.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", c.envFiles, "dotenv files to load before reading the config")
	cmd.PersistentFlags().CountVarP(&c.verbosity, "verbose", "v", "more logging (-v debug, -vv trace)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	cmd.AddCommand(
		c.newServeCmd(),
		c.newConversationCmd(),
		c.newEntryCmd(),
		c.newShellCmd(),
	)
	return cmd
}

// loadConfig reads dotenv files and the config file.
func (c *cli) loadConfig() (*config.Manager, error) {
	if err := config.LoadDotenv(c.envFiles...); err != nil {
		return nil, err
	}
	m := config.NewManager(c.cfgPath)
	if _, err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// openApp builds an App for a one-shot command. Fired replies only matter
// to serve, so the dispatcher just logs.
func (c *cli) openApp() (*app.App, error) {
	m, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	log := logx.NewConsole(logx.VerbosityLevel(c.verbosity, "WARN"))
	return app.New(m, app.WithLogger(nil, log), app.WithDispatcher(dispatch.NewLog(log)))
}

// withApp opens an App, runs fn and closes it again.
func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	a, err := c.openApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Stop(context.WithoutCancel(ctx), app.StopCommand); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func (c *cli) ok(format string, a ...any) {
	fmt.Fprintln(c.stdout, color.New(color.FgGreen).Render("ok:"), fmt.Sprintf(format, a...))
}
