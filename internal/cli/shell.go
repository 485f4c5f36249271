package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	logx "replybot/pkg/logx"
)

func (c *cli) newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell running replybot subcommands",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          prompt,
				HistoryFile:     filepath.Join(os.TempDir(), "replybot-shell.history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.stdout,
				Stderr:          c.stderr,
			})
			if err != nil {
				return err
			}
			defer rl.Close()
			fmt.Fprintln(c.stdout, "replybot shell. 'help' lists commands, 'exit' quits.")
			return c.shell(cmd.Context(), rl.Readline)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "replybot> ", "shell prompt")
	return cmd
}

// shell reads lines until EOF or exit and runs each as a command line.
// Errors are printed and the session goes on.
func (c *cli) shell(ctx context.Context, readLine func() (string, error)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := readLine()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			c.printShellHelp()
			continue
		}

		tokens, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintln(c.stderr, color.New(color.FgRed).Render("parse error:"), err)
			continue
		}
		switch tokens[0] {
		case "shell":
			fmt.Fprintln(c.stdout, "already in the shell")
			continue
		case "serve":
			fmt.Fprintln(c.stdout, "serve runs the daemon; start it outside the shell")
			continue
		case "log":
			if err := c.shellLog(tokens[1:]); err != nil {
				fmt.Fprintln(c.stderr, color.New(color.FgRed).Render("log:"), err)
			}
			continue
		}

		// a fresh tree per line so flag values don't leak between commands
		sub := &cli{cfgPath: c.cfgPath, envFiles: c.envFiles, verbosity: c.verbosity, stdout: c.stdout, stderr: c.stderr}
		if code := sub.run(ctx, tokens); code != ExitOK {
			fmt.Fprintln(c.stderr, color.New(color.FgYellow).Render(fmt.Sprintf("exit status %d", code)))
		}
	}
}

func (c *cli) shellLog(args []string) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var vcount int
	fs.CountVarP(&vcount, "verbose", "v", "more logging")
	quiet := fs.BoolP("quiet", "q", false, "back to warnings only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case *quiet:
		c.verbosity = 0
	case vcount > 0:
		c.verbosity = vcount
	}
	fmt.Fprintf(c.stdout, "log level: %s\n", logx.VerbosityLevel(c.verbosity, "WARN"))
	return nil
}

func (c *cli) printShellHelp() {
	fmt.Fprintln(c.stdout, `Examples (group chat ids are negative; put them after --):
  conversation init -- -1001234                        # create an empty set
  entry add --name greet --regex hi --reply hello -- -1001234
  entry add --name daily --cron '0 9 * * *' --reply 'rise and shine' -- -1001234
  entry list -- -1001234                               # entries and next runs
  entry remove -- -1001234 greet
  conversation remove -- -1001234                      # delete set, unschedule
  log -vv | log -q                                     # change log verbosity
  exit / quit`)
}
