package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"replybot/internal/configuration"
)

type harness struct {
	t   *testing.T
	cfg string
	out bytes.Buffer
	err bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	body := `{"storage":{"driver":"sqlite","path":"` + filepath.ToSlash(filepath.Join(dir, "replybot.db")) + `"}}`
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	return &harness{t: t, cfg: cfg}
}

func (h *harness) cli() *cli {
	return &cli{cfgPath: h.cfg, stdout: &h.out, stderr: &h.err}
}

func (h *harness) run(args ...string) int {
	h.t.Helper()
	h.out.Reset()
	h.err.Reset()
	return h.cli().run(context.Background(), args)
}

func TestConversationAndEntryCommands(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, ExitOK, h.run("conversation", "init", "--", "-1001"))
	require.Contains(t, h.out.String(), "conversation -1001 initialized")

	require.Equal(t, ExitOK, h.run("entry", "add", "--name", "greet", "--regex", "^hello", "--reply", "hi there", "--", "-1001"))
	require.Contains(t, h.out.String(), "entry greet saved in -1001")
	require.Equal(t, ExitOK, h.run("entry", "add", "--name", "daily", "--cron", "0 9 * * *", "--reply", "good morning", "--", "-1001"))

	require.Equal(t, ExitOK, h.run("entry", "list", "--", "-1001"))
	out := h.out.String()
	require.Contains(t, out, "greet")
	require.Contains(t, out, "^hello")
	require.Contains(t, out, "0 9 * * *")
	require.Contains(t, out, "good morning")

	require.Equal(t, ExitOK, h.run("entry", "remove", "--", "-1001", "greet"))
	require.Equal(t, ExitOK, h.run("entry", "list", "--", "-1001"))
	require.NotContains(t, h.out.String(), "greet")

	require.Equal(t, ExitOK, h.run("conversation", "remove", "--", "-1001"))
	require.Equal(t, ExitOK, h.run("entry", "list", "--", "-1001"))
	require.NotContains(t, h.out.String(), "daily")
}

func TestInputErrorsExitTwo(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, ExitOK, h.run("conversation", "init", "42"))

	require.Equal(t, ExitInput, h.run("entry", "add", "42", "--name", "good morning", "--regex", "x", "--reply", "y"))
	require.Contains(t, h.err.String(), "may not contain any whitespace characters")

	require.Equal(t, ExitInput, h.run("entry", "add", "42", "--name", "x", "--cron", "* * *", "--reply", "y"))
	require.Equal(t, ExitInput, h.run("entry", "add", "404", "--name", "x", "--regex", "x", "--reply", "y"))
	require.Equal(t, ExitInput, h.run("entry", "remove", "42", "missing"))
	require.Equal(t, ExitInput, h.run("entry", "remove", "42"))
	require.Equal(t, ExitInput, h.run("entry", "add", "42", "--bogus"))
}

func TestBadConfigExitsOne(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cfg, []byte(`{"storage":{"driver":"postgres"}}`), 0o600))
	require.Equal(t, ExitError, h.run("conversation", "init", "1"))
}

func TestExitCode(t *testing.T) {
	require.Equal(t, ExitOK, exitCode(nil))
	require.Equal(t, ExitInput, exitCode(configuration.ErrConversationNotFound))
	require.Equal(t, ExitInput, exitCode(usageError{errors.New("bad flag")}))
	require.Equal(t, ExitError, exitCode(configuration.ErrStoreUnavailable))
}

func lines(ls ...string) func() (string, error) {
	return func() (string, error) {
		if len(ls) == 0 {
			return "", io.EOF
		}
		l := ls[0]
		ls = ls[1:]
		return l, nil
	}
}

func TestShellRunsCommands(t *testing.T) {
	h := newHarness(t)
	c := h.cli()
	err := c.shell(context.Background(), lines(
		"conversation init 7",
		`entry add 7 --name daily --cron "0 9 * * *" --reply "good morning"`,
		"entry list 7",
		"entry remove 7 nope",
		`entry add 7 --name "unterminated`,
		"log -v",
		"help",
		"exit",
		"entry list 7",
	))
	require.NoError(t, err)
	out := h.out.String()
	require.Contains(t, out, "conversation 7 initialized")
	require.Contains(t, out, "good morning")
	require.Contains(t, out, "log level: DEBUG")
	require.Equal(t, 1, c.verbosity)
	require.Contains(t, h.err.String(), "exit status 2")
	require.Contains(t, h.err.String(), "parse error")
	// nothing after exit ran
	require.Equal(t, 1, strings.Count(out, "good morning"))
}
