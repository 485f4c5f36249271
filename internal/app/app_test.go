package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"replybot/internal/config"
	"replybot/internal/configuration"
	logx "replybot/pkg/logx"
)

type recorder struct {
	mu      sync.Mutex
	replies map[string][]string
}

func newRecorder() *recorder { return &recorder{replies: map[string][]string{}} }

func (r *recorder) SendReply(ctx context.Context, conversationID, reply string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[conversationID] = append(r.replies[conversationID], reply)
	return nil
}

func (r *recorder) got(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replies[id]...)
}

func writeConfig(t *testing.T, body string) *config.Manager {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	m := config.NewManager(p)
	_, err := m.Load()
	require.NoError(t, err)
	return m
}

func newApp(t *testing.T, m *config.Manager, d *recorder) *App {
	t.Helper()
	a, err := New(m, WithLogger(nil, logx.Nop()), WithDispatcher(d))
	require.NoError(t, err)
	return a
}

func stop(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopCommand))
}

func everySecond(reply string) configuration.ConfigEntry {
	return configuration.ConfigEntry{ConfigName: "tick", CronExpression: lo.ToPtr("* * * * * *"), Reply: reply}
}

func TestStartedAppFiresScheduledReplies(t *testing.T) {
	m := writeConfig(t, `{"storage":{"driver":"memory"},"scheduler":{"resync_interval":"0s"}}`)
	rec := newRecorder()
	a := newApp(t, m, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := a.Start(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	defer stop(t, a)

	svc := a.Configurations()
	require.NoError(t, svc.InitializeConversation(ctx, "-1001"))
	require.NoError(t, svc.AddConfiguration(ctx, "-1001", everySecond("tick")))

	require.Eventually(t, func() bool { return len(rec.got("-1001")) > 0 }, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, "tick", rec.got("-1001")[0])
}

func TestDaemonPicksUpChangesFromAnotherProcess(t *testing.T) {
	db := filepath.Join(t.TempDir(), "replybot.db")
	body := `{"storage":{"driver":"sqlite","path":"` + filepath.ToSlash(db) + `"},"scheduler":{"resync_interval":"50ms"}}`

	daemonRec := newRecorder()
	daemon := newApp(t, writeConfig(t, body), daemonRec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := daemon.Start(ctx)
	require.NoError(t, err)
	defer stop(t, daemon)

	// a CLI invocation: same store, never started
	cli := newApp(t, writeConfig(t, body), newRecorder())
	svc := cli.Configurations()
	require.NoError(t, svc.InitializeConversation(ctx, "42"))
	require.NoError(t, svc.AddConfiguration(ctx, "42", everySecond("from cli")))
	stop(t, cli)

	require.Eventually(t, func() bool { return len(daemonRec.got("42")) > 0 }, 4*time.Second, 20*time.Millisecond)
	require.Equal(t, "from cli", daemonRec.got("42")[0])

	// removal propagates the same way
	cli = newApp(t, writeConfig(t, body), newRecorder())
	require.NoError(t, cli.Configurations().RemoveConversation(ctx, "42"))
	stop(t, cli)
	require.Eventually(t, func() bool { return !daemon.Scheduler().Has("42/tick") }, 2*time.Second, 20*time.Millisecond)
}

func TestRestoreOnStart(t *testing.T) {
	db := filepath.Join(t.TempDir(), "replybot.db")
	body := `{"storage":{"driver":"sqlite","path":"` + filepath.ToSlash(db) + `"}}`
	ctx := context.Background()

	cli := newApp(t, writeConfig(t, body), newRecorder())
	svc := cli.Configurations()
	require.NoError(t, svc.InitializeConversation(ctx, "7"))
	require.NoError(t, svc.AddConfiguration(ctx, "7", configuration.ConfigEntry{ConfigName: "daily", CronExpression: lo.ToPtr("0 9 * * *"), Reply: "morning"}))
	require.NoError(t, svc.AddConfiguration(ctx, "7", configuration.ConfigEntry{ConfigName: "greet", Regex: lo.ToPtr("hi"), Reply: "hello"}))
	stop(t, cli)

	daemon := newApp(t, writeConfig(t, body), newRecorder())
	n, err := daemon.Start(ctx)
	require.NoError(t, err)
	defer stop(t, daemon)
	require.Equal(t, 1, n)
	require.True(t, daemon.Scheduler().Has("7/daily"))
	require.False(t, daemon.Scheduler().Has("7/greet"))
}

func TestStartTwiceFails(t *testing.T) {
	a := newApp(t, writeConfig(t, `{"storage":{"driver":"memory"}}`), newRecorder())
	_, err := a.Start(context.Background())
	require.NoError(t, err)
	defer stop(t, a)
	_, err = a.Start(context.Background())
	require.Error(t, err)
}

func TestNewRejectsBadStorage(t *testing.T) {
	m := writeConfig(t, `{"storage":{"driver":"memory"}}`)
	m.Get().Storage.Driver = "etcd"
	_, err := New(m, WithLogger(nil, logx.Nop()), WithDispatcher(newRecorder()))
	require.Error(t, err)
}

func TestMapScheduler(t *testing.T) {
	cfg := config.Default()
	sc, jobTimeout, resync, err := mapScheduler(cfg)
	require.NoError(t, err)
	require.Empty(t, sc.Timezone)
	require.Equal(t, defaultJobTimeout, jobTimeout)
	require.Equal(t, defaultResyncInterval, resync)

	cfg.Scheduler.ResyncInterval = "0s"
	_, _, resync, err = mapScheduler(cfg)
	require.NoError(t, err)
	require.Zero(t, resync)
}
