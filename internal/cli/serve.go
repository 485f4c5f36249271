package cli

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"replybot/internal/app"
	logx "replybot/pkg/logx"
)

func (c *cli) newServeCmd() *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler daemon (fires scheduled replies, follows store changes)",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadConfig()
			if err != nil {
				return err
			}
			cfg := m.Get()
			if c.verbosity > 0 {
				cfg.Logging.Level = logx.VerbosityLevel(c.verbosity, cfg.Logging.Level)
			}

			a, err := app.New(m)
			if err != nil {
				return err
			}
			log := a.Log()

			ctx := cmd.Context()
			if _, err := a.Start(ctx); err != nil {
				_ = a.Stop(context.WithoutCancel(ctx), app.StopFatalError)
				return err
			}
			notify(log, daemon.SdNotifyReady)

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}
			notify(log, daemon.SdNotifyStopping)

			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			if err := a.Stop(sctx, reason); err != nil {
				return err
			}
			return a.Err()
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
	return cmd
}

// notify tells systemd about state changes. Outside systemd it is a no-op.
func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
