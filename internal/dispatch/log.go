package dispatch

import (
	"context"

	logx "replybot/pkg/logx"
)

// Log writes replies to the logger instead of sending them anywhere.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("comp", "dispatch"), logx.String("driver", "log"))}
}

func (l *Log) SendReply(ctx context.Context, conversationID, reply string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.log.Info("scheduled reply",
		logx.String("conversation", conversationID),
		logx.Int("len", len(reply)),
		logx.String("reply", reply),
	)
	return nil
}
