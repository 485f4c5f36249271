package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"replybot/internal/task/engine"
	logx "replybot/pkg/logx"
)

// sender is the part of *tele.Bot the dispatcher needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram sends replies through the Bot API. Conversation ids are chat ids,
// optionally suffixed with ":<thread id>" for forum topics.
type Telegram struct {
	cfg TelegramConfig
	bot sender
	lim *rate.Limiter
	log logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegram(cfg, b, log), nil
}

func newTelegram(cfg TelegramConfig, bot sender, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	// Bot API allows about 30 messages per second across chats.
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Telegram{
		cfg: cfg,
		bot: bot,
		lim: rate.NewLimiter(rate.Limit(rps), burst),
		log: log.With(logx.String("comp", "dispatch"), logx.String("driver", "telegram")),
	}
}

func (t *Telegram) SendReply(ctx context.Context, conversationID, reply string) error {
	chatID, threadID, err := parseTarget(conversationID)
	if err != nil {
		return engine.NoRetry(err)
	}

	chat := &tele.Chat{ID: chatID}
	for i, chunk := range splitText(reply, telegramTextLimit, t.cfg.ParseMode) {
		if err := t.lim.Wait(ctx); err != nil {
			return err
		}
		opt := &tele.SendOptions{
			ParseMode:             t.cfg.ParseMode,
			DisableWebPagePreview: t.cfg.DisablePreview,
			ThreadID:              threadID,
		}
		if _, err := t.bot.Send(chat, chunk, opt); err != nil {
			t.log.Warn("send failed",
				logx.String("conversation", conversationID),
				logx.Int("chunk", i),
				logx.Err(err),
			)
			return classify(err)
		}
	}
	t.log.Debug("reply sent", logx.String("conversation", conversationID), logx.Int("len", len(reply)))
	return nil
}

// classify maps Bot API failures onto the engine's retry model: flood waits
// carry their delay, client errors (bad chat, bot blocked) are final.
func classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return engine.RetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return engine.NoRetry(err)
	}
	return err
}

func parseTarget(conversationID string) (chatID int64, threadID int, err error) {
	id := strings.TrimSpace(conversationID)
	chatPart, threadPart, hasThread := strings.Cut(id, ":")
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("conversation %q is not a telegram chat id", conversationID)
	}
	if hasThread {
		threadID, err = strconv.Atoi(threadPart)
		if err != nil || threadID <= 0 {
			return 0, 0, fmt.Errorf("conversation %q has an invalid thread id", conversationID)
		}
	}
	return chatID, threadID, nil
}
