// Package telegram connects the trader to a Telegram chat: events are sent
// to the configured chat and allowed users can issue operator commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"

	"github.com/rustyeddy/cryptotrader/command"
	"github.com/rustyeddy/cryptotrader/notify"
)

type Config struct {
	Token        string
	ChatID       int64
	AllowedUsers []int64
	PollTimeout  time.Duration

	// Offline skips the getMe call at construction. Used in tests.
	Offline bool
}

// Commander executes parsed chat commands. *command.Handler implements it.
type Commander interface {
	Handle(ctx context.Context, c command.Command) command.Result
}

type Bot struct {
	bot     *tele.Bot
	cmd     Commander
	chat    tele.ChatID
	allowed map[int64]bool
	log     zerolog.Logger
}

func NewBot(cfg Config, cmd Commander, logger zerolog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	b := &Bot{
		bot:     tb,
		cmd:     cmd,
		chat:    tele.ChatID(cfg.ChatID),
		allowed: make(map[int64]bool, len(cfg.AllowedUsers)),
		log:     logger.With().Str("component", "telegram").Logger(),
	}
	for _, id := range cfg.AllowedUsers {
		b.allowed[id] = true
	}
	if cfg.ChatID != 0 && len(cfg.AllowedUsers) == 0 {
		// a private chat id is the owner's user id
		b.allowed[cfg.ChatID] = true
	}

	tb.Use(middleware.Recover(func(err error, c tele.Context) {
		b.log.Error().Err(err).Str("text", c.Text()).Msg("command panicked")
	}), b.authorize)
	tb.Handle(tele.OnText, b.onText)
	return b, nil
}

func (b *Bot) authorize(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		u := c.Sender()
		if u == nil || !b.allowed[u.ID] {
			id := int64(0)
			if u != nil {
				id = u.ID
			}
			b.log.Warn().Int64("user_id", id).Msg("unauthorized command")
			return c.Send("unauthorized")
		}
		return next(c)
	}
}

func (b *Bot) onText(c tele.Context) error {
	text := c.Text()
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	user := ""
	if u := c.Sender(); u != nil {
		user = strconv.FormatInt(u.ID, 10)
	}
	cmd, ok := command.Parse(text, user)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.Send(b.cmd.Handle(ctx, cmd).String())
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.log.Info().Msg("telegram bot started")
	b.bot.Start()
}

// Channel returns a notifier that posts events to the configured chat.
func (b *Bot) Channel() notify.Notifier {
	return notify.Func(func(e notify.Event) error {
		if b.chat == 0 {
			return nil
		}
		if _, err := b.bot.Send(b.chat, Format(e)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	})
}

// Format renders an event as a short plain text message.
func Format(e notify.Event) string {
	var b strings.Builder
	switch e.Type {
	case notify.OrderSubmitted:
		fmt.Fprintf(&b, "order %s submitted: %s %s %g", e.OrderID, e.Symbol, e.Side, e.Qty)
		if e.Price > 0 {
			fmt.Fprintf(&b, " @ %.8g", e.Price)
		}
	case notify.OrderFilled:
		fmt.Fprintf(&b, "order %s filled: %s %s %g @ %.8g", e.OrderID, e.Symbol, e.Side, e.Qty, e.Price)
	case notify.PositionClosed:
		fmt.Fprintf(&b, "position closed: %s %s pnl %+.2f", e.Symbol, e.Side, e.PnL)
	case notify.RiskRejection:
		fmt.Fprintf(&b, "rejected: %s", e.Symbol)
	case notify.Error:
		b.WriteString("error")
		if e.Symbol != "" {
			fmt.Fprintf(&b, ": %s", e.Symbol)
		}
	default:
		b.WriteString(string(e.Type))
	}
	if e.Exchange != "" {
		fmt.Fprintf(&b, " [%s]", e.Exchange)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, "\n%s", e.Reason)
	}
	if e.Err != "" {
		fmt.Fprintf(&b, "\n%s", e.Err)
	}
	return b.String()
}
