package telegram

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/rustyeddy/cryptotrader/command"
	"github.com/rustyeddy/cryptotrader/notify"
)

type recordingCommander struct {
	got []command.Command
}

func (r *recordingCommander) Handle(_ context.Context, c command.Command) command.Result {
	r.got = append(r.got, c)
	return command.Result{Text: "ok " + c.Name}
}

// chatContext implements the parts of tele.Context the bot uses.
type chatContext struct {
	tele.Context
	user *tele.User
	text string
	sent []string
}

func (c *chatContext) Sender() *tele.User { return c.user }
func (c *chatContext) Text() string       { return c.text }
func (c *chatContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what.(string))
	return nil
}

func newBot(t *testing.T) (*Bot, *recordingCommander) {
	t.Helper()
	rc := &recordingCommander{}
	b, err := NewBot(Config{Token: "test-token", ChatID: 42, AllowedUsers: []int64{7}, Offline: true}, rc, zerolog.Nop())
	require.NoError(t, err)
	return b, rc
}

func TestAllowedUserRunsCommand(t *testing.T) {
	t.Parallel()

	b, rc := newBot(t)
	c := &chatContext{user: &tele.User{ID: 7}, text: "/price@bot BTCUSDT"}
	require.NoError(t, b.authorize(b.onText)(c))

	require.Len(t, rc.got, 1)
	assert.Equal(t, "price", rc.got[0].Name)
	assert.Equal(t, []string{"BTCUSDT"}, rc.got[0].Args)
	assert.Equal(t, "7", rc.got[0].User)
	assert.Equal(t, []string{"ok price"}, c.sent)
}

func TestUnknownUserIsRefused(t *testing.T) {
	t.Parallel()

	b, rc := newBot(t)
	c := &chatContext{user: &tele.User{ID: 8}, text: "/buy BTCUSDT 1"}
	require.NoError(t, b.authorize(b.onText)(c))

	assert.Empty(t, rc.got)
	assert.Equal(t, []string{"unauthorized"}, c.sent)
}

func TestPlainTextIgnored(t *testing.T) {
	t.Parallel()

	b, rc := newBot(t)
	c := &chatContext{user: &tele.User{ID: 7}, text: "hello"}
	require.NoError(t, b.authorize(b.onText)(c))
	assert.Empty(t, rc.got)
	assert.Empty(t, c.sent)
}

func TestTokenRequired(t *testing.T) {
	t.Parallel()

	_, err := NewBot(Config{Offline: true}, &recordingCommander{}, zerolog.Nop())
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   notify.Event
		want string
	}{
		{
			name: "filled",
			ev:   notify.Event{Type: notify.OrderFilled, OrderID: "o1", Symbol: "BTCUSDT", Side: "buy", Qty: 0.02, Price: 50000, Exchange: "binance"},
			want: "order o1 filled: BTCUSDT buy 0.02 @ 50000 [binance]",
		},
		{
			name: "closed",
			ev:   notify.Event{Type: notify.PositionClosed, Symbol: "ETHUSDT", Side: "sell", PnL: -12.5, Reason: "stop loss"},
			want: "position closed: ETHUSDT sell pnl -12.50\nstop loss",
		},
		{
			name: "error",
			ev:   notify.Event{Type: notify.Error, Exchange: "binance", Err: "invalid key"},
			want: "error [binance]\ninvalid key",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Format(tt.ev))
		})
	}
}
