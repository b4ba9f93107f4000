package notify

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiIsolatesFailures(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(10)
	boom := Func(func(Event) error { return errors.New("chat down") })

	err := Multi{boom, nil, rec}.Notify(New(OrderFilled, time.Time{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat down")
	assert.Equal(t, 1, rec.Count(OrderFilled))
}

func TestRecorderLimit(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(2)
	for _, typ := range []Type{OrderSubmitted, OrderFilled, PositionClosed} {
		require.NoError(t, rec.Notify(New(typ, time.Time{})))
	}
	got := rec.Events()
	require.Len(t, got, 2)
	assert.Equal(t, OrderFilled, got[0].Type)
	assert.Equal(t, PositionClosed, got[1].Type)
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	a, b := New(Error, time.Time{}), New(Error, time.Time{})
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)

	e := a.WithErr(errors.New("x"))
	assert.Equal(t, "x", e.Err)
}

func TestLogChannel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := LogChannel{Logger: zerolog.New(&buf)}

	e := New(PositionClosed, time.Time{})
	e.Symbol = "BTCUSDT"
	e.PnL = 12.5
	e.Reason = "take profit"
	require.NoError(t, c.Notify(e))

	out := buf.String()
	assert.Contains(t, out, `"event":"position_closed"`)
	assert.Contains(t, out, `"pnl":12.5`)
	assert.Contains(t, out, `"message":"take profit"`)
}
