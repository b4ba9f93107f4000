package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/rustyeddy/cryptotrader/exchange"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
	writeTimeout = 10 * time.Second
)

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type markPriceEvent struct {
	Event  string `json:"e"`
	Time   int64  `json:"E"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// StreamPrices subscribes to the mark price stream of each symbol and calls
// fn for every update. It reconnects with backoff until ctx is done.
func (c *Connector) StreamPrices(ctx context.Context, symbols []string, fn func(exchange.Tick)) error {
	if len(symbols) == 0 {
		return fmt.Errorf("%s stream: no symbols", Name)
	}
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@markPrice@1s"
	}
	url := strings.TrimRight(c.streamURL, "/") + "/stream?streams=" + strings.Join(streams, "/")

	b := &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: true}
	for {
		received, err := c.stream(ctx, url, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			b.Reset()
		}
		wait := b.Duration()
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("price stream disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// stream runs one connection. It reports whether any message arrived.
func (c *Connector) stream(ctx context.Context, url string, fn func(exchange.Tick)) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	c.log.Debug().Str("url", url).Msg("price stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// unblocks ReadMessage
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	received := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return received, err
		}
		received = true
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		tick, ok, err := parseMarkPrice(msg)
		if err != nil {
			c.log.Debug().Err(err).Msg("bad stream message")
			continue
		}
		if ok {
			fn(tick)
		}
	}
}

func parseMarkPrice(msg []byte) (exchange.Tick, bool, error) {
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return exchange.Tick{}, false, err
	}
	data := env.Data
	if len(data) == 0 {
		data = msg
	}
	var ev markPriceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return exchange.Tick{}, false, err
	}
	if ev.Event != "markPriceUpdate" || ev.Symbol == "" {
		return exchange.Tick{}, false, nil
	}
	p := parseFloat(ev.Price)
	if p <= 0 {
		return exchange.Tick{}, false, nil
	}
	return exchange.Tick{Symbol: ev.Symbol, Price: p, Time: time.UnixMilli(ev.Time).UTC()}, true, nil
}
