package market

import (
	"fmt"
	"strings"
	"time"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign is +1 for buy (long) and -1 for sell (short).
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

type Direction string

const (
	Flat  Direction = "flat"
	Long  Direction = "long"
	Short Direction = "short"
)

// Side maps a directional signal to the entry side.
func (d Direction) Side() (Side, bool) {
	switch d {
	case Long:
		return Buy, true
	case Short:
		return Sell, true
	}
	return "", false
}

// Exit is an optional close request carried by a flat signal.
type Exit string

const (
	ExitNone  Exit = ""
	ExitLong  Exit = "close_long"
	ExitShort Exit = "close_short"
)

// Signal is a strategy's directional opinion for one evaluation cycle.
type Signal struct {
	Symbol     string
	Direction  Direction
	Exit       Exit
	Confidence float64
	Price      float64 // close of the signal candle

	// GeneratedAt is the signal candle's open time.
	GeneratedAt time.Time
	Reason      string
	Meta        map[string]float64
}

func FlatSignal(c Candle) Signal {
	return Signal{
		Symbol:      c.Symbol,
		Direction:   Flat,
		Price:       c.Close,
		GeneratedAt: c.OpenTime,
	}
}
