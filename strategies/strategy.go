package strategies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/market"
)

// Strategy turns a trailing candle window into a signal. Evaluate must be a
// pure function of the window and the strategy's parameters.
type Strategy interface {
	Name() string

	// Warmup is the minimum window length Evaluate accepts.
	Warmup() int

	Evaluate(window []market.Candle) (market.Signal, error)
}

// Params holds numeric strategy parameters, as loaded from config.
type Params map[string]float64

func (p Params) Float(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

func (p Params) Int(name string, def int) int {
	if v, ok := p[name]; ok {
		return int(v)
	}
	return def
}

// Bool treats any non-zero value as true.
func (p Params) Bool(name string, def bool) bool {
	if v, ok := p[name]; ok {
		return v != 0
	}
	return def
}

type Constructor func(Params) (Strategy, error)

// Registry maps strategy names to constructors. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry knows every strategy in this package.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("ma_crossover", NewMACrossover)
	r.Register("rsi", NewRSI)
	r.Register("noop", func(Params) (Strategy, error) { return Noop{}, nil })
	return r
}

func (r *Registry) Register(name string, ctor Constructor) {
	r.ctors[normalize(name)] = ctor
}

func (r *Registry) New(name string, params Params) (Strategy, error) {
	ctor, ok := r.ctors[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", errs.ErrUnknownStrategy, name, strings.Join(r.Names(), ", "))
	}
	s, err := ctor(params)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// normalize accepts "ma-crossover", "MA_Crossover" and friends.
func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

func checkWindow(s Strategy, window []market.Candle) error {
	if len(window) < s.Warmup() {
		return fmt.Errorf("%s: not enough candles: need %d, got %d: %w",
			s.Name(), s.Warmup(), len(window), errs.ErrInsufficientData)
	}
	return nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
