package exchange

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/cryptotrader/internal/errs"
)

// Credentials configure one connector instance.
type Credentials struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

type Constructor func(Credentials) (Connector, error)

// Registry maps exchange names to constructors. It is filled once at startup.
type Registry struct {
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

func (r *Registry) Register(name string, ctor Constructor) {
	r.ctors[strings.ToLower(name)] = ctor
}

func (r *Registry) New(name string, creds Credentials) (Connector, error) {
	ctor, ok := r.ctors[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", errs.ErrUnknownExchange, name, strings.Join(r.Names(), ", "))
	}
	return ctor(creds)
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
