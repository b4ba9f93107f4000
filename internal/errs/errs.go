// Package errs defines the error taxonomy shared by the connectors, the risk
// manager and the ledger.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientNetwork covers timeouts, rate limits and dropped connections.
	// Callers retry these with backoff.
	ErrTransientNetwork = errors.New("transient network error")

	ErrInvalidOrderParams = errors.New("invalid order params")
	ErrBelowMinimumSize   = errors.New("below minimum size")
	ErrExposureExceeded   = errors.New("exposure exceeded")
	ErrInsufficientFunds  = errors.New("insufficient funds")

	// ErrAuthentication disables the affected exchange.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInsufficientData means a strategy window is shorter than its warmup.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvariant is a ledger programming error. Never retried or swallowed.
	ErrInvariant = errors.New("ledger invariant violation")

	ErrUnknownOrder    = errors.New("order not found")
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrUnknownExchange = errors.New("unknown exchange")
	ErrNoData          = errors.New("no historical data")
)

// ExchangeError is returned by connectors. Kind is one of the sentinels above
// so errors.Is works against the taxonomy while Err keeps the raw cause.
type ExchangeError struct {
	Exchange string
	Op       string
	Code     int64
	Kind     error
	Err      error
}

func (e *ExchangeError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: %v [code %d]: %v", e.Exchange, e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Exchange, e.Op, e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewExchangeError builds an ExchangeError. A nil kind is treated as transient.
func NewExchangeError(exchange, op string, code int64, kind, err error) *ExchangeError {
	if kind == nil {
		kind = ErrTransientNetwork
	}
	return &ExchangeError{Exchange: exchange, Op: op, Code: code, Kind: kind, Err: err}
}

// RiskError is a local rejection produced while sizing or validating an order.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Kind    error
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("%v: %s (%.8g vs limit %.8g)", e.Kind, e.Rule, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error {
	return e.Kind
}

func NewRiskError(kind error, rule string, current, limit float64) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Kind: kind}
}

// InvariantError reports a broken ledger invariant.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvariant, e.Op, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

func Invariant(op, format string, args ...any) *InvariantError {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

// IsRejection reports local rejections: no retry, ledger untouched.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidOrderParams) ||
		errors.Is(err, ErrBelowMinimumSize) ||
		errors.Is(err, ErrExposureExceeded) ||
		errors.Is(err, ErrInsufficientFunds)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrInvariant)
}
