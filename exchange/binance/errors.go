package binance

import (
	"context"
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"

	"github.com/rustyeddy/cryptotrader/internal/errs"
)

// kindForCode maps Binance API error codes onto the error taxonomy.
// https://developers.binance.com/docs/derivatives/usds-margined-futures/error-code
func kindForCode(code int64) error {
	switch {
	case code == 0, // body was not an API error, usually a gateway page
		code == -1001, code == -1003, code == -1007, code == -1008,
		code == -1015, code == -1021:
		return errs.ErrTransientNetwork
	case code == -1002, code == -1022, code == -2014, code == -2015:
		return errs.ErrAuthentication
	case code == -2018, code == -2019:
		return errs.ErrInsufficientFunds
	case code == -2011, code == -2013:
		return errs.ErrUnknownOrder
	}
	return errs.ErrInvalidOrderParams
}

// classify wraps a go-binance error as an errs.ExchangeError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return errs.NewExchangeError(Name, op, apiErr.Code, kindForCode(apiErr.Code), err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", Name, op, err)
	}
	// timeouts, resets and DNS failures all retry
	return errs.NewExchangeError(Name, op, 0, errs.ErrTransientNetwork, err)
}
