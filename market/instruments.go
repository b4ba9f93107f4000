package market

// SymbolInfo carries an exchange's trading rules for one symbol.
type SymbolInfo struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	MinQty      float64
	StepSize    float64
	TickSize    float64
	MinNotional float64
}

// Symbols holds fallback rules for offline backtests, matching Binance USD-M
// futures filters at the time of writing.
var Symbols = map[string]SymbolInfo{
	"BTCUSDT": {
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		MinQty:      0.001,
		StepSize:    0.001,
		TickSize:    0.1,
		MinNotional: 100,
	},
	"ETHUSDT": {
		Symbol:      "ETHUSDT",
		BaseAsset:   "ETH",
		QuoteAsset:  "USDT",
		MinQty:      0.001,
		StepSize:    0.001,
		TickSize:    0.01,
		MinNotional: 20,
	},
	"BNBUSDT": {
		Symbol:      "BNBUSDT",
		BaseAsset:   "BNB",
		QuoteAsset:  "USDT",
		MinQty:      0.01,
		StepSize:    0.01,
		TickSize:    0.01,
		MinNotional: 5,
	},
}

// LookupSymbol returns the fallback rules, or permissive rules when unknown.
func LookupSymbol(symbol string) SymbolInfo {
	if info, ok := Symbols[symbol]; ok {
		return info
	}
	return SymbolInfo{Symbol: symbol}
}
