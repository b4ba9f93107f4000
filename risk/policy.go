// Package risk turns strategy signals into sized order intents.
package risk

import "fmt"

// Config bounds how much a single signal may trade. A zero MaxAbsoluteQty or
// MaxTotalExposure disables that cap; a zero StopLossPct or TakeProfitPct
// leaves the level unset.
type Config struct {
	MaxPositionPct   float64 `mapstructure:"max_position_pct" yaml:"max_position_pct"`
	MaxAbsoluteQty   float64 `mapstructure:"max_absolute_qty" yaml:"max_absolute_qty"`
	MaxTotalExposure float64 `mapstructure:"max_total_exposure" yaml:"max_total_exposure"`
	StopLossPct      float64 `mapstructure:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct    float64 `mapstructure:"take_profit_pct" yaml:"take_profit_pct"`
	MinConfidence    float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

func DefaultConfig() Config {
	return Config{
		MaxPositionPct: 0.1,
		StopLossPct:    0.02,
		TakeProfitPct:  0.04,
		MinConfidence:  0.6,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxPositionPct <= 0 || c.MaxPositionPct > 1:
		return fmt.Errorf("risk.max_position_pct: must be in (0, 1], got %g", c.MaxPositionPct)
	case c.MaxAbsoluteQty < 0:
		return fmt.Errorf("risk.max_absolute_qty: must not be negative")
	case c.MaxTotalExposure < 0:
		return fmt.Errorf("risk.max_total_exposure: must not be negative")
	case c.StopLossPct < 0 || c.StopLossPct >= 1:
		return fmt.Errorf("risk.stop_loss_pct: must be in [0, 1), got %g", c.StopLossPct)
	case c.TakeProfitPct < 0:
		return fmt.Errorf("risk.take_profit_pct: must not be negative")
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("risk.min_confidence: must be in [0, 1], got %g", c.MinConfidence)
	}
	return nil
}
