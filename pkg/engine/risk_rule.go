package engine

import (
	"fmt"

	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// RiskRule is a pre-trade check run on every ADD after the price has been
// converted to ticks. A violation is reported as orderbook.ErrInvalidOrder.
type RiskRule interface {
	Check(side orderbook.Side, ticks, qty int64) error
}

// RiskConfig enables the optional rules. Zero values disable a rule.
type RiskConfig struct {
	MinPrice decimal.Decimal `yaml:"min_price"`
	MaxPrice decimal.Decimal `yaml:"max_price"`
	MaxQty   int64           `yaml:"max_qty"`
	// TickStep rejects prices that are not a multiple of this many ticks.
	TickStep int64 `yaml:"tick_step"`
}

// LimitPriceRule keeps limit prices inside [floor, ceil] ticks.
type LimitPriceRule struct {
	floor, ceil int64
}

func (r *LimitPriceRule) Check(_ orderbook.Side, ticks, _ int64) error {
	if (r.ceil > 0 && ticks > r.ceil) || ticks < r.floor {
		return fmt.Errorf("%w: price outside band", orderbook.ErrInvalidOrder)
	}
	return nil
}

type MaxQtyRule struct {
	max int64
}

func (r *MaxQtyRule) Check(_ orderbook.Side, _, qty int64) error {
	if qty > r.max {
		return fmt.Errorf("%w: quantity above %d", orderbook.ErrInvalidOrder, r.max)
	}
	return nil
}

type TickSizeRule struct {
	step int64
}

func (r *TickSizeRule) Check(_ orderbook.Side, ticks, _ int64) error {
	if ticks%r.step != 0 {
		return fmt.Errorf("%w: invalid tick size", orderbook.ErrInvalidOrder)
	}
	return nil
}

// buildRiskRules turns the config into rules, with prices at the book's scale.
func buildRiskRules(cfg RiskConfig, scale int32) ([]RiskRule, error) {
	var rules []RiskRule

	toTicks := func(d decimal.Decimal) int64 { return d.Shift(scale).Round(0).IntPart() }
	floor, ceil := toTicks(cfg.MinPrice), toTicks(cfg.MaxPrice)
	if floor < 0 || ceil < 0 || (ceil > 0 && floor > ceil) {
		return nil, fmt.Errorf("invalid price band [%s, %s]", cfg.MinPrice, cfg.MaxPrice)
	}
	if floor > 0 || ceil > 0 {
		rules = append(rules, &LimitPriceRule{floor: floor, ceil: ceil})
	}

	switch {
	case cfg.MaxQty < 0:
		return nil, fmt.Errorf("invalid max qty %d", cfg.MaxQty)
	case cfg.MaxQty > 0:
		rules = append(rules, &MaxQtyRule{max: cfg.MaxQty})
	}

	switch {
	case cfg.TickStep < 0:
		return nil, fmt.Errorf("invalid tick step %d", cfg.TickStep)
	case cfg.TickStep > 1:
		rules = append(rules, &TickSizeRule{step: cfg.TickStep})
	}

	return rules, nil
}
