package calculator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sdpower/ccdash/internal/pricing"
	"github.com/sdpower/ccdash/internal/types"
)

// Mode selects how a cost recorded in the log relates to the computed one
type Mode string

const (
	// ModeCalculate always prices tokens from the table
	ModeCalculate Mode = "calculate"
	// ModeAuto uses the recorded cost when present, otherwise calculates
	ModeAuto Mode = "auto"
	// ModeDisplay only shows recorded costs; entries without one cost zero
	ModeDisplay Mode = "display"
)

var Modes = []Mode{ModeCalculate, ModeAuto, ModeDisplay}

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeCalculate, nil
	case ModeCalculate, ModeAuto, ModeDisplay:
		return m, nil
	}
	return "", fmt.Errorf("%w: cost mode %q (want calculate, auto or display)", types.ErrInvalidFormat, s)
}

// PricingTable resolves a model to its rates. *pricing.Table implements it.
type PricingTable interface {
	Lookup(model string) (pricing.Rates, bool)
}

// Calculator prices usage entries. It holds no mutable state and is safe for
// concurrent use by the loader's workers.
type Calculator struct {
	table PricingTable
	mode  Mode
}

func New(table PricingTable) *Calculator {
	return NewWithMode(table, ModeCalculate)
}

func NewWithMode(table PricingTable, mode Mode) *Calculator {
	if table == nil {
		table = pricing.Default()
	}
	if mode == "" {
		mode = ModeCalculate
	}
	return &Calculator{table: table, mode: mode}
}

func (c *Calculator) Mode() Mode {
	return c.mode
}

// Price attaches a cost to the entry. The model is always looked up first:
// models missing from the table are flagged unpriced and priced at the
// table's fallback (zero by default), whatever the mode. A recorded cost
// only replaces the computed one in auto and display mode.
func (c *Calculator) Price(entry types.UsageEntry) types.PricedEntry {
	priced := types.PricedEntry{UsageEntry: entry}

	rates, ok := c.table.Lookup(entry.ModelID)
	priced.Unpriced = !ok
	priced.Cost = rates.Cost(entry.Tokens)
	priced.CostSource = types.CostComputed
	if !ok {
		priced.CostSource = types.CostUnpriced
	}

	recorded := entry.RecordedCost != nil && !entry.RecordedCost.IsNegative()
	switch c.mode {
	case ModeAuto:
		if recorded {
			priced.Cost = *entry.RecordedCost
			priced.CostSource = types.CostRecorded
		}
	case ModeDisplay:
		priced.Cost = decimal.Zero
		if recorded {
			priced.Cost = *entry.RecordedCost
			priced.CostSource = types.CostRecorded
		}
	}
	return priced
}
