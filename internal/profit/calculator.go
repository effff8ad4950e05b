package profit

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"mkulima/internal/domain"
)

var (
	ErrUnknownCrop     = errors.New("unknown crop")
	ErrNegativeCost    = errors.New("cost values cannot be negative")
	ErrInvalidFarmSize = errors.New("farm size must be positive")
)

type Calculator struct {
	catalog *Catalog
}

func NewCalculator(catalog *Catalog) *Calculator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Calculator{catalog: catalog}
}

// Calculate prices a season for crop on farmSize acres yielding yieldPerAcre
// tonnes per acre. Per-acre costs missing from overrides use catalog defaults.
func (c *Calculator) Calculate(crop string, farmSize, yieldPerAcre float64, overrides domain.CostOverrides) (domain.ProfitBreakdown, error) {
	econ, ok := c.catalog.Lookup(crop)
	if !ok {
		return domain.ProfitBreakdown{}, fmt.Errorf("%w: %s", ErrUnknownCrop, crop)
	}
	if farmSize <= 0 {
		return domain.ProfitBreakdown{}, ErrInvalidFarmSize
	}

	seed, err := pick(overrides.Seed, econ.SeedCost)
	if err != nil {
		return domain.ProfitBreakdown{}, err
	}
	fertilizer, err := pick(overrides.Fertilizer, econ.FertilizerCost)
	if err != nil {
		return domain.ProfitBreakdown{}, err
	}
	labor, err := pick(overrides.Labor, econ.LaborCost)
	if err != nil {
		return domain.ProfitBreakdown{}, err
	}

	size := decimal.NewFromFloat(farmSize)
	seedTotal := seed.Mul(size)
	fertilizerTotal := fertilizer.Mul(size)
	laborTotal := labor.Mul(size)
	totalCost := seedTotal.Add(fertilizerTotal).Add(laborTotal)
	revenue := decimal.NewFromFloat(yieldPerAcre).
		Mul(decimal.NewFromFloat(econ.MarketPrice)).
		Mul(size)
	profit := revenue.Sub(totalCost)

	return domain.ProfitBreakdown{
		SeedCost:       money(seedTotal),
		FertilizerCost: money(fertilizerTotal),
		LaborCost:      money(laborTotal),
		TotalCost:      money(totalCost),
		TotalRevenue:   money(revenue),
		TotalProfit:    money(profit),
	}, nil
}

// Analyze runs Calculate and attaches the margin and market price.
func (c *Calculator) Analyze(crop string, farmSize, yieldPerAcre float64, overrides domain.CostOverrides) (domain.ProfitAnalysis, error) {
	breakdown, err := c.Calculate(crop, farmSize, yieldPerAcre, overrides)
	if err != nil {
		return domain.ProfitAnalysis{}, err
	}
	return domain.ProfitAnalysis{
		Crop:           NormalizeCrop(crop),
		PredictedYield: yieldPerAcre,
		Profit:         breakdown,
		ProfitMargin:   Margin(breakdown.TotalProfit, breakdown.TotalRevenue),
		MarketPrice:    c.catalog.MarketPrice(crop),
		UsedDefaults:   overrides.Empty(),
	}, nil
}

// Margin is profit as a percentage of revenue, rounded to 2 dp. It is 0 when
// there is no revenue.
func Margin(profit, revenue float64) float64 {
	if revenue <= 0 {
		return 0
	}
	m := decimal.NewFromFloat(profit).
		Div(decimal.NewFromFloat(revenue)).
		Mul(decimal.NewFromInt(100))
	return money(m)
}

func pick(override *float64, fallback float64) (decimal.Decimal, error) {
	if override == nil {
		return decimal.NewFromFloat(fallback), nil
	}
	if *override < 0 {
		return decimal.Zero, ErrNegativeCost
	}
	return decimal.NewFromFloat(*override), nil
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
