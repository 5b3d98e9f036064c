// Package underwriting computes after-repair value, rehab cost, rent and the
// maximum allowable offer from aggregated research data.
package underwriting

import (
	"math"

	"github.com/sells-group/property-research/internal/model"
)

// Range widths as fractions of the base value.
const (
	ARVSpread         = 0.05
	ARVFallbackSpread = 0.12
	RentSpread        = 0.07
	RehabSpread       = 0.15
	TrendAdjustment   = 0.02
)

// Rental cash-flow cap parameters.
const (
	MinMonthlyCashFlow  = 200.0
	OperatingExpensePct = 0.35
	LoanToValue         = 0.75
	LoanTermMonths      = 360
	DefaultMortgageRate = 7.0 // percent
)

// mao70 is the share of ARV an investor pays before costs and profit.
const mao70 = 0.70

// RehabRate returns the per-sqft rehab rate for a tier.
func RehabRate(t model.RehabTier) float64 {
	switch t {
	case model.RehabLight:
		return 15
	case model.RehabHeavy:
		return 60
	default:
		return 35
	}
}

// Margins returns the closing-cost and profit-margin fractions of ARV for a
// strategy.
func Margins(s model.Strategy) (closing, profit float64) {
	switch s {
	case model.StrategyWholesale:
		return 0.03, 0.25
	case model.StrategyRental:
		return 0.05, 0.15
	default:
		return 0.04, 0.20
	}
}

// Input is everything the calculator reads.
type Input struct {
	Facts        *model.ParcelFacts
	SalesComps   []model.ScoredComp
	RentalComps  []model.ScoredComp
	Trend        *model.MarketTrend
	Primary      *model.Valuation
	Secondary    *model.Valuation
	RehabTier    model.RehabTier
	Strategy     model.Strategy
	MortgageRate float64 // 30-year fixed, percent; 0 uses DefaultMortgageRate
	RentFallback *model.RentEstimate
}

// Compute runs the underwriting calculation. It never fails; missing inputs
// widen ranges and set LowConfidence.
func Compute(in Input) model.Underwriting {
	var sqft float64
	if in.Facts != nil {
		sqft = float64(in.Facts.Sqft)
	}

	u := model.Underwriting{}
	u.ARV, u.ARVSource, u.LowConfidence = arv(in, sqft)
	u.Rent = rent(in)

	u.RehabRatePerSqft = RehabRate(in.RehabTier)
	mid := sqft * u.RehabRatePerSqft
	u.Rehab = model.Range{Low: mid * (1 - RehabSpread), Base: mid, High: mid * (1 + RehabSpread)}
	if sqft <= 0 {
		u.LowConfidence = true
	}

	u.ClosingCostPct, u.ProfitMarginPct = Margins(in.Strategy)
	a := u.ARV.Base
	mao := a*mao70 - u.Rehab.High - a*u.ClosingCostPct - a*u.ProfitMarginPct

	if in.Strategy == model.StrategyRental && u.Rent.Base > 0 {
		rate := in.MortgageRate
		if rate <= 0 {
			rate = DefaultMortgageRate
		}
		u.CashFlowCap = math.Max(0, CashFlowPrice(u.Rent.Base, rate)-u.Rehab.High)
		mao = math.Min(mao, u.CashFlowCap)
	}
	u.MaxAllowableOffer = math.Max(0, mao)
	u.RecommendedOffer = math.Floor(u.MaxAllowableOffer/1000) * 1000

	if in.Strategy == model.StrategyRental && u.Rent.Base > 0 {
		price := u.RecommendedOffer
		if price <= 0 {
			price = a
		}
		if price > 0 {
			u.RentalYield = u.Rent.Base * 12 / price
			u.RentalYieldBucket = YieldBucket(u.RentalYield)
		}
	}
	return u
}

// arv returns the ARV range, its source and whether it is low confidence.
func arv(in Input, sqft float64) (model.Range, string, bool) {
	if base, ok := compsARV(in.SalesComps, sqft); ok {
		switch {
		case in.Trend == nil:
		case in.Trend.Direction == model.TrendUp:
			base *= 1 + TrendAdjustment
		case in.Trend.Direction == model.TrendDown:
			base *= 1 - TrendAdjustment
		}
		return around(base, ARVSpread), "comps", false
	}
	for _, v := range []*model.Valuation{in.Primary, in.Secondary} {
		if v != nil && v.Estimate > 0 {
			return around(v.Estimate, ARVFallbackSpread), "valuation:" + v.Source, true
		}
	}
	return model.Range{}, "none", true
}

// compsARV is the similarity-weighted average price per sqft times the
// subject sqft, or the weighted average price when sqft is unknown.
func compsARV(comps []model.ScoredComp, sqft float64) (float64, bool) {
	if sqft > 0 {
		var num, den float64
		for _, c := range comps {
			if c.Price <= 0 || c.Sqft <= 0 {
				continue
			}
			w := weight(c)
			num += w * c.Price / float64(c.Sqft)
			den += w
		}
		if den > 0 {
			return num / den * sqft, true
		}
	}
	return weightedPrice(comps)
}

func rent(in Input) model.Range {
	if base, ok := weightedPrice(in.RentalComps); ok {
		return around(base, RentSpread)
	}
	if in.RentFallback != nil && in.RentFallback.Rent > 0 {
		return around(in.RentFallback.Rent, RentSpread)
	}
	return model.Range{}
}

func weightedPrice(comps []model.ScoredComp) (float64, bool) {
	var num, den float64
	for _, c := range comps {
		if c.Price <= 0 {
			continue
		}
		w := weight(c)
		num += w * c.Price
		den += w
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// weight is the comp's similarity score, with a small floor so a set of
// zero-score comps still averages.
func weight(c model.ScoredComp) float64 {
	return math.Max(c.Score, 1e-6)
}

func around(base, spread float64) model.Range {
	return model.Range{Low: base * (1 - spread), Base: base, High: base * (1 + spread)}
}

// CashFlowPrice returns the highest purchase price whose 75% LTV mortgage at
// ratePct keeps monthly cash flow at MinMonthlyCashFlow after operating
// expenses.
func CashFlowPrice(monthlyRent, ratePct float64) float64 {
	payment := monthlyRent*(1-OperatingExpensePct) - MinMonthlyCashFlow
	if payment <= 0 {
		return 0
	}
	return MaxLoan(payment, ratePct, LoanTermMonths) / LoanToValue
}

// MaxLoan returns the principal a fixed payment amortizes over n months.
func MaxLoan(payment, ratePct float64, n int) float64 {
	r := ratePct / 100 / 12
	if r == 0 {
		return payment * float64(n)
	}
	return payment * (1 - math.Pow(1+r, -float64(n))) / r
}

// YieldBucket classifies a gross rental yield fraction.
func YieldBucket(y float64) model.YieldBucket {
	switch {
	case y > 0.08:
		return model.YieldExcellent
	case y >= 0.05:
		return model.YieldGood
	case y >= 0.03:
		return model.YieldAverage
	default:
		return model.YieldPoor
	}
}
