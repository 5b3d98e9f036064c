// Package comps ranks comparable properties by similarity to the subject.
package comps

import (
	"math"
	"sort"

	"github.com/sells-group/property-research/internal/model"
)

// Term weights. A term unknown on the subject is dropped and the remaining
// weights are renormalised.
const (
	WeightPrice = 0.40
	WeightBeds  = 0.20
	WeightBaths = 0.10
	WeightSqft  = 0.30
)

// Decay rates of the closeness terms. Price and sqft decay on the relative
// difference, beds and baths on the absolute difference.
const (
	priceDecay = 5.0
	sqftDecay  = 5.0
	bedsDecay  = 1.0
	bathsDecay = 1.2
)

// Features are the comparable dimensions of a property. Zero means unknown.
type Features struct {
	Price float64
	Beds  float64
	Baths float64
	Sqft  float64
}

// FromRecord extracts features from a comparable record.
func FromRecord(c model.CompRecord) Features {
	return Features{Price: c.Price, Beds: c.Beds, Baths: c.Baths, Sqft: float64(c.Sqft)}
}

// Candidate is a comparable with the source it was drawn from.
type Candidate struct {
	model.CompRecord
	Source model.CompSource
}

// Baseline returns the source confidence baseline.
func Baseline(src model.CompSource) float64 {
	switch src {
	case model.CompSourceWorker:
		return 0.9
	case model.CompSourceHistory:
		return 0.7
	case model.CompSourcePortfolio:
		return 0.5
	default:
		return 0
	}
}

// priority orders sources for tie-breaking; lower ranks first.
func priority(src model.CompSource) int {
	switch src {
	case model.CompSourceWorker:
		return 0
	case model.CompSourceHistory:
		return 1
	case model.CompSourcePortfolio:
		return 2
	default:
		return 3
	}
}

// relative is exp(-k·|a-b|/a), 1 when identical and decaying toward 0.
func relative(subject, candidate, k float64) float64 {
	return math.Exp(-k * math.Abs(subject-candidate) / subject)
}

func absolute(subject, candidate, k float64) float64 {
	return math.Exp(-k * math.Abs(subject-candidate))
}

// Score returns the similarity of candidate to subject in [0,1]. Weights are
// renormalised over the dimensions known on the subject; a dimension the
// candidate lacks contributes 0. When the subject has no known dimension the
// score is 0.
func Score(subject, candidate Features) float64 {
	var sum, weight float64
	if subject.Price > 0 {
		weight += WeightPrice
		if candidate.Price > 0 {
			sum += WeightPrice * relative(subject.Price, candidate.Price, priceDecay)
		}
	}
	if subject.Beds > 0 {
		weight += WeightBeds
		if candidate.Beds > 0 {
			sum += WeightBeds * absolute(subject.Beds, candidate.Beds, bedsDecay)
		}
	}
	if subject.Baths > 0 {
		weight += WeightBaths
		if candidate.Baths > 0 {
			sum += WeightBaths * absolute(subject.Baths, candidate.Baths, bathsDecay)
		}
	}
	if subject.Sqft > 0 {
		weight += WeightSqft
		if candidate.Sqft > 0 {
			sum += WeightSqft * relative(subject.Sqft, candidate.Sqft, sqftDecay)
		}
	}
	if weight == 0 {
		return 0
	}
	return math.Min(1, math.Max(0, sum/weight))
}

// Rank scores every candidate and returns them sorted by score descending,
// then by source priority, then by address. Confidence is score × the
// source baseline.
func Rank(subject Features, candidates []Candidate) []model.ScoredComp {
	out := make([]model.ScoredComp, 0, len(candidates))
	for _, c := range candidates {
		s := Score(subject, FromRecord(c.CompRecord))
		out = append(out, model.ScoredComp{
			CompRecord: c.CompRecord,
			Source:     c.Source,
			Score:      s,
			Confidence: s * Baseline(c.Source),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if pi, pj := priority(out[i].Source), priority(out[j].Source); pi != pj {
			return pi < pj
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Top returns at most n comps from a ranked list.
func Top(ranked []model.ScoredComp, n int) []model.ScoredComp {
	if n <= 0 || len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}
